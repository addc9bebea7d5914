// Package main runs a single simulation headless, as fast as possible, and
// writes the epidemic curve and a summary when the epidemic ends.
package main

import (
	"bufio"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/cheggaaa/pb"
	"github.com/skratchdot/open-golang/open"

	"github.com/MRamiBalles/PandemicSim/internal/engine"
	"github.com/MRamiBalles/PandemicSim/internal/events"
	"github.com/MRamiBalles/PandemicSim/internal/infra/storage"
	"github.com/MRamiBalles/PandemicSim/internal/platform/config"
	"github.com/MRamiBalles/PandemicSim/internal/platform/logger"
	"github.com/MRamiBalles/PandemicSim/internal/report"
)

func main() {
	fs := flag.NewFlagSet("pandemic-batch", flag.ExitOnError)
	maxTicks := fs.Int("ticks", 50000, "stop after this many ticks even if the epidemic is not over")
	dbPath := fs.String("db", "", "record the run into this database")
	out := fs.String("out", "curve.png", "epidemic curve output file (empty skips the chart)")
	svg := fs.Bool("svg", false, "render the curve as SVG")
	openChart := fs.Bool("open", false, "open the rendered curve when done")
	quiet := fs.Bool("quiet", false, "no progress bar")

	cfg, err := config.Load(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := run(cfg, *maxTicks, *dbPath, *out, *svg, *openChart, *quiet); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, maxTicks int, dbPath, out string, svg, openChart, quiet bool) error {
	appLogger := logger.NewNopLogger()

	var (
		db        *sql.DB
		recorder  *storage.Recorder
		persister events.EventPersister
	)
	if dbPath != "" {
		var err error
		db, err = storage.InitSQLite(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()

		opts := storage.DefaultRecorderOptions()
		opts.BatchSize = cfg.RecorderBatchSize
		// a batch run waits for the store instead of dropping
		opts.DropWhenFull = false
		recorder = storage.NewRecorder(db, logger.NewLogger(), opts)
		defer recorder.Close()
		persister = recorder
	}

	eng, err := engine.NewEngine(cfg, events.NewEventLog(persister), appLogger)
	if err != nil {
		return err
	}
	if recorder != nil {
		eng.AddObserver(recorder)
	}

	var bar *pb.ProgressBar
	if !quiet {
		bar = pb.New(maxTicks)
		bar.SetWidth(80)
		bar.ShowSpeed = true
		bar.Start()
	}
	for i := 0; i < maxTicks && !eng.Done(); i++ {
		eng.Step()
		if bar != nil {
			bar.Increment()
		}
	}
	if bar != nil {
		bar.Finish()
	}

	if recorder != nil {
		if err := recorder.Flush(); err != nil {
			return fmt.Errorf("failed to flush run history: %w", err)
		}
	}

	history := eng.History()
	summary := report.Summarize(history)
	fmt.Print(report.FormatSummary(summary))

	if out == "" {
		return nil
	}
	if err := writeCurve(out, eng.RunID(), history, svg); err != nil {
		return err
	}
	fmt.Println("Curve written to " + out)
	if openChart {
		if err := open.Run(out); err != nil {
			return fmt.Errorf("failed to open %s: %w", out, err)
		}
	}
	return nil
}

func writeCurve(path, runID string, history []engine.TickStats, svg bool) error {
	opts := report.DefaultOptions()
	opts.Title = "Run " + runID
	if svg {
		opts.Format = report.FormatSVG
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	if err := report.RenderCurve(w, history, opts); err != nil {
		f.Close()
		return fmt.Errorf("failed to render curve: %w", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
