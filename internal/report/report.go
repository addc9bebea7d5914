// Package report turns the per-tick history of a run into an epidemic curve
// chart and a short summary.
package report

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/MRamiBalles/PandemicSim/internal/domain/agent"
	"github.com/MRamiBalles/PandemicSim/internal/domain/population"
	"github.com/MRamiBalles/PandemicSim/internal/engine"
)

// ErrTooFewPoints is returned when a curve has fewer than two ticks.
var ErrTooFewPoints = errors.New("curve needs at least two ticks")

// Format selects the chart encoding.
type Format string

const (
	FormatPNG Format = "png"
	FormatSVG Format = "svg"
)

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatSVG {
		return "image/svg+xml"
	}
	return "image/png"
}

// Options controls chart rendering.
type Options struct {
	Title  string
	Width  int
	Height int
	Format Format
}

// DefaultOptions renders a 1024x480 PNG.
func DefaultOptions() Options {
	return Options{Title: "Epidemic curve", Width: 1024, Height: 480, Format: FormatPNG}
}

// stateColors matches the palette used by the viewers.
var stateColors = [agent.NumStates]drawing.Color{
	agent.Susceptible: {R: 66, G: 133, B: 244, A: 255},
	agent.Infected:    {R: 219, G: 68, B: 55, A: 255},
	agent.Recovered:   {R: 15, G: 157, B: 88, A: 255},
	agent.Dead:        {R: 90, G: 90, B: 90, A: 255},
}

// RenderCurve draws one line per health state against the tick number.
func RenderCurve(w io.Writer, stats []engine.TickStats, opts Options) error {
	if len(stats) < 2 {
		return ErrTooFewPoints
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		def := DefaultOptions()
		opts.Width, opts.Height = def.Width, def.Height
	}

	ticks := make([]float64, len(stats))
	var values [agent.NumStates][]float64
	for s := range values {
		values[s] = make([]float64, len(stats))
	}
	for i, st := range stats {
		ticks[i] = float64(st.Tick)
		for _, s := range agent.States {
			values[s][i] = float64(st.Counts.Of(s))
		}
	}

	total := float64(stats[0].Total())
	if total <= 0 {
		total = 1
	}
	first, last := ticks[0], ticks[len(ticks)-1]
	if last <= first {
		return ErrTooFewPoints
	}

	series := make([]chart.Series, 0, agent.NumStates)
	for _, s := range agent.States {
		series = append(series, chart.ContinuousSeries{
			Name:    s.String(),
			XValues: ticks,
			YValues: values[s],
			Style:   chart.Style{StrokeColor: stateColors[s], StrokeWidth: 2.0},
		})
	}

	graph := chart.Chart{
		Title:  opts.Title,
		Width:  opts.Width,
		Height: opts.Height,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{
			Name:  "tick",
			Style: chart.Style{FontSize: 10.0},
			Range: &chart.ContinuousRange{Min: first, Max: last},
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%d", int(v.(float64)))
			},
		},
		YAxis: chart.YAxis{
			Name:  "agents",
			Style: chart.Style{FontSize: 10.0},
			Range: &chart.ContinuousRange{Min: 0, Max: total},
			ValueFormatter: func(v interface{}) string {
				return humanize.Comma(int64(v.(float64)))
			},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	provider := chart.PNG
	if opts.Format == FormatSVG {
		provider = chart.SVG
	}
	if err := graph.Render(provider, w); err != nil {
		return fmt.Errorf("failed to render curve: %w", err)
	}
	return nil
}

// Summary condenses a run history.
type Summary struct {
	RunID        string            `json:"run_id"`
	Ticks        int64             `json:"ticks"`
	Population   int               `json:"population"`
	PeakInfected int               `json:"peak_infected"`
	PeakTick     int64             `json:"peak_tick"`
	Final        population.Counts `json:"final"`
	AttackRate   float64           `json:"attack_rate"`   // share of the population ever infected
	FatalityRate float64           `json:"fatality_rate"` // deaths among resolved cases
	Over         bool              `json:"over"`
}

// Summarize derives peak and final figures from a history.
func Summarize(stats []engine.TickStats) Summary {
	var s Summary
	if len(stats) == 0 {
		return s
	}
	first, last := stats[0], stats[len(stats)-1]
	s.RunID = last.RunID
	s.Ticks = last.Tick
	s.Population = last.Total()
	s.Final = last.Counts
	s.Over = last.Infected == 0

	s.PeakInfected, s.PeakTick = first.Infected, first.Tick
	for _, st := range stats[1:] {
		if st.Infected > s.PeakInfected {
			s.PeakInfected, s.PeakTick = st.Infected, st.Tick
		}
	}

	if s.Population > 0 {
		s.AttackRate = float64(s.Population-last.Susceptible) / float64(s.Population)
	}
	if resolved := last.Recovered + last.Dead; resolved > 0 {
		s.FatalityRate = float64(last.Dead) / float64(resolved)
	}
	return s
}

// FormatSummary renders a summary for terminals and logs.
func FormatSummary(s Summary) string {
	var b strings.Builder
	status := "still spreading"
	if s.Over {
		status = "over"
	}
	fmt.Fprintf(&b, "Run %s: %s ticks, epidemic %s\n", s.RunID, humanize.Comma(s.Ticks), status)
	fmt.Fprintf(&b, "  population     %s\n", humanize.Comma(int64(s.Population)))
	fmt.Fprintf(&b, "  peak infected  %s at tick %s\n", humanize.Comma(int64(s.PeakInfected)), humanize.Comma(s.PeakTick))
	fmt.Fprintf(&b, "  susceptible    %s\n", humanize.Comma(int64(s.Final.Susceptible)))
	fmt.Fprintf(&b, "  infected       %s\n", humanize.Comma(int64(s.Final.Infected)))
	fmt.Fprintf(&b, "  recovered      %s\n", humanize.Comma(int64(s.Final.Recovered)))
	fmt.Fprintf(&b, "  dead           %s\n", humanize.Comma(int64(s.Final.Dead)))
	fmt.Fprintf(&b, "  attack rate    %s%%\n", percent(s.AttackRate))
	fmt.Fprintf(&b, "  fatality rate  %s%%\n", percent(s.FatalityRate))
	return b.String()
}

// percent formats a share as a percentage with one rounded decimal.
// FtoaWithDigits truncates, so the value is rounded first.
func percent(share float64) string {
	return humanize.FtoaWithDigits(math.Round(share*1000)/10, 1)
}
