// Package main runs the staged scenario suite and exits non-zero when any
// scenario fails.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/ttacon/chalk"

	"github.com/MRamiBalles/PandemicSim/internal/platform/logger"
	"github.com/MRamiBalles/PandemicSim/internal/scenario"
)

func main() {
	jsonOut := flag.String("json", "", "also write the results to this file")
	only := flag.String("run", "", "run only scenarios whose name contains this string")
	verbose := flag.Bool("v", false, "log engine output")
	flag.Parse()

	fmt.Println("PANDEMIC SIM - SCENARIO SUITE")
	fmt.Println(strings.Repeat("=", 60))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	appLogger := logger.NewNopLogger()
	if *verbose {
		appLogger = logger.NewLogger()
	}

	var selected []scenario.Scenario
	for _, sc := range scenario.Builtin() {
		if *only == "" || strings.Contains(sc.Name, *only) {
			selected = append(selected, sc)
		}
	}
	if len(selected) == 0 {
		fmt.Println(chalk.Yellow.Color("No scenario matches " + *only))
		os.Exit(2)
	}

	results := scenario.NewSuite(appLogger, selected...).Run(ctx)
	for _, r := range results {
		if r.Passed {
			fmt.Printf("  %s %-34s %6d ticks  %v\n", chalk.Green.Color("PASS"), r.Name, r.Ticks, r.Duration)
		} else {
			fmt.Printf("  %s %-34s %s\n", chalk.Red.Color("FAIL"), r.Name, r.Reason)
		}
	}

	passed, failed := scenario.Tally(results)
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("   Passed: %d\n", passed)
	fmt.Printf("   Failed: %d\n", failed)

	if *jsonOut != "" {
		data, _ := json.MarshalIndent(results, "", "  ")
		if err := os.WriteFile(*jsonOut, data, 0644); err != nil {
			fmt.Fprintln(os.Stderr, "failed to write results: "+err.Error())
		} else {
			fmt.Println("Results saved to " + *jsonOut)
		}
	}

	if failed > 0 {
		fmt.Println(chalk.Red.Color("\nEngine does not hold its invariants"))
		os.Exit(1)
	}
	fmt.Println(chalk.Green.Color("\nAll scenarios passed"))
}
