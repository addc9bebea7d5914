// Package main - pandemic-watch
// Load generator for the viewer channel: opens many concurrent WebSocket
// viewers, decodes every frame and optionally issues control commands.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MRamiBalles/PandemicSim/internal/domain/population"
	"github.com/MRamiBalles/PandemicSim/internal/network"
)

// Config for the watcher
type Config struct {
	ServerURL       string
	NumClients      int
	Command         string
	CommandInterval time.Duration
	TestDuration    time.Duration
	Output          string
}

// Stats tracks frames received per type and the last counts seen.
type Stats struct {
	Frames    int64
	Snapshots int64
	Events    int64
	Acks      int64
	Rejected  int64
	Commands  int64
	Errors    int64

	mu         sync.Mutex
	lastRunID  string
	lastTick   int64
	lastCounts population.Counts
}

// snapshotHeader is the part of a snapshot frame the watcher reads.
type snapshotHeader struct {
	RunID  string            `json:"run_id"`
	Tick   int64             `json:"tick"`
	Counts population.Counts `json:"counts"`
}

type frame struct {
	Type    network.MessageType `json:"type"`
	Payload json.RawMessage     `json:"payload"`
}

func main() {
	serverURL := flag.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	numClients := flag.Int("clients", 20, "Number of concurrent viewers")
	command := flag.String("command", "", "control command each viewer sends periodically (PAUSE, RESUME, STEP, RESET)")
	interval := flag.Duration("interval", time.Second, "interval between commands per viewer")
	duration := flag.Duration("duration", 30*time.Second, "Test duration")
	output := flag.String("out", "watch_results.json", "results file (empty disables)")
	flag.Parse()

	config := Config{
		ServerURL:       *serverURL,
		NumClients:      *numClients,
		Command:         strings.ToUpper(*command),
		CommandInterval: *interval,
		TestDuration:    *duration,
		Output:          *output,
	}

	fmt.Println("=========================================")
	fmt.Println("PANDEMIC WATCH - viewer load tool")
	fmt.Println("=========================================")
	fmt.Printf("Server:   %s\n", config.ServerURL)
	fmt.Printf("Viewers:  %d\n", config.NumClients)
	if config.Command != "" {
		fmt.Printf("Command:  %s every %v\n", config.Command, config.CommandInterval)
	}
	fmt.Printf("Duration: %v\n", config.TestDuration)
	fmt.Println("=========================================")

	ctx, cancel := context.WithTimeout(context.Background(), config.TestDuration)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		fmt.Println("\nInterrupt received, stopping...")
		cancel()
	}()

	stats := watch(ctx, config)
	printResults(stats, config)
}

func watch(ctx context.Context, config Config) *Stats {
	stats := &Stats{}
	var wg sync.WaitGroup

	for i := 0; i < config.NumClients; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()
			runViewer(ctx, clientID, config, stats)
		}(i)

		// Stagger connects to avoid thundering herd
		time.Sleep(10 * time.Millisecond)
	}
	fmt.Printf("All %d viewers started\n\n", config.NumClients)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats.mu.Lock()
				tick, counts := stats.lastTick, stats.lastCounts
				stats.mu.Unlock()
				fmt.Printf("Progress: frames=%d errors=%d tick=%d S=%d I=%d R=%d D=%d\n",
					atomic.LoadInt64(&stats.Frames), atomic.LoadInt64(&stats.Errors),
					tick, counts.Susceptible, counts.Infected, counts.Recovered, counts.Dead)
			}
		}
	}()

	wg.Wait()
	return stats
}

func runViewer(ctx context.Context, clientID int, config Config, stats *Stats) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, config.ServerURL, nil)
	if err != nil {
		log.Printf("Viewer %d: connection failed: %v", clientID, err)
		atomic.AddInt64(&stats.Errors, 1)
		return
	}
	defer conn.Close()

	// Unblock the reader when the test ends.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	if config.Command != "" {
		go sendCommands(ctx, conn, config, stats)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				atomic.AddInt64(&stats.Errors, 1)
			}
			return
		}
		stats.observe(data)
	}
}

// sendCommands is the only writer on conn.
func sendCommands(ctx context.Context, conn *websocket.Conn, config Config, stats *Stats) {
	ticker := time.NewTicker(config.CommandInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cmd := network.ControlCommand{Type: config.Command}
			if err := conn.WriteJSON(cmd); err != nil {
				atomic.AddInt64(&stats.Errors, 1)
				return
			}
			atomic.AddInt64(&stats.Commands, 1)
		}
	}
}

func (s *Stats) observe(data []byte) {
	atomic.AddInt64(&s.Frames, 1)

	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		atomic.AddInt64(&s.Errors, 1)
		return
	}
	switch f.Type {
	case network.MsgTypeSnapshot:
		atomic.AddInt64(&s.Snapshots, 1)
		var snap snapshotHeader
		if err := json.Unmarshal(f.Payload, &snap); err != nil {
			atomic.AddInt64(&s.Errors, 1)
			return
		}
		s.mu.Lock()
		if snap.RunID != s.lastRunID || snap.Tick >= s.lastTick {
			s.lastRunID, s.lastTick, s.lastCounts = snap.RunID, snap.Tick, snap.Counts
		}
		s.mu.Unlock()
	case network.MsgTypeEvent:
		atomic.AddInt64(&s.Events, 1)
	case network.MsgTypeAck:
		atomic.AddInt64(&s.Acks, 1)
	case network.MsgTypeError:
		atomic.AddInt64(&s.Rejected, 1)
	}
}

func printResults(stats *Stats, config Config) {
	frames := atomic.LoadInt64(&stats.Frames)
	errs := atomic.LoadInt64(&stats.Errors)
	throughput := float64(frames) / config.TestDuration.Seconds()

	stats.mu.Lock()
	runID, tick, counts := stats.lastRunID, stats.lastTick, stats.lastCounts
	stats.mu.Unlock()

	fmt.Println("\n=========================================")
	fmt.Println("WATCH RESULTS")
	fmt.Println("=========================================")
	fmt.Printf("Frames:      %d (%.2f/sec)\n", frames, throughput)
	fmt.Printf("Snapshots:   %d\n", atomic.LoadInt64(&stats.Snapshots))
	fmt.Printf("Events:      %d\n", atomic.LoadInt64(&stats.Events))
	fmt.Printf("Commands:    %d sent, %d acked, %d rejected\n",
		atomic.LoadInt64(&stats.Commands), atomic.LoadInt64(&stats.Acks), atomic.LoadInt64(&stats.Rejected))
	fmt.Printf("Errors:      %d\n", errs)
	fmt.Printf("Last state:  run %s tick %d S=%d I=%d R=%d D=%d\n",
		runID, tick, counts.Susceptible, counts.Infected, counts.Recovered, counts.Dead)
	fmt.Println("=========================================")

	if config.Output == "" {
		return
	}
	results := map[string]interface{}{
		"frames":         frames,
		"snapshots":      atomic.LoadInt64(&stats.Snapshots),
		"events":         atomic.LoadInt64(&stats.Events),
		"commands":       atomic.LoadInt64(&stats.Commands),
		"acks":           atomic.LoadInt64(&stats.Acks),
		"rejected":       atomic.LoadInt64(&stats.Rejected),
		"errors":         errs,
		"frames_per_sec": throughput,
		"last": map[string]interface{}{
			"run_id": runID,
			"tick":   tick,
			"counts": counts,
		},
		"config": map[string]interface{}{
			"clients":  config.NumClients,
			"command":  config.Command,
			"interval": config.CommandInterval.String(),
			"duration": config.TestDuration.String(),
		},
	}
	jsonData, _ := json.MarshalIndent(results, "", "  ")
	if err := os.WriteFile(config.Output, jsonData, 0644); err != nil {
		log.Printf("failed to write results: %v", err)
		return
	}
	fmt.Println("\nResults saved to " + config.Output)
}
