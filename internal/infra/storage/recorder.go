package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MRamiBalles/PandemicSim/internal/engine"
	"github.com/MRamiBalles/PandemicSim/internal/events"
	"github.com/MRamiBalles/PandemicSim/internal/platform/logger"
	"github.com/MRamiBalles/PandemicSim/internal/platform/metrics"
)

// ErrRecorderClosed is returned when recording after Close.
var ErrRecorderClosed = errors.New("recorder closed")

// ErrRecorderFull is returned when a record is dropped because the writer
// fell behind.
var ErrRecorderFull = errors.New("recorder queue full")

// RecorderOptions tunes the background writer.
type RecorderOptions struct {
	Buffer        int           // queued records before the recorder saturates
	BatchSize     int           // records per transaction
	FlushInterval time.Duration // maximum age of a pending batch
	DropWhenFull  bool          // drop instead of blocking the caller
}

// DefaultRecorderOptions suits a real-time server.
func DefaultRecorderOptions() RecorderOptions {
	return RecorderOptions{
		Buffer:        4096,
		BatchSize:     256,
		FlushInterval: time.Second,
		DropWhenFull:  true,
	}
}

type record struct {
	stat  *engine.TickStats
	event *events.Event
	flush chan struct{}
}

// Recorder writes tick statistics and transition events to the history
// store from a single background goroutine, one transaction per batch.
// It is both an engine.TickObserver and an events.EventPersister; records
// from both sources share one queue so the store keeps commit order.
type Recorder struct {
	db     *sql.DB
	runs   *SQLiteRunRepository
	stats  *SQLiteStatsRepository
	events *SQLiteEventRepository
	logger *logger.Logger
	opts   RecorderOptions

	mu     sync.RWMutex
	closed bool
	queue  chan record
	done   chan struct{}
}

// NewRecorder starts the background writer.
func NewRecorder(db *sql.DB, log *logger.Logger, opts RecorderOptions) *Recorder {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultRecorderOptions().Buffer
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultRecorderOptions().BatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultRecorderOptions().FlushInterval
	}
	r := &Recorder{
		db:     db,
		runs:   NewSQLiteRunRepository(db),
		stats:  NewSQLiteStatsRepository(db),
		events: NewSQLiteEventRepository(db),
		logger: log,
		opts:   opts,
		queue:  make(chan record, opts.Buffer),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// OnTick queues the statistics of a committed tick.
func (r *Recorder) OnTick(stats engine.TickStats) {
	if err := r.enqueue(record{stat: &stats}); err != nil && !errors.Is(err, ErrRecorderClosed) {
		r.logger.Warn("Dropped tick " + fmt.Sprint(stats.Tick) + " stats: " + err.Error())
	}
}

// Append queues an event. A RESET event also registers its run.
func (r *Recorder) Append(event events.Event) error {
	return r.enqueue(record{event: &event})
}

// Flush blocks until everything queued before the call is written.
func (r *Recorder) Flush() error {
	ack := make(chan struct{})
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return ErrRecorderClosed
	}
	r.queue <- record{flush: ack}
	r.mu.RUnlock()
	<-ack
	return nil
}

// Close writes pending records and stops the writer.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
	return nil
}

func (r *Recorder) enqueue(rec record) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrRecorderClosed
	}
	if !r.opts.DropWhenFull {
		r.queue <- rec
		return nil
	}
	select {
	case r.queue <- rec:
		return nil
	default:
		metrics.Get().RecordStoreDrop(1)
		return ErrRecorderFull
	}
}

func (r *Recorder) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.opts.FlushInterval)
	defer ticker.Stop()

	pending := make([]record, 0, r.opts.BatchSize)
	for {
		select {
		case rec, ok := <-r.queue:
			if !ok {
				r.write(pending)
				return
			}
			if rec.flush != nil {
				r.write(pending)
				pending = pending[:0]
				close(rec.flush)
				continue
			}
			pending = append(pending, rec)
			if len(pending) >= r.opts.BatchSize {
				r.write(pending)
				pending = pending[:0]
			}
		case <-ticker.C:
			if len(pending) > 0 {
				r.write(pending)
				pending = pending[:0]
			}
		}
	}
}

// write stores one batch in a single transaction.
func (r *Recorder) write(batch []record) {
	if len(batch) == 0 {
		return
	}
	start := time.Now()
	nStats, nEvents, err := r.writeTx(context.Background(), batch)
	metrics.Get().RecordStoreWrite(nStats, nEvents, time.Since(start), err)
	if err != nil {
		r.logger.Error("History batch lost: " + err.Error())
	}
}

func (r *Recorder) writeTx(ctx context.Context, batch []record) (int, int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin history batch: %w", err)
	}
	defer tx.Rollback()

	runs, stats, evs := r.runs.WithTx(tx), r.stats.WithTx(tx), r.events.WithTx(tx)

	var tickStats []engine.TickStats
	nEvents := 0
	for _, rec := range batch {
		switch {
		case rec.stat != nil:
			tickStats = append(tickStats, *rec.stat)
		case rec.event != nil:
			ev := *rec.event
			if p, ok := ev.Payload.(events.ResetPayload); ok && ev.Type == events.EventTypeReset {
				err := runs.Create(ctx, RunRecord{
					RunID:           ev.RunID,
					Seed:            p.Seed,
					Population:      p.Population,
					InitialInfected: p.InitialInfected,
					StartedAt:       ev.Timestamp,
				})
				if err != nil {
					return 0, 0, err
				}
			}
			if err := evs.Append(ctx, ev); err != nil {
				return 0, 0, err
			}
			nEvents++
		}
	}
	if err := stats.AppendBatch(ctx, tickStats); err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit history batch: %w", err)
	}
	return len(tickStats), nEvents, nil
}
