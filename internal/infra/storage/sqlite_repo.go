package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MRamiBalles/PandemicSim/internal/domain/population"
	"github.com/MRamiBalles/PandemicSim/internal/engine"
	"github.com/MRamiBalles/PandemicSim/internal/events"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ---------------------------------------------------------
// SQLiteRunRepository
// ---------------------------------------------------------

// SQLiteRunRepository implements RunRepository for SQLite.
type SQLiteRunRepository struct {
	db dbtx
}

func NewSQLiteRunRepository(db *sql.DB) *SQLiteRunRepository {
	return &SQLiteRunRepository{db: db}
}

// WithTx returns a repository writing inside tx.
func (r *SQLiteRunRepository) WithTx(tx *sql.Tx) *SQLiteRunRepository {
	return &SQLiteRunRepository{db: tx}
}

func (r *SQLiteRunRepository) Create(ctx context.Context, run RunRecord) error {
	query := `
		INSERT INTO runs (run_id, seed, population, initial_infected, started_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		run.RunID, int64(run.Seed), run.Population, run.InitialInfected, run.StartedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (r *SQLiteRunRepository) Get(ctx context.Context, runID string) (*RunRecord, error) {
	query := `SELECT run_id, seed, population, initial_infected, started_at FROM runs WHERE run_id = ?`
	run, err := scanRun(r.db.QueryRowContext(ctx, query, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

func (r *SQLiteRunRepository) List(ctx context.Context) ([]RunRecord, error) {
	query := `SELECT run_id, seed, population, initial_infected, started_at FROM runs ORDER BY started_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (RunRecord, error) {
	var run RunRecord
	var seed, startedAt int64
	if err := s.Scan(&run.RunID, &seed, &run.Population, &run.InitialInfected, &startedAt); err != nil {
		return RunRecord{}, err
	}
	run.Seed = uint64(seed)
	run.StartedAt = time.Unix(0, startedAt)
	return run, nil
}

// ---------------------------------------------------------
// SQLiteStatsRepository
// ---------------------------------------------------------

// SQLiteStatsRepository implements StatsRepository for SQLite.
type SQLiteStatsRepository struct {
	db dbtx
}

func NewSQLiteStatsRepository(db *sql.DB) *SQLiteStatsRepository {
	return &SQLiteStatsRepository{db: db}
}

// WithTx returns a repository writing inside tx.
func (r *SQLiteStatsRepository) WithTx(tx *sql.Tx) *SQLiteStatsRepository {
	return &SQLiteStatsRepository{db: tx}
}

func (r *SQLiteStatsRepository) AppendBatch(ctx context.Context, stats []engine.TickStats) error {
	query := `
		INSERT OR REPLACE INTO tick_stats (run_id, tick, susceptible, infected, recovered, dead, new_infections, new_recoveries, new_deaths, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, s := range stats {
		_, err := r.db.ExecContext(ctx, query,
			s.RunID, s.Tick, s.Susceptible, s.Infected, s.Recovered, s.Dead,
			s.NewInfections, s.NewRecoveries, s.NewDeaths, int64(s.Duration),
		)
		if err != nil {
			return fmt.Errorf("failed to append tick %d of run %s: %w", s.Tick, s.RunID, err)
		}
	}
	return nil
}

func (r *SQLiteStatsRepository) GetByRunID(ctx context.Context, runID string) ([]engine.TickStats, error) {
	query := `SELECT run_id, tick, susceptible, infected, recovered, dead, new_infections, new_recoveries, new_deaths, duration_ns FROM tick_stats WHERE run_id = ? ORDER BY tick ASC`
	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tick stats: %w", err)
	}
	defer rows.Close()

	var out []engine.TickStats
	for rows.Next() {
		var s engine.TickStats
		var c population.Counts
		var duration int64
		err := rows.Scan(&s.RunID, &s.Tick, &c.Susceptible, &c.Infected, &c.Recovered, &c.Dead,
			&s.NewInfections, &s.NewRecoveries, &s.NewDeaths, &duration)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tick stats: %w", err)
		}
		s.Counts = c
		s.Duration = time.Duration(duration)
		out = append(out, s)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------
// SQLiteEventRepository
// ---------------------------------------------------------

// SQLiteEventRepository implements EventRepository for SQLite.
type SQLiteEventRepository struct {
	db dbtx
}

func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

// WithTx returns a repository writing inside tx.
func (r *SQLiteEventRepository) WithTx(tx *sql.Tx) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: tx}
}

func (r *SQLiteEventRepository) Append(ctx context.Context, event events.Event) error {
	payloadBytes, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO events (id, run_id, timestamp, event_type, tick, agent_id, source_id, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		event.ID, event.RunID, event.Timestamp.UnixNano(), string(event.Type), event.Tick,
		event.AgentID, event.SourceID, string(payloadBytes),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

const selectEvents = `SELECT seq, id, run_id, timestamp, event_type, tick, agent_id, source_id, payload FROM events`

func (r *SQLiteEventRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]StoredEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var e StoredEvent
		var ts int64
		var evType, payload string
		err := rows.Scan(&e.Seq, &e.ID, &e.RunID, &ts, &evType, &e.Tick, &e.AgentID, &e.SourceID, &payload)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Timestamp = time.Unix(0, ts)
		e.Type = events.EventType(evType)
		e.Payload = json.RawMessage(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteEventRepository) GetByRunID(ctx context.Context, runID string) ([]StoredEvent, error) {
	return r.getMany(ctx, selectEvents+` WHERE run_id = ? ORDER BY seq ASC`, runID)
}

func (r *SQLiteEventRepository) GetByType(ctx context.Context, runID string, eventType events.EventType) ([]StoredEvent, error) {
	return r.getMany(ctx, selectEvents+` WHERE run_id = ? AND event_type = ? ORDER BY seq ASC`, runID, string(eventType))
}

func (r *SQLiteEventRepository) GetByAgent(ctx context.Context, runID string, agentID int) ([]StoredEvent, error) {
	return r.getMany(ctx, selectEvents+` WHERE run_id = ? AND agent_id = ? ORDER BY seq ASC`, runID, agentID)
}
