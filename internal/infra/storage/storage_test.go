package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/PandemicSim/internal/domain/population"
	"github.com/MRamiBalles/PandemicSim/internal/engine"
	"github.com/MRamiBalles/PandemicSim/internal/events"
	"github.com/MRamiBalles/PandemicSim/internal/platform/config"
	"github.com/MRamiBalles/PandemicSim/internal/platform/logger"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitSQLite(MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInitSQLiteCreatesDirectory(t *testing.T) {
	path := t.TempDir() + "/nested/history.db"
	db, err := InitSQLite(path)
	require.NoError(t, err)
	defer db.Close()

	// Reopening an existing schema is fine.
	again, err := InitSQLite(path)
	require.NoError(t, err)
	again.Close()
}

func TestRunRepository(t *testing.T) {
	// Setup
	ctx := context.Background()
	repo := NewSQLiteRunRepository(openTestDB(t))
	older := RunRecord{RunID: "run-a", Seed: 1 << 63, Population: 100, InitialInfected: 2, StartedAt: time.Unix(100, 5)}
	newer := RunRecord{RunID: "run-b", Seed: 7, Population: 50, InitialInfected: 1, StartedAt: time.Unix(200, 0)}

	// Act
	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))
	require.NoError(t, repo.Create(ctx, RunRecord{RunID: "run-a", Population: 1, StartedAt: time.Unix(300, 0)}), "duplicate create is a no-op")

	// Assert
	got, err := repo.Get(ctx, "run-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, older.Seed, got.Seed, "seeds above MaxInt64 survive the round trip")
	assert.Equal(t, 100, got.Population)
	assert.True(t, older.StartedAt.Equal(got.StartedAt))

	missing, err := repo.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	runs, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-b", runs[0].RunID, "most recent first")
}

func TestStatsRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteStatsRepository(openTestDB(t))

	batch := []engine.TickStats{
		{RunID: "r", Tick: 2, Counts: population.Counts{Susceptible: 8, Infected: 2}, NewInfections: 1, Duration: time.Millisecond},
		{RunID: "r", Tick: 1, Counts: population.Counts{Susceptible: 9, Infected: 1}},
		{RunID: "other", Tick: 1},
	}
	require.NoError(t, repo.AppendBatch(ctx, batch))

	got, err := repo.GetByRunID(ctx, "r")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, batch[1], got[0], "ordered by tick")
	assert.Equal(t, batch[0], got[1])

	// Rewriting a tick replaces it.
	batch[0].Infected = 3
	require.NoError(t, repo.AppendBatch(ctx, batch[:1]))
	got, err = repo.GetByRunID(ctx, "r")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 3, got[1].Infected)
}

func TestEventRepository(t *testing.T) {
	// Setup
	ctx := context.Background()
	repo := NewSQLiteEventRepository(openTestDB(t))
	ts := time.Unix(1000, 0)
	evs := []events.Event{
		{ID: "e1", RunID: "r", Timestamp: ts, Type: events.EventTypeInfection, Tick: 1, AgentID: 4, SourceID: 0,
			Payload: events.TransitionPayload{DeadlineTicks: 3, FatedToDie: true}},
		{ID: "e2", RunID: "r", Timestamp: ts, Type: events.EventTypeDeath, Tick: 4, AgentID: 4, SourceID: events.NoAgent,
			Payload: events.ResolutionPayload{InfectedTicks: 3}},
		{ID: "e3", RunID: "r", Timestamp: ts, Type: events.EventTypeInfection, Tick: 2, AgentID: 5, SourceID: 0},
		{ID: "e4", RunID: "x", Timestamp: ts, Type: events.EventTypeInfection, Tick: 1, AgentID: 4, SourceID: 1},
	}

	// Act
	for _, e := range evs {
		require.NoError(t, repo.Append(ctx, e))
	}

	// Assert
	all, err := repo.GetByRunID(ctx, "r")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"e1", "e2", "e3"}, []string{all[0].ID, all[1].ID, all[2].ID}, "commit order, not tick order")
	assert.Less(t, all[0].Seq, all[1].Seq)
	assert.True(t, ts.Equal(all[0].Timestamp))

	var p events.TransitionPayload
	require.NoError(t, json.Unmarshal(all[0].RawPayload(), &p))
	assert.Equal(t, events.TransitionPayload{DeadlineTicks: 3, FatedToDie: true}, p)
	assert.JSONEq(t, "null", string(all[2].RawPayload()))

	infections, err := repo.GetByType(ctx, "r", events.EventTypeInfection)
	require.NoError(t, err)
	assert.Len(t, infections, 2)

	agent4, err := repo.GetByAgent(ctx, "r", 4)
	require.NoError(t, err)
	require.Len(t, agent4, 2)
	assert.Equal(t, events.EventTypeDeath, agent4[1].Type)

	assert.Error(t, repo.Append(ctx, evs[0]), "event IDs are unique")
}

// recordedRun runs a small epidemic to the end with a recorder attached.
func recordedRun(t *testing.T, db *sql.DB) *engine.Engine {
	t.Helper()
	opts := DefaultRecorderOptions()
	opts.BatchSize = 32
	opts.DropWhenFull = false
	rec := NewRecorder(db, logger.NewNopLogger(), opts)
	t.Cleanup(func() { rec.Close() })

	cfg := config.LowResourceConfig()
	cfg.Population = 60
	cfg.InitialInfected = 3
	cfg.InfectionRate = 0.5
	cfg.Seed = 21

	eng, err := engine.NewEngine(cfg, events.NewEventLog(rec), logger.NewNopLogger())
	require.NoError(t, err)
	eng.AddObserver(rec)

	limit := cfg.Population * (cfg.RecoveryTicks + cfg.RecoveryJitterTicks)
	for i := 0; i < limit && !eng.Done(); i++ {
		eng.Step()
	}
	require.True(t, eng.Done())
	require.NoError(t, rec.Flush())
	return eng
}

func TestRecorderStoresRun(t *testing.T) {
	// Setup
	ctx := context.Background()
	db := openTestDB(t)

	// Act
	eng := recordedRun(t, db)

	// Assert
	run, err := NewSQLiteRunRepository(db).Get(ctx, eng.RunID())
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, uint64(21), run.Seed)
	assert.Equal(t, 60, run.Population)
	assert.Equal(t, 3, run.InitialInfected)

	history := eng.History()
	stored, err := NewSQLiteStatsRepository(db).GetByRunID(ctx, eng.RunID())
	require.NoError(t, err)
	require.Len(t, stored, len(history)-1, "every tick but the seed state is observed")
	for i, s := range stored {
		assert.Equal(t, history[i+1].Tick, s.Tick)
		assert.Equal(t, history[i+1].Counts, s.Counts)
	}

	evs, err := NewSQLiteEventRepository(db).GetByRunID(ctx, eng.RunID())
	require.NoError(t, err)
	require.NotEmpty(t, evs)
	assert.Equal(t, events.EventTypeReset, evs[0].Type)
}

func TestReconstructorMatchesEngineHistory(t *testing.T) {
	// Setup
	ctx := context.Background()
	db := openTestDB(t)
	eng := recordedRun(t, db)
	r := NewReconstructor(NewSQLiteRunRepository(db), NewSQLiteEventRepository(db))

	// Act
	curve, err := r.RebuildCurve(ctx, eng.RunID())

	// Assert
	require.NoError(t, err)
	history := eng.History()
	require.Len(t, curve, len(history))
	for i := range history {
		assert.Equal(t, history[i].Tick, curve[i].Tick)
		assert.Equal(t, history[i].Counts, curve[i].Counts, "tick %d", history[i].Tick)
		assert.Equal(t, history[i].NewInfections, curve[i].NewInfections, "tick %d", history[i].Tick)
		assert.Equal(t, history[i].NewRecoveries, curve[i].NewRecoveries, "tick %d", history[i].Tick)
		assert.Equal(t, history[i].NewDeaths, curve[i].NewDeaths, "tick %d", history[i].Tick)
	}
}

func TestReconstructorUnknownRun(t *testing.T) {
	db := openTestDB(t)
	r := NewReconstructor(NewSQLiteRunRepository(db), NewSQLiteEventRepository(db))

	_, err := r.RebuildCurve(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestReconstructorRejectsImpossibleLedger(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	runs, evs := NewSQLiteRunRepository(db), NewSQLiteEventRepository(db)
	require.NoError(t, runs.Create(ctx, RunRecord{RunID: "r", Population: 2, InitialInfected: 0, StartedAt: time.Now()}))
	require.NoError(t, evs.Append(ctx, events.Event{ID: "d", RunID: "r", Timestamp: time.Now(), Type: events.EventTypeDeath, Tick: 1, AgentID: 0}))

	_, err := NewReconstructor(runs, evs).RebuildCurve(ctx, "r")
	assert.Error(t, err)
}

func TestAgentHistory(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	runs, evs := NewSQLiteRunRepository(db), NewSQLiteEventRepository(db)
	now := time.Now()
	require.NoError(t, evs.Append(ctx, events.Event{ID: "a", RunID: "r", Timestamp: now, Type: events.EventTypeInfection, Tick: 3, AgentID: 7, SourceID: 2,
		Payload: events.TransitionPayload{DeadlineTicks: 10}}))
	require.NoError(t, evs.Append(ctx, events.Event{ID: "b", RunID: "r", Timestamp: now, Type: events.EventTypeRecovery, Tick: 13, AgentID: 7, SourceID: events.NoAgent,
		Payload: events.ResolutionPayload{InfectedTicks: 10}}))

	recap, err := NewReconstructor(runs, evs).AgentHistory(ctx, "r", 7)

	require.NoError(t, err)
	require.Len(t, recap, 2)
	assert.Equal(t, "Infected by agent 2; will recover after 10 ticks.", recap[0].Summary)
	assert.Equal(t, "Recovered after 10 ticks.", recap[1].Summary)
	assert.Equal(t, int64(13), recap[1].Tick)
}

func TestRecorderAfterClose(t *testing.T) {
	rec := NewRecorder(openTestDB(t), logger.NewNopLogger(), DefaultRecorderOptions())
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close(), "closing twice is fine")

	assert.ErrorIs(t, rec.Append(events.Event{ID: "late"}), ErrRecorderClosed)
	assert.ErrorIs(t, rec.Flush(), ErrRecorderClosed)
	rec.OnTick(engine.TickStats{Tick: 1})
}

func TestRecorderFlushesOnInterval(t *testing.T) {
	db := openTestDB(t)
	opts := RecorderOptions{Buffer: 16, BatchSize: 1000, FlushInterval: 10 * time.Millisecond}
	rec := NewRecorder(db, logger.NewNopLogger(), opts)
	defer rec.Close()

	rec.OnTick(engine.TickStats{RunID: "r", Tick: 1})

	stats := NewSQLiteStatsRepository(db)
	require.Eventually(t, func() bool {
		got, err := stats.GetByRunID(context.Background(), "r")
		return err == nil && len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
