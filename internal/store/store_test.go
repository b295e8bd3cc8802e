package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/conductor/internal/events"
	"github.com/msageha/conductor/internal/model"
)

type memRecorder struct {
	mu    sync.Mutex
	recs  []events.Record
	err   error
	delay time.Duration
}

func (m *memRecorder) Record(_ context.Context, rec events.Record) error {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return m.err
}

func (m *memRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

func sampleTrace() *model.ExecutionTrace {
	return &model.ExecutionTrace{
		RunID:    "run_0000000001_aaaaaaaa",
		Intent:   "fix api-gateway timeouts",
		TargetID: "cto",
		Mode:     "graph",
		Phases:   model.Phases,
		Counts:   model.TaskCounts{Total: 2, Approved: 1, Blocked: 1},
		Results: []model.LeafResult{
			{NodeID: "api", Status: model.LeafCompleted, Risk: model.RiskAssessment{Score: 3, Level: model.ApprovalCaptain, Approved: true}, Duration: 1500 * time.Millisecond},
			{NodeID: "web", Status: model.LeafBlocked, Risk: model.RiskAssessment{Score: 9, Level: model.ApprovalHuman}},
		},
		Status:   model.RunPartialBlocked,
		Duration: 2 * time.Second,
	}
}

func TestMulti_RecordsAllAndJoinsErrors(t *testing.T) {
	ok := &memRecorder{}
	bad := &memRecorder{err: errors.New("disk full")}
	m := Multi{ok, nil, bad}

	err := m.Record(context.Background(), events.Record{Kind: events.KindPhase})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, ok.count())
	assert.Equal(t, 1, bad.count())

	assert.NoError(t, Multi{ok}.Record(context.Background(), events.Record{}))
}

func TestAsync_DeliversAndSwallowsErrors(t *testing.T) {
	inner := &memRecorder{err: errors.New("boom")}
	a := NewAsync(inner, 8, nil)

	for i := 0; i < 5; i++ {
		assert.NoError(t, a.Record(context.Background(), events.Record{Kind: events.KindPhase}))
	}
	require.NoError(t, a.Close(context.Background()))

	assert.Equal(t, 5, inner.count())
	assert.Equal(t, int64(5), a.Failed())
	assert.NoError(t, a.Record(context.Background(), events.Record{}), "record after close is a no-op")
}

func TestAsync_NeverBlocks(t *testing.T) {
	inner := &memRecorder{delay: 50 * time.Millisecond}
	a := NewAsync(inner, 1, nil)

	start := time.Now()
	for i := 0; i < 20; i++ {
		_ = a.Record(context.Background(), events.Record{})
	}
	assert.Less(t, time.Since(start), 40*time.Millisecond)
	assert.Positive(t, a.Dropped())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.Close(ctx))
}

func openTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "conductor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_RecordTrace(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()
	tr := sampleTrace()

	require.NoError(t, s.Record(ctx, events.NewPhaseRecord(tr.RunID, "", model.PhaseIntake, nil)))
	require.NoError(t, s.Record(ctx, events.NewPhaseRecord(tr.RunID, model.PhaseIntake, model.PhaseTriage, map[string]any{"matches": 1})))
	require.NoError(t, s.Record(ctx, events.NewTraceRecord(tr)))

	runs, err := s.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, tr.RunID, runs[0].RunID)
	assert.Equal(t, model.RunPartialBlocked, runs[0].Status)
	assert.Equal(t, 1, runs[0].Blocked)
	assert.Equal(t, int64(2000), runs[0].DurationMs)

	got, err := s.Trace(ctx, tr.RunID)
	require.NoError(t, err)
	assert.Equal(t, tr.Intent, got.Intent)
	assert.Len(t, got.Results, 2)
	assert.Equal(t, 1500*time.Millisecond, got.Results[0].Duration)

	evs, err := s.Events(ctx, tr.RunID)
	require.NoError(t, err)
	require.Len(t, evs, 3)
	assert.Equal(t, model.PhaseIntake, evs[0].Phase)
	assert.Equal(t, events.KindTrace, evs[2].Kind)
	assert.NotEqual(t, evs[0].ID, evs[1].ID)
}

func TestSQLite_TraceRecordedTwiceReplaces(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()
	tr := sampleTrace()

	require.NoError(t, s.Record(ctx, events.NewTraceRecord(tr)))
	tr.Status = model.RunCompleted
	tr.Results = tr.Results[:1]
	require.NoError(t, s.Record(ctx, events.NewTraceRecord(tr)))

	runs, err := s.RecentRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunCompleted, runs[0].Status)
}

func TestSQLite_TraceNotFound(t *testing.T) {
	s := openTestDB(t)
	_, err := s.Trace(context.Background(), "run_missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}
