package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/models"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/analysis"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/session"
)

// fakeAnalyzer reports progress for each kind and fails color_analysis.
type fakeAnalyzer struct {
	mu      sync.Mutex
	inputs  []analysis.Input
	block   chan struct{}
	panics  bool
	running int
	maxSeen int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, in analysis.Input, progress analysis.ProgressFunc) *analysis.Outcome {
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.running++
	if f.running > f.maxSeen {
		f.maxSeen = f.running
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.running--
		f.mu.Unlock()
	}()

	if f.panics {
		panic("provider exploded")
	}
	if f.block != nil {
		<-f.block
	}

	out := &analysis.Outcome{Errors: map[models.AnalysisKind]string{}, Warnings: []string{"fell back to text"}}
	for i, kind := range models.AnalysisKinds {
		progress(analysis.Progress{Kind: kind, Completed: i + 1, Total: 4, Percent: (i + 1) * 25, Stage: "Finished " + kind.Title()})
		if kind == models.KindColor {
			out.Errors[kind] = "color_analysis: invalid JSON"
			out.Bundle.Set(kind, nil)
			continue
		}
		out.Bundle.Set(kind, json.RawMessage(`{"ok": true}`))
	}
	return out
}

func waitTerminal(t *testing.T, store *session.Store, sessionID, runID string) *models.AnalysisRun {
	t.Helper()
	var run *models.AnalysisRun
	require.Eventually(t, func() bool {
		r, err := store.Get(sessionID, runID)
		if err != nil {
			return false
		}
		run = r
		return r.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return run
}

func newRun(t *testing.T, store *session.Store, sessionID string) *models.AnalysisRun {
	t.Helper()
	run, err := store.CreateRun(sessionID, &models.AnalysisRun{
		Text:     "ad copy",
		Images:   []models.ExtractedImage{{Index: 0, Width: 10, Height: 10}},
		Warnings: []string{"image 2 skipped"},
	})
	require.NoError(t, err)
	return run
}

func TestPoolCompletesRunWithPartialFailure(t *testing.T) {
	store := session.NewStore(time.Hour)
	defer store.Close()
	fa := &fakeAnalyzer{}
	pool := NewPool(1, 4, store, fa)
	pool.Start()
	defer pool.Stop(context.Background())

	run := newRun(t, store, "s1")
	events, cancel, err := store.Subscribe("s1", run.ID)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, pool.Submit(Job{ID: run.ID, SessionID: "s1", Type: JobAnalysis}))

	var progress []int
	for ev := range events {
		progress = append(progress, ev.Progress)
	}
	assert.Contains(t, progress, 100)

	done := waitTerminal(t, store, "s1", run.ID)
	assert.Equal(t, models.RunCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)
	assert.NotNil(t, done.CompletedAt)
	assert.Empty(t, done.Text)
	assert.Equal(t, []string{"image 2 skipped", "fell back to text"}, done.Warnings)
	assert.Equal(t, "color_analysis: invalid JSON", done.KindErrors[models.KindColor])
	assert.Nil(t, done.Bundle.Get(models.KindColor))
	assert.NotNil(t, done.Bundle.Get(models.KindMarketing))

	require.Len(t, fa.inputs, 1)
	assert.Equal(t, "ad copy", fa.inputs[0].Text)
	assert.Len(t, fa.inputs[0].Images, 1)
}

func TestPoolRunsSequentiallyWithOneWorker(t *testing.T) {
	store := session.NewStore(time.Hour)
	defer store.Close()
	fa := &fakeAnalyzer{}
	pool := NewPool(1, 8, store, fa)
	pool.Start()
	defer pool.Stop(context.Background())

	var ids []string
	for _, sid := range []string{"a", "b", "c"} {
		run := newRun(t, store, sid)
		ids = append(ids, run.ID)
		require.NoError(t, pool.Submit(Job{ID: run.ID, SessionID: sid, Type: JobAnalysis}))
	}
	for i, sid := range []string{"a", "b", "c"} {
		waitTerminal(t, store, sid, ids[i])
	}
	assert.Equal(t, 1, fa.maxSeen)
}

func TestPoolRecoversFromPanic(t *testing.T) {
	store := session.NewStore(time.Hour)
	defer store.Close()
	pool := NewPool(1, 4, store, &fakeAnalyzer{panics: true})
	pool.Start()
	defer pool.Stop(context.Background())

	run := newRun(t, store, "s1")
	require.NoError(t, pool.Submit(Job{ID: run.ID, SessionID: "s1", Type: JobAnalysis}))

	done := waitTerminal(t, store, "s1", run.ID)
	assert.Equal(t, models.RunFailed, done.Status)
	assert.Contains(t, done.Error, "provider exploded")
}

func TestSubmitQueueFull(t *testing.T) {
	store := session.NewStore(time.Hour)
	defer store.Close()
	// Not started: nothing drains the queue.
	pool := NewPool(1, 1, store, &fakeAnalyzer{})

	require.NoError(t, pool.Submit(Job{ID: "1", Type: JobAnalysis}))
	assert.ErrorIs(t, pool.Submit(Job{ID: "2", Type: JobAnalysis}), ErrQueueFull)
	assert.Equal(t, 1, pool.QueueSize())
	assert.Equal(t, 1, pool.WorkerCount())
}

func TestStopDrainsAndRejects(t *testing.T) {
	store := session.NewStore(time.Hour)
	defer store.Close()
	fa := &fakeAnalyzer{block: make(chan struct{})}
	pool := NewPool(1, 4, store, fa)
	pool.Start()

	inFlight := newRun(t, store, "a")
	queued := newRun(t, store, "b")
	require.NoError(t, pool.Submit(Job{ID: inFlight.ID, SessionID: "a", Type: JobAnalysis}))
	require.Eventually(t, func() bool {
		r, _ := store.Get("a", inFlight.ID)
		return r.Status == models.RunRunning
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, pool.Submit(Job{ID: queued.ID, SessionID: "b", Type: JobAnalysis}))

	stopped := make(chan struct{})
	go func() {
		pool.Stop(context.Background())
		close(stopped)
	}()

	require.Eventually(t, func() bool {
		return pool.Submit(Job{ID: "late", Type: JobAnalysis}) == ErrStopped
	}, 5*time.Second, 10*time.Millisecond)
	close(fa.block)
	<-stopped

	r, err := store.Get("a", inFlight.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, r.Status, "in-flight run finishes")

	r, err = store.Get("b", queued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, r.Status, "queued run is failed on shutdown")
}

func TestUnknownJobTypeFailsRun(t *testing.T) {
	store := session.NewStore(time.Hour)
	defer store.Close()
	pool := NewPool(1, 4, store, &fakeAnalyzer{})
	pool.Start()
	defer pool.Stop(context.Background())

	run := newRun(t, store, "s1")
	require.NoError(t, pool.Submit(Job{ID: run.ID, SessionID: "s1", Type: "bogus"}))

	done := waitTerminal(t, store, "s1", run.ID)
	assert.Equal(t, models.RunFailed, done.Status)
	assert.Contains(t, done.Error, "unknown job type")
}
