package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/downstream/internal/matrix"
	"github.com/roach88/downstream/internal/runner"
	"github.com/roach88/downstream/internal/store"
	"github.com/roach88/downstream/internal/testutil"
)

// TestSupervisor_Begin cancels the older holder of a key.
func TestSupervisor_Begin(t *testing.T) {
	s := NewSupervisor()

	ctx1, superseded, done1 := s.Begin(context.Background(), "schedule/main", "run-1")
	assert.Empty(t, superseded)
	assert.Equal(t, "run-1", s.Inflight("schedule/main"))

	ctx2, superseded, done2 := s.Begin(context.Background(), "schedule/main", "run-2")
	assert.Equal(t, "run-1", superseded)
	require.Error(t, ctx1.Err(), "older run must be cancelled")
	require.NoError(t, ctx2.Err(), "newer run must be live")
	assert.Equal(t, "run-2", s.Inflight("schedule/main"))

	// The superseded run finishing must not release the newer holder.
	done1()
	assert.Equal(t, "run-2", s.Inflight("schedule/main"))

	done2()
	assert.Empty(t, s.Inflight("schedule/main"))
}

// TestSupervisor_DistinctKeys do not interfere.
func TestSupervisor_DistinctKeys(t *testing.T) {
	s := NewSupervisor()
	ctx1, _, done1 := s.Begin(context.Background(), "pr/41", "run-1")
	defer done1()
	_, superseded, done2 := s.Begin(context.Background(), "pr/42", "run-2")
	defer done2()

	assert.Empty(t, superseded)
	require.NoError(t, ctx1.Err())
}

// blockingRunner parks on the test step until its context is cancelled,
// simulating an in-flight unit at the moment a newer run arrives.
type blockingRunner struct {
	inner   runner.Runner
	started chan struct{}
	once    sync.Once
}

func (b *blockingRunner) Run(ctx context.Context, step runner.Step) (runner.Result, error) {
	if step.Name == "test" {
		b.once.Do(func() { close(b.started) })
		<-ctx.Done()
		return runner.Result{}, ctx.Err()
	}
	return b.inner.Run(ctx, step)
}

// TestRun_Supersession starts a second run for the same concurrency key
// while the first is in flight: the first is abandoned and marked
// superseded, its in-flight unit recorded as skipped, and the second run
// completes normally in its own environment.
func TestRun_Supersession(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	scripted := testutil.NewScriptedRunner(verifiedSteps())
	blocking := &blockingRunner{inner: scripted, started: make(chan struct{})}

	firstRun := true
	e := New(st, testOverlay, t.TempDir(),
		WithRunnerFactory(func(u matrix.ExecutionUnit) runner.Runner {
			if firstRun {
				return blocking
			}
			return scripted.WithUnit(u.Key)
		}),
		WithTokenGenerator(NewFixedGenerator("run-old", "run-new")),
		WithParallelism(1),
	)

	type runOut struct {
		result matrix.RunResult
		err    error
	}
	oldDone := make(chan runOut, 1)
	go func() {
		res, err := e.Run(context.Background(), oneProject("3.12"), testContext(), "schedule/main")
		oldDone <- runOut{res, err}
	}()

	select {
	case <-blocking.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never reached its test step")
	}

	firstRun = false
	newResult, err := e.Run(context.Background(), oneProject("3.12"), testContext(), "schedule/main")
	require.NoError(t, err)
	assert.True(t, newResult.AllPassed(), "newer run's environment must be unaffected")

	out := <-oldDone
	require.NoError(t, out.err)
	require.Len(t, out.result.Units, 1)
	assert.Equal(t, matrix.OutcomeSkipped, out.result.Units[0].Outcome)
	assert.Equal(t, "SUPERSEDED", out.result.Units[0].Detail)

	oldRec, err := st.ReadRun(context.Background(), "run-old")
	require.NoError(t, err)
	assert.True(t, oldRec.Superseded)

	newRec, err := st.ReadRun(context.Background(), "run-new")
	require.NoError(t, err)
	assert.False(t, newRec.Superseded)
}
