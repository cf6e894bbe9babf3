package timer

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/wlsplit/internal/model"
	"github.com/verte-zerg/wlsplit/internal/splits"
)

type recordingSink struct {
	mu       sync.Mutex
	saves    []splits.File
	attempts []model.Attempt
}

func (s *recordingSink) SaveSplits(f splits.File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, f)
}

func (s *recordingSink) RecordAttempt(a model.Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, a)
}

func (s *recordingSink) lastSave(t *testing.T) splits.File {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.saves)
	return s.saves[len(s.saves)-1]
}

func dur(d time.Duration) *time.Duration {
	return &d
}

func newTestEngine(t *testing.T, names ...string) (*Engine, *clockwork.FakeClock, *recordingSink) {
	t.Helper()
	f := splits.File{Game: "Game", Category: "Any%"}
	for _, n := range names {
		f.Splits = append(f.Splits, splits.Split{Name: n})
	}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	sink := &recordingSink{}
	return New(f, WithClock(clock), WithSink(sink)), clock, sink
}

func TestStartOnlyFromIdle(t *testing.T) {
	t.Parallel()

	e, clock, _ := newTestEngine(t, "A", "B")
	assert.True(t, e.Start())
	snap := e.Snapshot()
	assert.Equal(t, model.StatusRunning, snap.Status)
	assert.Equal(t, time.Duration(0), snap.Elapsed)
	runID := snap.RunID
	assert.NotEmpty(t, runID)

	clock.Advance(3 * time.Second)
	assert.False(t, e.Start(), "start while running is ignored")
	snap = e.Snapshot()
	assert.Equal(t, runID, snap.RunID)
	assert.Equal(t, 3*time.Second, snap.Elapsed)

	require.True(t, e.Pause())
	assert.False(t, e.Start(), "start while paused is ignored")
	assert.Equal(t, model.StatusPaused, e.Status())
}

func TestFullRunNoPriorBests(t *testing.T) {
	t.Parallel()

	e, clock, sink := newTestEngine(t, "A", "B", "C")
	require.True(t, e.Start())
	clock.Advance(10 * time.Second)
	require.True(t, e.Split())
	clock.Advance(5 * time.Second)
	require.True(t, e.Split())
	clock.Advance(3 * time.Second)
	require.True(t, e.Split())

	snap := e.Snapshot()
	assert.Equal(t, model.StatusFinished, snap.Status)
	assert.Equal(t, 3, snap.Index)
	assert.Equal(t, 18*time.Second, snap.Elapsed)

	wantSegments := []time.Duration{10 * time.Second, 5 * time.Second, 3 * time.Second}
	wantTotals := []time.Duration{10 * time.Second, 15 * time.Second, 18 * time.Second}
	for i, v := range snap.Splits {
		require.NotNil(t, v.Segment, v.Name)
		assert.Equal(t, wantSegments[i], *v.Segment, v.Name)
		assert.Equal(t, wantTotals[i], *v.Time, v.Name)
		assert.True(t, v.IsGold, "first timed run is gold for %s", v.Name)
	}

	saved := sink.lastSave(t)
	for i, s := range saved.Splits {
		require.NotNil(t, s.Best, s.Name)
		require.NotNil(t, s.Gold, s.Name)
		assert.Equal(t, wantTotals[i], *s.Best, s.Name)
		assert.Equal(t, wantSegments[i], *s.Gold, s.Name)
	}
	require.Len(t, sink.attempts, 1)
	assert.True(t, sink.attempts[0].Finished)
	assert.Equal(t, 18*time.Second, sink.attempts[0].Elapsed)

	clock.Advance(time.Minute)
	assert.Equal(t, 18*time.Second, e.Snapshot().Elapsed, "finished elapsed is frozen")
	assert.False(t, e.Split())
	assert.False(t, e.Skip())
	assert.False(t, e.Pause())
	assert.False(t, e.Start())
}

func TestWorseTimeKeepsStoredBest(t *testing.T) {
	t.Parallel()

	f := splits.File{Game: "G", Category: "C", Splits: []splits.Split{
		{Name: "A", Best: dur(8 * time.Second), Gold: dur(8 * time.Second)},
		{Name: "B"},
		{Name: "C"},
	}}
	clock := clockwork.NewFakeClock()
	sink := &recordingSink{}
	e := New(f, WithClock(clock), WithSink(sink))

	require.True(t, e.Start())
	clock.Advance(10 * time.Second)
	e.Split()
	snap := e.Snapshot()
	require.NotNil(t, snap.Splits[0].Diff)
	assert.Equal(t, 2*time.Second, *snap.Splits[0].Diff)
	assert.False(t, snap.Splits[0].IsGold)

	clock.Advance(5 * time.Second)
	e.Split()
	clock.Advance(3 * time.Second)
	e.Split()

	saved := sink.lastSave(t)
	assert.Equal(t, 8*time.Second, *saved.Splits[0].Best)
	assert.Equal(t, 8*time.Second, *saved.Splits[0].Gold)
	assert.Equal(t, 15*time.Second, *saved.Splits[1].Best)
	assert.Equal(t, 8*time.Second, *e.File().Splits[0].Best)
}

func TestBetterTimeReplacesBest(t *testing.T) {
	t.Parallel()

	f := splits.File{Splits: []splits.Split{
		{Name: "A", Best: dur(12 * time.Second), Gold: dur(11 * time.Second)},
		{Name: "B", Best: dur(20 * time.Second), Gold: dur(6 * time.Second)},
	}}
	clock := clockwork.NewFakeClock()
	sink := &recordingSink{}
	e := New(f, WithClock(clock), WithSink(sink))

	e.Start()
	clock.Advance(10 * time.Second)
	e.Split()
	clock.Advance(7 * time.Second)
	e.Split()

	saved := sink.lastSave(t)
	assert.Equal(t, 10*time.Second, *saved.Splits[0].Best)
	assert.Equal(t, 10*time.Second, *saved.Splits[0].Gold)
	assert.Equal(t, 17*time.Second, *saved.Splits[1].Best)
	assert.Equal(t, 6*time.Second, *saved.Splits[1].Gold, "7s segment does not beat 6s gold")

	snap := e.Snapshot()
	require.NotNil(t, snap.Splits[0].Diff)
	assert.Equal(t, -2*time.Second, *snap.Splits[0].Diff, "diff compares against pre-run best")
}

func TestPauseFreezesElapsed(t *testing.T) {
	t.Parallel()

	e, clock, _ := newTestEngine(t, "A")
	e.Start()
	clock.Advance(4 * time.Second)
	require.True(t, e.Pause())
	atPause := e.Snapshot().Elapsed
	assert.Equal(t, 4*time.Second, atPause)

	clock.Advance(30 * time.Second)
	assert.Equal(t, atPause, e.Snapshot().Elapsed)
	assert.False(t, e.Split(), "split is ignored while paused")
	assert.False(t, e.Skip(), "skip is ignored while paused")

	require.True(t, e.Pause())
	assert.Equal(t, atPause, e.Snapshot().Elapsed)
	assert.Equal(t, model.StatusRunning, e.Status())

	clock.Advance(time.Second)
	e.Split()
	assert.Equal(t, 5*time.Second, e.Snapshot().Elapsed)
}

func TestPauseNoopFromIdle(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestEngine(t, "A")
	assert.False(t, e.Pause())
	assert.Equal(t, model.StatusIdle, e.Status())
}

func TestResetFromEveryState(t *testing.T) {
	t.Parallel()

	setups := map[string]func(e *Engine, c *clockwork.FakeClock){
		"idle":    func(*Engine, *clockwork.FakeClock) {},
		"running": func(e *Engine, c *clockwork.FakeClock) { e.Start(); c.Advance(time.Second); e.Split() },
		"paused":  func(e *Engine, c *clockwork.FakeClock) { e.Start(); c.Advance(time.Second); e.Pause() },
		"finished": func(e *Engine, c *clockwork.FakeClock) {
			e.Start()
			c.Advance(time.Second)
			e.Split()
			e.Split()
		},
	}
	for name, setup := range setups {
		setup := setup
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			e, clock, _ := newTestEngine(t, "A", "B")
			setup(e, clock)
			require.True(t, e.Reset())

			snap := e.Snapshot()
			assert.Equal(t, model.StatusIdle, snap.Status)
			assert.Equal(t, 0, snap.Index)
			assert.Equal(t, time.Duration(0), snap.Elapsed)
			assert.Empty(t, snap.RunID)
			for _, v := range snap.Splits {
				assert.Nil(t, v.Time)
				assert.False(t, v.Skipped)
				assert.False(t, v.Current)
			}
			assert.True(t, e.Start(), "a fresh session can start")
		})
	}
}

func TestResetUnfinishedRunLeavesStore(t *testing.T) {
	t.Parallel()

	e, clock, sink := newTestEngine(t, "A", "B")
	e.Start()
	clock.Advance(2 * time.Second)
	e.Split()
	clock.Advance(time.Second)
	e.Pause()
	clock.Advance(10 * time.Second)
	e.Reset()

	assert.Empty(t, sink.saves)
	for _, s := range e.File().Splits {
		assert.Nil(t, s.Best)
		assert.Nil(t, s.Gold)
	}
	require.Len(t, sink.attempts, 1)
	a := sink.attempts[0]
	assert.False(t, a.Finished)
	assert.Equal(t, 3*time.Second, a.Elapsed)
	assert.Equal(t, 10*time.Second, a.PausedTotal)
	require.NotNil(t, a.Splits[0].Time)
	assert.Equal(t, 2*time.Second, *a.Splits[0].Time)
	assert.Nil(t, a.Splits[1].Time)
}

func TestResetAfterFinishKeepsBestsAndSaves(t *testing.T) {
	t.Parallel()

	e, clock, sink := newTestEngine(t, "A")
	e.Start()
	clock.Advance(7 * time.Second)
	e.Split()
	require.Len(t, sink.saves, 1)

	e.Reset()
	require.Len(t, sink.saves, 2)
	assert.Equal(t, 7*time.Second, *sink.lastSave(t).Splits[0].Best)
	assert.Equal(t, 7*time.Second, *e.File().Splits[0].Best)
	assert.Len(t, sink.attempts, 1, "reset after finish records nothing new")
}

func TestSkipLeavesStoredTimesUntouched(t *testing.T) {
	t.Parallel()

	f := splits.File{Splits: []splits.Split{
		{Name: "A"},
		{Name: "B", Best: dur(time.Hour), Gold: dur(time.Hour)},
		{Name: "C", Gold: dur(time.Hour)},
		{Name: "D"},
	}}
	clock := clockwork.NewFakeClock()
	sink := &recordingSink{}
	e := New(f, WithClock(clock), WithSink(sink))

	e.Start()
	clock.Advance(5 * time.Second)
	e.Split()
	clock.Advance(time.Second)
	require.True(t, e.Skip())
	clock.Advance(4 * time.Second)
	e.Split()
	clock.Advance(2 * time.Second)
	require.True(t, e.Skip())

	snap := e.Snapshot()
	assert.Equal(t, model.StatusFinished, snap.Status)
	assert.Equal(t, 12*time.Second, snap.Elapsed)
	assert.True(t, snap.Splits[1].Skipped)
	assert.Nil(t, snap.Splits[1].Time)
	assert.Nil(t, snap.Splits[2].Segment, "segment after a skip is not comparable")

	saved := sink.lastSave(t)
	assert.Equal(t, 5*time.Second, *saved.Splits[0].Best)
	assert.Equal(t, time.Hour, *saved.Splits[1].Best, "skipped split keeps its best")
	assert.Equal(t, time.Hour, *saved.Splits[1].Gold, "skipped split keeps its gold")
	assert.Equal(t, 10*time.Second, *saved.Splits[2].Best)
	assert.Equal(t, time.Hour, *saved.Splits[2].Gold, "gold needs a timed predecessor")
	assert.Nil(t, saved.Splits[3].Best, "skipped split stays absent")
	assert.Nil(t, saved.Splits[3].Gold)

	data, err := splits.Encode(saved)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[[splits]]\n  name = \"D\"\n")
	assert.NotContains(t, string(data), "00:00:00.000", "skips never write sentinel times")
}

func TestSnapshotIsDetached(t *testing.T) {
	t.Parallel()

	f := splits.File{Splits: []splits.Split{{Name: "A", Best: dur(time.Second)}, {Name: "B"}}}
	e := New(f, WithClock(clockwork.NewFakeClock()))
	e.Start()
	snap := e.Snapshot()
	*snap.Splits[0].Best = time.Hour
	snap.Splits[0].Name = "changed"

	again := e.Snapshot()
	assert.Equal(t, time.Second, *again.Splits[0].Best)
	assert.Equal(t, "A", again.Splits[0].Name)
	assert.True(t, again.Splits[0].Current)
	assert.Equal(t, model.StatusRunning, again.Status, "snapshot has no side effects")
}

func TestEngineCopiesInputFile(t *testing.T) {
	t.Parallel()

	f := splits.File{Splits: []splits.Split{{Name: "A", Best: dur(time.Second)}}}
	e := New(f)
	*f.Splits[0].Best = time.Hour
	f.Splits[0].Name = "B"
	assert.Equal(t, time.Second, *e.File().Splits[0].Best)
	assert.Equal(t, "A", e.File().Splits[0].Name)
}

func TestQuitSavesCurrentFile(t *testing.T) {
	t.Parallel()

	e, _, sink := newTestEngine(t, "A")
	require.True(t, e.Quit())
	assert.False(t, e.Quit(), "quit applies once")
	require.Len(t, sink.saves, 1)
	assert.Equal(t, "A", sink.saves[0].Splits[0].Name)
}

func TestConcurrentSnapshotsDuringTransitions(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestEngine(t, "A", "B", "C", "D")
	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := e.Snapshot()
				if snap.Index < 0 || snap.Index > len(snap.Splits) {
					t.Errorf("index out of range: %d", snap.Index)
					return
				}
				if (snap.Index == len(snap.Splits)) != (snap.Status == model.StatusFinished) {
					t.Errorf("torn snapshot: index=%d status=%s", snap.Index, snap.Status)
					return
				}
			}
		}()
	}
	for i := 0; i < 200; i++ {
		e.Start()
		e.Split()
		e.Pause()
		e.Pause()
		e.Skip()
		e.Split()
		e.Split()
		e.Reset()
	}
	close(done)
	wg.Wait()
}
