// Package timer owns the run state machine. An Engine holds exactly one live
// run session and the split store it compares against.
//
// Every transition is a single critical section under the engine lock, so a
// concurrent Snapshot never observes a partially applied transition. Side
// effects that perform I/O (saving the split file, recording the attempt) are
// handed to the Sink after the lock is released.
package timer

import (
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/verte-zerg/wlsplit/internal/model"
	"github.com/verte-zerg/wlsplit/internal/splits"
	"github.com/verte-zerg/wlsplit/internal/syncutil"
)

// Sink receives the engine's persistence side effects. Implementations must
// not block for long; the command path waits on them.
type Sink interface {
	SaveSplits(f splits.File)
	RecordAttempt(a model.Attempt)
}

type nopSink struct{}

func (nopSink) SaveSplits(splits.File)      {}
func (nopSink) RecordAttempt(model.Attempt) {}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source. Defaults to the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithSink sets the receiver of save and history side effects.
func WithSink(s Sink) Option {
	return func(e *Engine) {
		if s != nil {
			e.sink = s
		}
	}
}

// session is the single live run.
type session struct {
	id          string
	status      model.Status
	startedAt   time.Time
	pausedAt    time.Time
	pausedTotal time.Duration
	index       int
	// times holds the recorded cumulative end time per completed split; nil
	// marks a skipped split.
	times []*time.Duration
	final time.Duration
	// compare is the split store as it was when the run started; diffs and
	// gold markers are computed against it even after bests are committed.
	compare []splits.Split
}

// Engine is the timer state machine.
type Engine struct {
	mu    syncutil.RWMutex
	clock clockwork.Clock
	sink  Sink
	file  splits.File
	run   session
	quit  bool
}

// New creates an idle engine over a private copy of f.
func New(f splits.File, opts ...Option) *Engine {
	e := &Engine{
		clock: clockwork.NewRealClock(),
		sink:  nopSink{},
		file:  f.Clone(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.run = e.freshSession()
	return e
}

func (e *Engine) freshSession() session {
	return session{status: model.StatusIdle, times: make([]*time.Duration, 0, len(e.file.Splits))}
}

// Start begins a run. It applies only from Idle.
func (e *Engine) Start() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run.status != model.StatusIdle {
		return false
	}
	e.run = e.freshSession()
	e.run.id = uuid.NewString()
	e.run.status = model.StatusRunning
	e.run.startedAt = e.clock.Now()
	e.run.compare = e.file.Clone().Splits
	log.Info().Str("run", e.run.id).Msg("timer: run started")
	return true
}

// Split records the current elapsed time for the current split and advances.
// Finishing the last split commits bests and golds.
func (e *Engine) Split() bool {
	e.mu.Lock()
	if e.run.status != model.StatusRunning {
		e.mu.Unlock()
		return false
	}
	elapsed := e.elapsedLocked(e.clock.Now())
	e.run.times = append(e.run.times, &elapsed)
	e.run.index++
	log.Debug().Int("split", e.run.index).Dur("elapsed", elapsed).Msg("timer: split")
	file, attempt, finished := e.advanceLocked(elapsed)
	e.mu.Unlock()

	if finished {
		e.sink.SaveSplits(file)
		e.sink.RecordAttempt(attempt)
	}
	return true
}

// Skip advances past the current split without recording a time for it.
func (e *Engine) Skip() bool {
	e.mu.Lock()
	if e.run.status != model.StatusRunning {
		e.mu.Unlock()
		return false
	}
	elapsed := e.elapsedLocked(e.clock.Now())
	e.run.times = append(e.run.times, nil)
	e.run.index++
	log.Debug().Int("split", e.run.index).Msg("timer: skip")
	file, attempt, finished := e.advanceLocked(elapsed)
	e.mu.Unlock()

	if finished {
		e.sink.SaveSplits(file)
		e.sink.RecordAttempt(attempt)
	}
	return true
}

// advanceLocked finishes the run when the index reached the split count.
func (e *Engine) advanceLocked(elapsed time.Duration) (splits.File, model.Attempt, bool) {
	if e.run.index < len(e.file.Splits) {
		return splits.File{}, model.Attempt{}, false
	}
	e.run.status = model.StatusFinished
	e.run.final = elapsed
	improved := commitBests(&e.file, e.run.times)
	log.Info().
		Str("run", e.run.id).
		Dur("elapsed", elapsed).
		Int("improved", improved).
		Msg("timer: run finished")
	return e.file.Clone(), e.attemptLocked(true), true
}

// Pause toggles between Running and Paused.
func (e *Engine) Pause() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock.Now()
	switch e.run.status {
	case model.StatusRunning:
		e.run.status = model.StatusPaused
		e.run.pausedAt = now
		log.Debug().Msg("timer: paused")
		return true
	case model.StatusPaused:
		e.run.pausedTotal += now.Sub(e.run.pausedAt)
		e.run.pausedAt = time.Time{}
		e.run.status = model.StatusRunning
		log.Debug().Dur("paused_total", e.run.pausedTotal).Msg("timer: resumed")
		return true
	default:
		return false
	}
}

// Reset discards the live run and returns to Idle. A finished run's split
// file is saved again; an unfinished run is recorded as an attempt but never
// touches the split store.
func (e *Engine) Reset() bool {
	e.mu.Lock()
	prev := e.run.status
	var (
		file    splits.File
		attempt model.Attempt
	)
	switch prev {
	case model.StatusFinished:
		file = e.file.Clone()
	case model.StatusRunning, model.StatusPaused:
		now := e.clock.Now()
		e.run.final = e.elapsedLocked(now)
		if prev == model.StatusPaused {
			e.run.pausedTotal += now.Sub(e.run.pausedAt)
		}
		attempt = e.attemptLocked(false)
	}
	e.run = e.freshSession()
	e.mu.Unlock()

	log.Info().Stringer("from", prev).Msg("timer: reset")
	switch prev {
	case model.StatusFinished:
		e.sink.SaveSplits(file)
	case model.StatusRunning, model.StatusPaused:
		e.sink.RecordAttempt(attempt)
	}
	return true
}

// Quit hands the current split store to the sink for a final save. It
// applies once; the caller is responsible for shutting the process down.
func (e *Engine) Quit() bool {
	e.mu.Lock()
	if e.quit {
		e.mu.Unlock()
		return false
	}
	e.quit = true
	file := e.file.Clone()
	e.mu.Unlock()

	e.sink.SaveSplits(file)
	log.Info().Msg("timer: quit requested")
	return true
}

// File returns a copy of the split store.
func (e *Engine) File() splits.File {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.file.Clone()
}

// Status returns the current run status.
func (e *Engine) Status() model.Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.run.status
}

// elapsedLocked computes run time at now, excluding paused intervals.
func (e *Engine) elapsedLocked(now time.Time) time.Duration {
	switch e.run.status {
	case model.StatusIdle:
		return 0
	case model.StatusFinished:
		return e.run.final
	case model.StatusPaused:
		now = e.run.pausedAt
	}
	elapsed := now.Sub(e.run.startedAt) - e.run.pausedTotal
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

func (e *Engine) attemptLocked(finished bool) model.Attempt {
	a := model.Attempt{
		ID:          e.run.id,
		Game:        e.file.Game,
		Category:    e.file.Category,
		StartedAt:   e.run.startedAt,
		EndedAt:     e.clock.Now(),
		Finished:    finished,
		Elapsed:     e.run.final,
		PausedTotal: e.run.pausedTotal,
		Splits:      make([]model.AttemptSplit, len(e.file.Splits)),
	}
	for i, s := range e.file.Splits {
		a.Splits[i].Name = s.Name
		if i < len(e.run.times) && e.run.times[i] != nil {
			t := *e.run.times[i]
			a.Splits[i].Time = &t
		}
	}
	return a
}

// commitBests folds a finished run's recorded times into the split store and
// returns how many stored values improved. Times are compared at the
// persisted millisecond precision.
func commitBests(f *splits.File, times []*time.Duration) int {
	improved := 0
	for i := range f.Splits {
		if i >= len(times) || times[i] == nil {
			continue
		}
		total := times[i].Truncate(time.Millisecond)
		if better(f.Splits[i].Best, total) {
			f.Splits[i].Best = &total
			improved++
		}
		seg, ok := segmentAt(times, i)
		if !ok {
			continue
		}
		seg = seg.Truncate(time.Millisecond)
		if better(f.Splits[i].Gold, seg) {
			f.Splits[i].Gold = &seg
			improved++
		}
	}
	return improved
}

// segmentAt returns times[i] - times[i-1] with times[-1] = 0. A skipped
// predecessor makes the segment span several splits, so it is not
// comparable.
func segmentAt(times []*time.Duration, i int) (time.Duration, bool) {
	if i >= len(times) || times[i] == nil {
		return 0, false
	}
	if i == 0 {
		return *times[0], true
	}
	if times[i-1] == nil {
		return 0, false
	}
	return *times[i] - *times[i-1], true
}

func better(stored *time.Duration, candidate time.Duration) bool {
	return stored == nil || candidate < *stored
}
