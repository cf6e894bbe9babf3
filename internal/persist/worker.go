// Package persist performs the engine's persistence side effects off the
// command path: split file saves and attempt history records run on a single
// worker goroutine in submission order.
package persist

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/verte-zerg/wlsplit/internal/model"
	"github.com/verte-zerg/wlsplit/internal/splits"
	"github.com/verte-zerg/wlsplit/internal/syncutil"
)

const (
	defaultQueue  = 64
	recordTimeout = 5 * time.Second
)

// ErrClosed marks jobs submitted after Close.
var ErrClosed = errors.New("persistence worker closed")

// AttemptRecorder stores finished or abandoned attempts.
type AttemptRecorder interface {
	InsertAttempt(ctx context.Context, a model.Attempt) error
}

type job struct {
	file    *splits.File
	attempt *model.Attempt
}

// Worker serializes persistence jobs.
type Worker struct {
	fs       afero.Fs
	path     string
	recorder AttemptRecorder

	mu     syncutil.Mutex
	closed bool
	jobs   chan job
	done   chan struct{}

	saves    atomic.Int64
	failures atomic.Int64
}

// Option configures a Worker.
type Option func(*Worker)

// WithRecorder sets where attempts are recorded. Without one, attempts are
// dropped.
func WithRecorder(r AttemptRecorder) Option {
	return func(w *Worker) {
		w.recorder = r
	}
}

// WithQueueSize sets the job buffer size.
func WithQueueSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.jobs = make(chan job, n)
		}
	}
}

// NewWorker starts a worker saving the split file at path on fsys.
func NewWorker(fsys afero.Fs, path string, opts ...Option) *Worker {
	w := &Worker{
		fs:   fsys,
		path: path,
		jobs: make(chan job, defaultQueue),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.run()
	return w
}

// SaveSplits queues a split file save.
func (w *Worker) SaveSplits(f splits.File) {
	f = f.Clone()
	w.submit(job{file: &f})
}

// RecordAttempt queues an attempt record.
func (w *Worker) RecordAttempt(a model.Attempt) {
	w.submit(job{attempt: &a})
}

func (w *Worker) submit(j job) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.failures.Add(1)
		log.Error().Err(fmt.Errorf("%w: %w", model.ErrPersistence, ErrClosed)).Msg("persist: job dropped")
		return
	}
	w.jobs <- j
}

func (w *Worker) run() {
	defer close(w.done)
	for j := range w.jobs {
		if j.file != nil {
			w.save(*j.file)
		}
		if j.attempt != nil {
			w.record(*j.attempt)
		}
	}
}

func (w *Worker) save(f splits.File) {
	if err := splits.Save(w.fs, w.path, f); err != nil {
		w.failures.Add(1)
		log.Error().
			Err(fmt.Errorf("%w: %w", model.ErrPersistence, err)).
			Str("path", w.path).
			Msg("persist: failed to save split file")
		return
	}
	w.saves.Add(1)
	log.Debug().Str("path", w.path).Msg("persist: split file saved")
}

func (w *Worker) record(a model.Attempt) {
	if w.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := w.recorder.InsertAttempt(ctx, a); err != nil {
		w.failures.Add(1)
		log.Error().
			Err(fmt.Errorf("%w: %w", model.ErrPersistence, err)).
			Str("attempt", a.ID).
			Msg("persist: failed to record attempt")
		return
	}
	log.Debug().Str("attempt", a.ID).Bool("finished", a.Finished).Msg("persist: attempt recorded")
}

// Saves returns how many split file saves succeeded.
func (w *Worker) Saves() int64 {
	return w.saves.Load()
}

// Failures returns how many jobs failed or were dropped.
func (w *Worker) Failures() int64 {
	return w.failures.Load()
}

// Close stops accepting jobs and waits for queued ones to finish or ctx to
// expire.
func (w *Worker) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: shutdown flush interrupted: %w", model.ErrPersistence, ctx.Err())
	}
}
