package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/verte-zerg/wlsplit/internal/config"
	"github.com/verte-zerg/wlsplit/internal/control"
	"github.com/verte-zerg/wlsplit/internal/display"
	"github.com/verte-zerg/wlsplit/internal/logging"
	"github.com/verte-zerg/wlsplit/internal/model"
	"github.com/verte-zerg/wlsplit/internal/persist"
	"github.com/verte-zerg/wlsplit/internal/splits"
	"github.com/verte-zerg/wlsplit/internal/store"
	"github.com/verte-zerg/wlsplit/internal/syncutil"
	"github.com/verte-zerg/wlsplit/internal/timer"
	"github.com/verte-zerg/wlsplit/internal/tui"
)

const flushTimeout = 5 * time.Second

// runTimer wires the engine, command server, persistence worker and display,
// then blocks until quit, a signal, or the display closing.
func runTimer(parent context.Context, cfg model.Config) error {
	kind, err := display.ParseKind(cfg.Display)
	if err != nil {
		return err
	}
	if err := display.CheckSurface(kind, os.Stdout); err != nil {
		return err
	}
	logCloser, err := logging.Init(logging.Options{
		Path:   config.DefaultLogPath(),
		Level:  cfg.LogLevel,
		Stderr: kind == display.KindHeadless,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := logCloser.Close(); cerr != nil {
			_ = cerr
		}
	}()
	log.Info().
		Str("splits", cfg.SplitsPath).
		Str("display", string(kind)).
		Bool("deadlock_detection", syncutil.DeadlockEnabled).
		Msg("wlsplit starting")

	fsys := afero.NewOsFs()
	file, created, err := splits.LoadOrCreate(fsys, cfg.SplitsPath, splits.Defaults{
		Game:       cfg.Game,
		Category:   cfg.Category,
		SplitNames: cfg.SplitNames,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to load split file")
		return err
	}
	if created {
		log.Info().Str("path", cfg.SplitsPath).Msg("created split file")
	}

	var (
		workerOpts []persist.Option
		counter    tui.AttemptCounter
	)
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Warn().Err(fmt.Errorf("%w: %w", model.ErrPersistence, err)).
			Str("path", cfg.DBPath).
			Msg("attempt history disabled")
	} else {
		workerOpts = append(workerOpts, persist.WithRecorder(st))
		counter = st
	}
	worker := persist.NewWorker(fsys, cfg.SplitsPath, workerOpts...)
	engine := timer.New(file, timer.WithSink(worker))

	ctx, stopSignals := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv, err := control.Listen(cfg.SocketPath, engine, control.WithQuit(cancel))
	if err != nil {
		shutdown(engine, worker, st, false)
		return err
	}

	var renderer display.Renderer
	switch kind {
	case display.KindHeadless:
		renderer = display.NewHeadless(engine, cfg.Tick, nil)
	default:
		renderer = tui.NewRenderer(engine, counter, cfg.Tick, cancel)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return renderer.Run(gctx)
	})
	runErr := g.Wait()
	if cerr := srv.Close(); cerr != nil {
		log.Debug().Err(cerr).Msg("control: close")
	}

	shutdown(engine, worker, st, true)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error().Err(runErr).Msg("wlsplit stopped with error")
		return runErr
	}
	log.Info().Msg("wlsplit stopped")
	return nil
}

// shutdown queues the final save when requested, drains the worker and
// closes the history store, in that order.
func shutdown(engine *timer.Engine, worker *persist.Worker, st *store.Store, save bool) {
	if save {
		engine.Quit()
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := worker.Close(ctx); err != nil {
		log.Error().Err(err).Msg("persistence flush incomplete")
	}
	if n := worker.Failures(); n > 0 {
		log.Warn().Int64("failures", n).Msg("some persistence jobs failed")
	}
	if st != nil {
		if err := st.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close db")
		}
	}
}
