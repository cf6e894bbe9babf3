package display

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/verte-zerg/wlsplit/internal/model"
	"github.com/verte-zerg/wlsplit/internal/splits"
)

// Headless polls the timer and logs progress instead of drawing.
type Headless struct {
	src   SnapshotSource
	tick  time.Duration
	clock clockwork.Clock

	last    model.Snapshot
	started bool
}

// NewHeadless builds a headless renderer polling src every tick.
func NewHeadless(src SnapshotSource, tick time.Duration, clock clockwork.Clock) *Headless {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	return &Headless{src: src, tick: tick, clock: clock}
}

// Run polls until ctx is cancelled.
func (h *Headless) Run(ctx context.Context) error {
	ticker := h.clock.NewTicker(h.tick)
	defer ticker.Stop()

	h.observe(h.src.Snapshot())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			h.observe(h.src.Snapshot())
		}
	}
}

func (h *Headless) observe(s model.Snapshot) {
	prev, started := h.last, h.started
	h.last, h.started = s, true
	if started && s.Status == prev.Status && s.Index == prev.Index && s.RunID == prev.RunID {
		return
	}
	ev := log.Info().
		Str("game", s.Game).
		Str("category", s.Category).
		Stringer("status", s.Status).
		Int("split", s.Index).
		Str("elapsed", splits.FormatShort(s.Elapsed))
	if s.Index > 0 && s.Index <= len(s.Splits) {
		done := s.Splits[s.Index-1]
		ev = ev.Str("last", done.Name).Bool("skipped", done.Skipped)
		if done.Diff != nil {
			ev = ev.Str("diff", splits.FormatDiff(*done.Diff))
		}
		if done.IsGold {
			ev = ev.Bool("gold", true)
		}
	}
	ev.Msg("display: state changed")
}
