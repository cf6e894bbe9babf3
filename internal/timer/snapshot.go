package timer

import (
	"time"

	"github.com/verte-zerg/wlsplit/internal/model"
)

// Snapshot returns a render-facing view of the engine. It only takes the
// read lock and never mutates state; the result shares no memory with the
// engine.
func (e *Engine) Snapshot() model.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	elapsed := e.elapsedLocked(e.clock.Now())
	snap := model.Snapshot{
		Game:     e.file.Game,
		Category: e.file.Category,
		RunID:    e.run.id,
		Status:   e.run.status,
		Index:    e.run.index,
		Elapsed:  elapsed,
		Splits:   make([]model.SplitView, len(e.file.Splits)),
	}
	live := e.run.status == model.StatusRunning || e.run.status == model.StatusPaused

	for i, s := range e.file.Splits {
		v := model.SplitView{
			Name: s.Name,
			Best: copyDuration(s.Best),
			Gold: copyDuration(s.Gold),
		}
		cmp := s
		if i < len(e.run.compare) {
			cmp = e.run.compare[i]
		}
		switch {
		case i < len(e.run.times):
			if e.run.times[i] == nil {
				v.Skipped = true
				break
			}
			t := *e.run.times[i]
			v.Time = &t
			if cmp.Best != nil {
				d := t - *cmp.Best
				v.Diff = &d
			}
			if seg, ok := segmentAt(e.run.times, i); ok {
				v.Segment = &seg
				v.IsGold = better(cmp.Gold, seg.Truncate(time.Millisecond))
			}
		case i == e.run.index && live:
			v.Current = true
			if cmp.Best != nil {
				d := elapsed - *cmp.Best
				v.Diff = &d
			}
		}
		snap.Splits[i] = v
	}
	return snap
}

func copyDuration(d *time.Duration) *time.Duration {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
