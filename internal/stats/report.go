package stats

import (
	"context"

	"github.com/verte-zerg/wlsplit/internal/model"
	"github.com/verte-zerg/wlsplit/internal/store"
)

// Report contains precomputed data for history rendering.
type Report struct {
	Game     string
	Category string
	Attempts []model.AttemptAggregate
	Splits   []model.SplitAggregate
}

// BuildReport loads attempts matching cfg and aggregates their split times.
func BuildReport(ctx context.Context, st *store.Store, cfg model.HistoryConfig) (Report, error) {
	attempts, err := st.ListAttempts(ctx, cfg)
	if err != nil {
		return Report{}, err
	}
	aggs, err := st.ListSplitAggregates(ctx, attemptIDs(attempts))
	if err != nil {
		return Report{}, err
	}
	return Report{
		Game:     cfg.Game,
		Category: cfg.Category,
		Attempts: attempts,
		Splits:   aggs,
	}, nil
}

func attemptIDs(attempts []model.AttemptAggregate) []string {
	ids := make([]string, len(attempts))
	for i, a := range attempts {
		ids[i] = a.ID
	}
	return ids
}
