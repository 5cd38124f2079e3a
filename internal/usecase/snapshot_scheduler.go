package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"veilcloud/internal/domain"
)

// SnapshotScheduler periodically anchors each configured scope. A scope
// that fails to snapshot is logged and retried on the next tick; an
// empty scope is skipped silently until it has entries.
type SnapshotScheduler struct {
	Service  *ProofService
	Scopes   []string
	Interval time.Duration
	Logger   zerolog.Logger
}

func (sch *SnapshotScheduler) Run(ctx context.Context) {
	if sch.Interval <= 0 || len(sch.Scopes) == 0 {
		return
	}
	ticker := time.NewTicker(sch.Interval)
	defer ticker.Stop()

	sch.Logger.Info().
		Dur("interval", sch.Interval).
		Strs("scopes", sch.Scopes).
		Msg("snapshot scheduler started")

	for {
		select {
		case <-ctx.Done():
			sch.Logger.Info().Msg("snapshot scheduler stopped")
			return
		case <-ticker.C:
			sch.tick(ctx)
		}
	}
}

func (sch *SnapshotScheduler) tick(ctx context.Context) {
	for _, scope := range sch.Scopes {
		snapshot, err := sch.Service.CreateSnapshot(ctx, scope)
		if errors.Is(err, domain.ErrEmptyLog) {
			continue
		}
		if err != nil {
			sch.Logger.Error().Err(err).Str("scope", scope).Msg("scheduled snapshot failed")
			continue
		}
		sch.Logger.Info().
			Str("scope", scope).
			Str("snapshot_id", snapshot.ID).
			Int64("tree_size", snapshot.TreeSize).
			Msg("snapshot created")
	}
}
