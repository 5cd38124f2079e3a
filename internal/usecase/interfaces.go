package usecase

import (
	"context"

	"veilcloud/internal/domain"
)

type SnapshotRepository interface {
	Create(ctx context.Context, snapshot domain.Snapshot) (domain.Snapshot, error)
	GetByID(ctx context.Context, id string) (*domain.Snapshot, error)
	ListByScope(ctx context.Context, scope string, limit int) ([]domain.Snapshot, error)
}
