package db

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"veilcloud/internal/domain"

	"gorm.io/gorm"
)

type SnapshotRepository struct {
	db *gorm.DB
}

func NewSnapshotRepository(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Create inserts a new snapshot row. There is no update path.
func (r *SnapshotRepository) Create(ctx context.Context, snapshot domain.Snapshot) (domain.Snapshot, error) {
	if r.db == nil {
		return domain.Snapshot{}, errDBUnavailable
	}
	id := snapshot.ID
	if id == "" {
		generated, err := NewUUID()
		if err != nil {
			return domain.Snapshot{}, err
		}
		id = generated
	}
	createdAt := snapshot.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	model := SnapshotModel{
		ID:        id,
		Scope:     snapshot.Scope,
		RootHash:  hex.EncodeToString(snapshot.RootHash),
		TreeSize:  snapshot.TreeSize,
		CreatedAt: createdAt,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Snapshot{}, err
	}
	return snapshotFromModel(model)
}

func (r *SnapshotRepository) GetByID(ctx context.Context, snapshotID string) (*domain.Snapshot, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model SnapshotModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", snapshotID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSnapshotNotFound
		}
		return nil, err
	}
	snapshot, err := snapshotFromModel(model)
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// ListByScope returns snapshots newest first.
func (r *SnapshotRepository) ListByScope(ctx context.Context, scope string, limit int) ([]domain.Snapshot, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	query := r.db.WithContext(ctx).
		Where("scope = ?", scope).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []SnapshotModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Snapshot, 0, len(models))
	for _, model := range models {
		snapshot, err := snapshotFromModel(model)
		if err != nil {
			return nil, err
		}
		out = append(out, snapshot)
	}
	return out, nil
}

func snapshotFromModel(model SnapshotModel) (domain.Snapshot, error) {
	rootHash, err := hex.DecodeString(model.RootHash)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.Snapshot{
		ID:        model.ID,
		Scope:     model.Scope,
		RootHash:  rootHash,
		TreeSize:  model.TreeSize,
		CreatedAt: model.CreatedAt,
	}, nil
}
