package db

import (
	"context"
	"errors"
	"time"

	"veilcloud/internal/domain"

	"gorm.io/gorm"
)

type LedgerEntryRepository struct {
	db *gorm.DB
}

func NewLedgerEntryRepository(db *gorm.DB) *LedgerEntryRepository {
	return &LedgerEntryRepository{db: db}
}

// Append assigns the next gap-free index inside a transaction so that
// concurrent appends on the same scope serialize at the database.
func (r *LedgerEntryRepository) Append(ctx context.Context, scope, entryID string, payload, leafHash []byte) (int64, error) {
	if r.db == nil {
		return 0, errDBUnavailable
	}
	tx := r.db.WithContext(ctx).Begin()
	if err := tx.Error; err != nil {
		return 0, err
	}

	// concurrent appenders on the same scope queue here; the lock is
	// released at commit or rollback
	if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", scope).Error; err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	var maxIndex int64
	if err := tx.Model(&LedgerEntryModel{}).
		Where("scope = ?", scope).
		Select("COALESCE(MAX(entry_index), -1)").
		Scan(&maxIndex).Error; err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	entryIndex := maxIndex + 1
	model := LedgerEntryModel{
		Scope:      scope,
		EntryID:    entryID,
		EntryIndex: entryIndex,
		LeafHash:   copyBytes(leafHash),
		Payload:    copyBytes(payload),
		CreatedAt:  time.Now().UTC(),
	}
	if err := tx.Create(&model).Error; err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit().Error; err != nil {
		return 0, err
	}
	return entryIndex, nil
}

func (r *LedgerEntryRepository) GetByEntryID(ctx context.Context, scope, entryID string) (*domain.LedgerEntry, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model LedgerEntryModel
	err := r.db.WithContext(ctx).
		Where("scope = ? AND entry_id = ?", scope, entryID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, err
	}
	entry := entryFromModel(model)
	return &entry, nil
}

// ListLeafHashes returns leaf hashes in index order, all of them when
// upTo is zero or negative.
func (r *LedgerEntryRepository) ListLeafHashes(ctx context.Context, scope string, upTo int64) ([][]byte, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	query := r.db.WithContext(ctx).
		Where("scope = ?", scope).
		Order("entry_index ASC")
	if upTo > 0 {
		query = query.Where("entry_index < ?", upTo)
	}

	var models []LedgerEntryModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(models))
	for _, model := range models {
		out = append(out, copyBytes(model.LeafHash))
	}
	return out, nil
}

func (r *LedgerEntryRepository) Count(ctx context.Context, scope string) (int64, error) {
	if r.db == nil {
		return 0, errDBUnavailable
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&LedgerEntryModel{}).
		Where("scope = ?", scope).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Latest returns nil when the scope has no entries.
func (r *LedgerEntryRepository) Latest(ctx context.Context, scope string) (*domain.LedgerEntry, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model LedgerEntryModel
	err := r.db.WithContext(ctx).
		Where("scope = ?", scope).
		Order("entry_index DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	entry := entryFromModel(model)
	return &entry, nil
}

func entryFromModel(model LedgerEntryModel) domain.LedgerEntry {
	return domain.LedgerEntry{
		ID:        model.EntryID,
		Index:     model.EntryIndex,
		Hash:      copyBytes(model.LeafHash),
		Data:      copyBytes(model.Payload),
		Timestamp: model.CreatedAt,
	}
}
