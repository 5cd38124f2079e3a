package db

import "time"

// SnapshotModel is append-only: rows are inserted once and never updated
// or deleted.
type SnapshotModel struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	Scope     string    `gorm:"index:idx_snapshots_scope_created,priority:1;not null"`
	RootHash  string    `gorm:"type:char(64);not null"`
	TreeSize  int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"index:idx_snapshots_scope_created,priority:2,sort:desc;not null"`
}

func (SnapshotModel) TableName() string {
	return "audit_snapshots"
}

type LedgerEntryModel struct {
	ID         int64     `gorm:"primaryKey"`
	Scope      string    `gorm:"index;not null"`
	EntryID    string    `gorm:"type:uuid;uniqueIndex;not null"`
	EntryIndex int64     `gorm:"index;not null"`
	LeafHash   []byte    `gorm:"type:bytea;not null"`
	Payload    []byte    `gorm:"type:bytea"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (LedgerEntryModel) TableName() string {
	return "audit_ledger_entries"
}
