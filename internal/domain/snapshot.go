package domain

import "time"

// Snapshot is a durable anchor: the root and size of a scope's tree at a
// point in time. Snapshots are created once and never updated or deleted.
type Snapshot struct {
	ID        string
	Scope     string
	RootHash  []byte
	TreeSize  int64
	CreatedAt time.Time
}
