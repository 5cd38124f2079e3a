package domain

import "errors"

var (
	ErrEntryNotFound     = errors.New("entry not found")
	ErrSnapshotNotFound  = errors.New("snapshot not found")
	ErrIndexOutOfRange   = errors.New("leaf index out of range")
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	ErrEmptyLog          = errors.New("empty log")
	ErrInvalidRange      = errors.New("invalid size range")
)
