//go:build integration
// +build integration

package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"veilcloud/internal/domain"
	"veilcloud/internal/infra/ledgerdb"
	"veilcloud/internal/infra/merkle"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("POSTGRES_DSN_TEST"))
	if dsn == "" {
		t.Skip("POSTGRES_DSN_TEST not set")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := gdb.AutoMigrate(&SnapshotModel{}, &LedgerEntryModel{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := gdb.Exec("TRUNCATE audit_snapshots, audit_ledger_entries").Error; err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return gdb
}

func TestLedgerEntryRepository_AppendAssignsGapFreeIndices(t *testing.T) {
	gdb := setupTestDB(t)
	repo := NewLedgerEntryRepository(gdb)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entryID, err := NewUUID()
			if err != nil {
				errs <- err
				return
			}
			payload := []byte(fmt.Sprintf("event-%d", i))
			_, err = repo.Append(ctx, "billing", entryID, payload, merkle.LeafHash(payload))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	hashes, err := repo.ListLeafHashes(ctx, "billing", 0)
	if err != nil {
		t.Fatalf("ListLeafHashes: %v", err)
	}
	if len(hashes) != writers {
		t.Fatalf("leaf count = %d, want %d", len(hashes), writers)
	}
	count, err := repo.Count(ctx, "billing")
	if err != nil || count != writers {
		t.Fatalf("Count = %d, %v", count, err)
	}
}

func TestLedgerDBProofsVerify(t *testing.T) {
	gdb := setupTestDB(t)
	ledger := ledgerdb.New(NewLedgerEntryRepository(gdb))
	ctx := context.Background()

	var receipts []domain.AppendReceipt
	for i := 0; i < 5; i++ {
		receipt, err := ledger.Append(ctx, "billing", []byte(fmt.Sprintf("event-%d", i)))
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		receipts = append(receipts, receipt)
	}

	root, err := ledger.GetRootHash(ctx, "billing")
	if err != nil {
		t.Fatalf("GetRootHash: %v", err)
	}
	for _, receipt := range receipts {
		proof, err := ledger.GetProof(ctx, "billing", receipt.EntryID)
		if err != nil {
			t.Fatalf("GetProof: %v", err)
		}
		if !bytes.Equal(proof.Root, root) {
			t.Fatal("proof root must match the current root")
		}
		ok, err := merkle.VerifyInclusion(receipt.Hash, proof.Index, proof.TreeSize, proof.Siblings, proof.Directions, proof.Root)
		if err != nil || !ok {
			t.Fatalf("verify = %v, %v; want true", ok, err)
		}
	}

	if _, err := ledger.GetProof(ctx, "billing", "unknown"); !errors.Is(err, domain.ErrEntryNotFound) {
		t.Fatalf("err = %v, want ErrEntryNotFound", err)
	}
}

func TestSnapshotRepository_CreateGetList(t *testing.T) {
	gdb := setupTestDB(t)
	repo := NewSnapshotRepository(gdb)
	ctx := context.Background()

	root := merkle.LeafHash([]byte("anchor"))
	first, err := repo.Create(ctx, domain.Snapshot{Scope: "billing", RootHash: root, TreeSize: 1})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if first.ID == "" || first.CreatedAt.IsZero() {
		t.Fatalf("snapshot = %+v", first)
	}

	second, err := repo.Create(ctx, domain.Snapshot{Scope: "billing", RootHash: root, TreeSize: 2})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	fetched, err := repo.GetByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !bytes.Equal(fetched.RootHash, root) || fetched.TreeSize != 1 {
		t.Fatalf("fetched = %+v", fetched)
	}

	listed, err := repo.ListByScope(ctx, "billing", 10)
	if err != nil {
		t.Fatalf("ListByScope: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != second.ID {
		t.Fatalf("listed = %+v", listed)
	}

	if _, err := repo.GetByID(ctx, "00000000-0000-4000-8000-000000000000"); !errors.Is(err, domain.ErrSnapshotNotFound) {
		t.Fatalf("err = %v, want ErrSnapshotNotFound", err)
	}
}
