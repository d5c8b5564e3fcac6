package task

import (
	"context"
	"testing"

	"alto/internal/fs"
)

func TestLedger_PutThenGetRoundTrips(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(fs.NewMemory(nil), "")

	if err := ledger.Put(ctx, Record{Key: "catalog:tap-x", Fingerprint: "abc123", Succeeded: true, UpdatedAt: "20260806120000"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rec, ok, err := ledger.Get(ctx, "catalog:tap-x")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected a stored record")
	}
	if rec.Fingerprint != "abc123" {
		t.Fatalf("expected fingerprint abc123, got %q", rec.Fingerprint)
	}
}

func TestLedger_GetAbsentKeyIsNotFound(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(fs.NewMemory(nil), "")

	_, ok, err := ledger.Get(ctx, "catalog:tap-x")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected no record for an absent key")
	}
}

func TestLedger_PutPreservesOtherKeys(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(fs.NewMemory(nil), "")

	if err := ledger.Put(ctx, Record{Key: "a", Fingerprint: "1"}); err != nil {
		t.Fatalf("Put a: %v", err)
	}
	if err := ledger.Put(ctx, Record{Key: "b", Fingerprint: "2"}); err != nil {
		t.Fatalf("Put b: %v", err)
	}

	a, ok, err := ledger.Get(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("Get a: ok=%v err=%v", ok, err)
	}
	if a.Fingerprint != "1" {
		t.Fatalf("expected a's fingerprint to survive b's write, got %q", a.Fingerprint)
	}
}
