package reservoir

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"alto/internal/fs"
)

func TestWriter_FlushPartitionsAndAppendsIndex(t *testing.T) {
	ctx := context.Background()
	memFS := fs.NewMemory(nil)
	w := NewWriter(memFS, "reservoir", "prod", "tap-orders")

	w.Write([]byte(`{"type":"SCHEMA","stream":"orders","schema":{"properties":{"id":{"type":"integer"}}}}`))
	w.Write([]byte(`{"type":"RECORD","stream":"orders","record":{"id":1}}`))
	w.Write([]byte(`{"type":"RECORD","stream":"orders","record":{"id":2}}`))
	w.Write([]byte(`{"type":"STATE","value":{"bookmarks":{}}}`)) // not archived

	additions, err := w.Flush(ctx, "20260806120000000000")
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(additions) != 1 {
		t.Fatalf("expected one partition, got %d", len(additions))
	}
	if additions[0].Messages != 3 {
		t.Fatalf("expected 3 archived messages (schema+2 records), got %d", additions[0].Messages)
	}

	idx, err := NewStore(memFS, "reservoir").LoadIndex(ctx, "prod", "tap-orders")
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if len(idx.Partitions) != 1 {
		t.Fatalf("expected index to contain 1 partition, got %d", len(idx.Partitions))
	}
}

func TestWriter_EmptyFlushWritesNoPartitionsOrIndex(t *testing.T) {
	ctx := context.Background()
	memFS := fs.NewMemory(nil)
	w := NewWriter(memFS, "reservoir", "prod", "tap-orders")

	additions, err := w.Flush(ctx, "20260806120000000000")
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if additions != nil {
		t.Fatalf("expected no partitions from an empty writer, got %v", additions)
	}

	exists, err := memFS.Exists(ctx, indexPath("reservoir", "prod", "tap-orders"))
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatal("expected no index to be written when nothing was buffered")
	}
}

func TestReader_ReplaySequentialConcatenatesInWriteTimeOrder(t *testing.T) {
	ctx := context.Background()
	memFS := fs.NewMemory(nil)

	w := NewWriter(memFS, "reservoir", "prod", "tap-orders")
	w.Write([]byte(`{"type":"SCHEMA","stream":"orders","schema":{}}`))
	w.Write([]byte(`{"type":"RECORD","stream":"orders","record":{"id":1}}`))
	if _, err := w.Flush(ctx, "20260806120000000000"); err != nil {
		t.Fatalf("Flush 1: %v", err)
	}

	w2 := NewWriter(memFS, "reservoir", "prod", "tap-orders")
	w2.Write([]byte(`{"type":"SCHEMA","stream":"orders","schema":{}}`))
	w2.Write([]byte(`{"type":"RECORD","stream":"orders","record":{"id":2}}`))
	if _, err := w2.Flush(ctx, "20260806130000000000"); err != nil {
		t.Fatalf("Flush 2: %v", err)
	}

	r := NewReader(memFS, "reservoir", "prod", "tap-orders")
	partitions, err := r.Partitions(ctx, "")
	if err != nil {
		t.Fatalf("Partitions: %v", err)
	}
	if len(partitions) != 2 {
		t.Fatalf("expected 2 partitions, got %d", len(partitions))
	}

	var out bytes.Buffer
	if err := r.ReplaySequential(ctx, partitions, &out); err != nil {
		t.Fatalf("ReplaySequential: %v", err)
	}

	firstIdx := strings.Index(out.String(), `"id":1`)
	secondIdx := strings.Index(out.String(), `"id":2`)
	if firstIdx == -1 || secondIdx == -1 || firstIdx > secondIdx {
		t.Fatalf("expected id:1 before id:2 in replay order, got %q", out.String())
	}
}

func TestReader_PartitionsSinceExcludesOlderWrites(t *testing.T) {
	ctx := context.Background()
	memFS := fs.NewMemory(nil)

	w := NewWriter(memFS, "reservoir", "prod", "tap-orders")
	w.Write([]byte(`{"type":"RECORD","stream":"orders","record":{"id":1}}`))
	if _, err := w.Flush(ctx, "20260806120000000000"); err != nil {
		t.Fatalf("Flush 1: %v", err)
	}

	w2 := NewWriter(memFS, "reservoir", "prod", "tap-orders")
	w2.Write([]byte(`{"type":"RECORD","stream":"orders","record":{"id":2}}`))
	if _, err := w2.Flush(ctx, "20260806130000000000"); err != nil {
		t.Fatalf("Flush 2: %v", err)
	}

	r := NewReader(memFS, "reservoir", "prod", "tap-orders")
	partitions, err := r.Partitions(ctx, "20260806120000000000")
	if err != nil {
		t.Fatalf("Partitions: %v", err)
	}
	if len(partitions) != 1 {
		t.Fatalf("expected 1 newer partition, got %d", len(partitions))
	}
}

func TestSchemaFingerprint_StableAcrossKeyOrder(t *testing.T) {
	a := SchemaFingerprint([]byte(`{"properties":{"id":{"type":"integer"},"name":{"type":"string"}}}`))
	b := SchemaFingerprint([]byte(`{"properties":{"name":{"type":"string"},"id":{"type":"integer"}}}`))
	if a != b {
		t.Fatalf("expected fingerprint to be stable across key order, got %q vs %q", a, b)
	}
}

func TestSchemaFingerprint_DiffersOnContentChange(t *testing.T) {
	a := SchemaFingerprint([]byte(`{"properties":{"id":{"type":"integer"}}}`))
	b := SchemaFingerprint([]byte(`{"properties":{"id":{"type":"string"}}}`))
	if a == b {
		t.Fatal("expected different schemas to produce different fingerprints")
	}
}
