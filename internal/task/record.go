package task

import (
	"context"
	"encoding/json"

	"alto/internal/fs"
)

// Record is the persisted up-to-dateness entry for one task key: if a
// future task_fingerprint matches the stored one, the task is eligible
// to skip (subject to the owning subsystem also confirming its
// declared outputs still exist).
type Record struct {
	Key         string `json:"key"`
	Fingerprint string `json:"fingerprint"`
	Succeeded   bool   `json:"succeeded"`
	UpdatedAt   string `json:"updated_at"`
}

// Ledger persists TaskRecords at .alto/tasks.json, content-addressed
// by task key. It is written only by the coordinating process, per
// spec.md §5's "the task-record file is written only by the
// coordinator".
type Ledger struct {
	FS   fs.Filesystem
	Path string
}

func NewLedger(filesystem fs.Filesystem, path string) *Ledger {
	if path == "" {
		path = ".alto/tasks.json"
	}
	return &Ledger{FS: filesystem, Path: path}
}

func (l *Ledger) load(ctx context.Context) (map[string]Record, error) {
	exists, err := l.FS.Exists(ctx, l.Path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return map[string]Record{}, nil
	}
	data, err := l.FS.Get(ctx, l.Path)
	if err != nil {
		return nil, err
	}
	var records map[string]Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = map[string]Record{}
	}
	return records, nil
}

// Get returns the stored record for key, or ok=false if none exists.
func (l *Ledger) Get(ctx context.Context, key string) (Record, bool, error) {
	records, err := l.load(ctx)
	if err != nil {
		return Record{}, false, err
	}
	rec, ok := records[key]
	return rec, ok, nil
}

// Put upserts one record and atomically rewrites the ledger (Put on
// the underlying Filesystem is itself a temp-file-then-rename write).
func (l *Ledger) Put(ctx context.Context, rec Record) error {
	records, err := l.load(ctx)
	if err != nil {
		return err
	}
	records[rec.Key] = rec

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return l.FS.Put(ctx, l.Path, data)
}
