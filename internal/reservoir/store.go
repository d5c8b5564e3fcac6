package reservoir

import (
	"context"
	"encoding/json"

	"alto/internal/fs"
)

// Store reads and atomically updates the reservoir index on a
// Filesystem handle.
type Store struct {
	FS   fs.Filesystem
	Root string
}

func NewStore(filesystem fs.Filesystem, root string) *Store {
	if root == "" {
		root = "reservoir"
	}
	return &Store{FS: filesystem, Root: root}
}

// LoadIndex returns the current index, or an empty one if none has
// been written yet.
func (s *Store) LoadIndex(ctx context.Context, env, tap string) (Index, error) {
	path := indexPath(s.Root, env, tap)
	exists, err := s.FS.Exists(ctx, path)
	if err != nil {
		return Index{}, err
	}
	if !exists {
		return Index{}, nil
	}
	data, err := s.FS.Get(ctx, path)
	if err != nil {
		return Index{}, err
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return Index{}, err
	}
	return idx, nil
}

// AppendPartitions adds new partition entries and atomically rewrites
// the index. The underlying Filesystem.Put is itself a
// temp-file-then-rename write, so readers never observe a partially
// written index — the same invariant the state store relies on.
func (s *Store) AppendPartitions(ctx context.Context, env, tap string, additions []Partition) (Index, error) {
	idx, err := s.LoadIndex(ctx, env, tap)
	if err != nil {
		return Index{}, err
	}
	idx.Partitions = append(idx.Partitions, additions...)

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return Index{}, err
	}
	if err := s.FS.Put(ctx, indexPath(s.Root, env, tap), data); err != nil {
		return Index{}, err
	}
	return idx, nil
}
