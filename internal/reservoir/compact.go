package reservoir

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// DefaultCompactionThreshold bounds how large a merged partition is
// allowed to grow before compaction starts a new one, mirroring the
// ~25MB batching the original reservoir compactor uses.
const DefaultCompactionThreshold int64 = 25_000_000

// CompactionResult summarizes one Compact call for logging/reporting.
type CompactionResult struct {
	FilesMerged  int
	FilesRemoved int
	Changed      bool
}

func lockPath(root, env, tap string) string {
	return fmt.Sprintf("%s/%s/%s/_reservoir.lock", root, env, tap)
}

// Compact merges small partitions sharing a stream and schema
// fingerprint into fewer, larger files — a merge queue is flushed once
// its total reaches maxBytes, so a merged file can exceed maxBytes —
// and rewrites the index to match what remains on disk. This is a
// maintenance operation, not part of the normal tap->reservoir write
// path: a RECORD is still never mutated, only ever copied into a
// differently-named archive file before its source is removed.
//
// Concurrent compaction of the same (env, tap) reservoir is rejected
// via a lock file rather than attempted, the same "lock, operate,
// unlock" shape the original compactor uses.
func (s *Store) Compact(ctx context.Context, env, tap string, maxBytes int64) (CompactionResult, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultCompactionThreshold
	}
	lp := lockPath(s.Root, env, tap)
	locked, err := s.FS.Exists(ctx, lp)
	if err != nil {
		return CompactionResult{}, err
	}
	if locked {
		return CompactionResult{}, fmt.Errorf("reservoir %s/%s is already locked for compaction", env, tap)
	}
	if err := s.FS.Put(ctx, lp, []byte(env+"/"+tap)); err != nil {
		return CompactionResult{}, err
	}
	defer s.FS.Remove(ctx, lp)

	idx, err := s.LoadIndex(ctx, env, tap)
	if err != nil {
		return CompactionResult{}, err
	}
	if len(idx.Partitions) == 0 {
		return CompactionResult{}, nil
	}

	groups := make(map[string][]Partition)
	var groupKeys []string
	for _, p := range idx.Partitions {
		key := p.Stream + "/" + p.SchemaFP
		if _, ok := groups[key]; !ok {
			groupKeys = append(groupKeys, key)
		}
		groups[key] = append(groups[key], p)
	}
	sort.Strings(groupKeys)

	var result CompactionResult
	var kept []Partition
	for _, key := range groupKeys {
		merged, err := s.compactGroup(ctx, groups[key], maxBytes, &result)
		if err != nil {
			return CompactionResult{}, err
		}
		kept = append(kept, merged...)
	}
	if !result.Changed {
		return result, nil
	}

	idx.Partitions = kept
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return CompactionResult{}, err
	}
	if err := s.FS.Put(ctx, indexPath(s.Root, env, tap), data); err != nil {
		return CompactionResult{}, err
	}
	return result, nil
}

// compactGroup merges one stream+schema group's undersized partitions
// into fewer, larger ones. Partitions already at or above maxBytes are
// left untouched. Candidates are accumulated into a merge queue until
// the queue's total size crosses maxBytes, then flushed; any remainder
// too small to cross the threshold is still merged once, rather than
// left as a never-compacted tail.
func (s *Store) compactGroup(ctx context.Context, group []Partition, maxBytes int64, result *CompactionResult) ([]Partition, error) {
	if len(group) < 2 {
		return group, nil
	}

	var small, kept []Partition
	sizes := make(map[string]int64, len(group))
	for _, p := range group {
		data, err := s.FS.Get(ctx, p.Path)
		if err != nil {
			return nil, err
		}
		size := int64(len(data))
		sizes[p.Path] = size
		if size < maxBytes {
			small = append(small, p)
		} else {
			kept = append(kept, p)
		}
	}
	if len(small) < 2 {
		return group, nil
	}

	var queue []Partition
	var queueBytes int64
	flush := func() error {
		merged, err := s.mergePartitions(ctx, queue)
		if err != nil {
			return err
		}
		if merged != nil {
			kept = append(kept, *merged)
			result.FilesMerged += len(queue)
			result.FilesRemoved += len(queue) - 1
			result.Changed = true
		} else {
			kept = append(kept, queue...)
		}
		queue, queueBytes = nil, 0
		return nil
	}

	for _, p := range small {
		queue = append(queue, p)
		queueBytes += sizes[p.Path]
		if queueBytes >= maxBytes {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if len(queue) > 0 {
		if err := flush(); err != nil {
			return nil, err
		}
	}
	return kept, nil
}

// mergePartitions concatenates the raw gzip bytes of every partition in
// queue into the lexicographically last (and so, by the
// yyyymmddHHMMSSµµµ path convention, newest) one, removes the rest, and
// returns the survivor with its message count summed. Concatenating
// complete gzip streams is itself a valid multi-member gzip stream —
// Reader's default Multistream mode decodes each member in turn — so
// no decompress/recompress round-trip is needed. Returns nil if queue
// has fewer than two partitions, since there is nothing to merge.
func (s *Store) mergePartitions(ctx context.Context, queue []Partition) (*Partition, error) {
	if len(queue) < 2 {
		return nil, nil
	}
	ordered := make([]Partition, len(queue))
	copy(ordered, queue)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Path < ordered[j].Path })
	target := ordered[len(ordered)-1]

	var merged []byte
	messages := 0
	for _, p := range ordered {
		data, err := s.FS.Get(ctx, p.Path)
		if err != nil {
			return nil, err
		}
		merged = append(merged, data...)
		messages += p.Messages
	}
	if err := s.FS.Put(ctx, target.Path, merged); err != nil {
		return nil, err
	}
	for _, p := range ordered[:len(ordered)-1] {
		if err := s.FS.Remove(ctx, p.Path); err != nil {
			return nil, err
		}
	}
	target.Messages = messages
	return &target, nil
}
