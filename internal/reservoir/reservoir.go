// Package reservoir implements the content-addressed, gzip-compressed
// Singer message archive that substitutes for the target half of a
// pipeline in tap->reservoir mode, and for the tap half in
// reservoir->target mode.
//
// Partitions are grouped by stream and by each stream's schema
// fingerprint, written once and never rewritten by a capture run; only
// the index gains new entries. Store.Compact is the exception: it
// merges partitions and rewrites the index. Path convention:
//
//	reservoir/<env>/<tap>/_reservoir.json
//	reservoir/<env>/<tap>/<stream>/<schema_fp>/<yyyymmddHHMMSSµµµ>.singer.gz
package reservoir

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Index is the atomically-updated manifest of every partition written
// for one (env, tap) pair.
type Index struct {
	Partitions []Partition `json:"partitions"`
}

// Partition describes one immutable archive file.
type Partition struct {
	Stream     string `json:"stream"`
	SchemaFP   string `json:"schema_fp"`
	Path       string `json:"path"`
	WrittenAt  string `json:"written_at"` // UTC yyyymmddHHMMSSµµµ, caller-supplied
	Messages   int    `json:"messages"`
}

// SchemaFingerprint hashes a stream's SCHEMA payload with xxhash, the
// same non-cryptographic fast-path hash the stack uses for reservoir
// partition keys: this identity only needs to distinguish schema
// shapes cheaply, not resist forgery.
func SchemaFingerprint(schema json.RawMessage) string {
	canon := canonicalize(schema)
	sum := xxhash.Sum64(canon)
	return fmt.Sprintf("%016x", sum)
}

// canonicalize re-marshals arbitrary JSON through a map so key order
// cannot perturb the fingerprint; Go's encoding/json sorts map keys on
// marshal.
func canonicalize(raw json.RawMessage) []byte {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}

func indexPath(root, env, tap string) string {
	return fmt.Sprintf("%s/%s/%s/_reservoir.json", root, env, tap)
}

func partitionPath(root, env, tap, stream, schemaFP, writtenAt string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s/%s.singer.gz", root, env, tap, stream, schemaFP, writtenAt)
}

// sortedByWriteTime returns partitions ordered by WrittenAt ascending,
// the order enumeration in reservoir->target mode replays them in.
func sortedByWriteTime(partitions []Partition) []Partition {
	out := make([]Partition, len(partitions))
	copy(out, partitions)
	sort.SliceStable(out, func(i, j int) bool { return out[i].WrittenAt < out[j].WrittenAt })
	return out
}
