// Package statestore owns the active/historical StateDoc files for each
// (tap, target) pair in an environment, and the STATE-line interception
// the pipeline runner feeds it from a target's stdout.
//
// Path convention: state/<env>/<tap>-to-<target>.json (active), rotated
// copies as ...<yyyymmddHHMMSS>.json (historical, never deleted).
package statestore

import (
	"context"
	"encoding/json"
	"fmt"

	"alto/internal/errtax"
	"alto/internal/fs"
	"alto/internal/singer"
)

// Store reads and atomically writes StateDoc files on a Filesystem
// handle.
type Store struct {
	FS   fs.Filesystem
	Root string // e.g. "state"
}

func New(filesystem fs.Filesystem, root string) *Store {
	if root == "" {
		root = "state"
	}
	return &Store{FS: filesystem, Root: root}
}

func (s *Store) activePath(env, tap, target string) string {
	return fmt.Sprintf("%s/%s/%s-to-%s.json", s.Root, env, tap, target)
}

func (s *Store) historicalPath(env, tap, target, timestamp string) string {
	return fmt.Sprintf("%s/%s/%s-to-%s.%s.json", s.Root, env, tap, target, timestamp)
}

// LoadActive returns the active state document, or nil if absent —
// absent state means a full refresh, not an error.
func (s *Store) LoadActive(ctx context.Context, env, tap, target string) (map[string]any, error) {
	path := s.activePath(env, tap, target)
	exists, err := s.FS.Exists(ctx, path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	data, err := s.FS.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &errtax.StateCorruption{Path: path, Cause: err}
	}
	return doc, nil
}

// Commit implements the on-success sequence from the state store
// design: if an active state exists, copy it to a historical snapshot
// first, then atomically write the new active state. nowStamp is the
// caller-supplied UTC timestamp in yyyymmddHHMMSS form, so the store
// stays free of a direct time.Now() dependency and is trivially
// testable.
func (s *Store) Commit(ctx context.Context, env, tap, target string, newState map[string]any, nowStamp string) error {
	active := s.activePath(env, tap, target)
	exists, err := s.FS.Exists(ctx, active)
	if err != nil {
		return err
	}
	if exists {
		prior, err := s.FS.Get(ctx, active)
		if err != nil {
			return err
		}
		if err := s.FS.Put(ctx, s.historicalPath(env, tap, target, nowStamp), prior); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(newState, "", "  ")
	if err != nil {
		return err
	}
	return s.FS.Put(ctx, active, data)
}

// Interceptor scans a target's stdout line-by-line, retaining the value
// field of the last successfully parsed STATE message. All non-STATE
// lines (and STATE lines that fail to parse) are reported as not
// intercepted so the caller still forwards them byte-identical.
type Interceptor struct {
	last map[string]any
}

// Observe inspects one line and returns whether it was a STATE line.
// On a successful parse, Observe updates the retained state; a STATE
// line whose value fails to parse as JSON is treated as not
// intercepted (forwarded, not retained) rather than aborting the
// pipeline — only the final retained state after a successful pipeline
// exit is committed.
func (ic *Interceptor) Observe(line []byte) bool {
	if !singer.IsState(line) {
		return false
	}
	env, ok := singer.ParseLine(line)
	if !ok || env.Type != singer.TypeState || len(env.Value) == 0 {
		return false
	}
	var value map[string]any
	if err := json.Unmarshal(env.Value, &value); err != nil {
		return false
	}
	ic.last = value
	return true
}

// Last returns the most recently retained STATE value, or nil if none
// was observed.
func (ic *Interceptor) Last() map[string]any { return ic.last }
