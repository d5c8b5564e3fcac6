// Package fingerprint computes the stable, content-derived identifiers
// that the artifact cache and task engine use for cache addressing.
//
// Both fingerprint functions hash a length-prefixed encoding of their
// inputs so that no concatenation of variable-length fields is
// ambiguous, following the same idiom the task engine's own task hasher
// uses. sha1 is used rather than sha256 because the fingerprint format
// is fixed at 40 hex digits.
package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
	"hash"
	"sort"
)

// Fingerprint is a 40-hex-digit digest, the sole identity of a cached
// plugin artifact or a task's recorded inputs.
type Fingerprint string

func (f Fingerprint) String() string { return string(f) }

// encoder accumulates length-prefixed fields into a sha1 hash, so field
// boundaries can never be confused by contents that happen to contain a
// delimiter byte.
type encoder struct {
	h hash.Hash
}

func newEncoder() *encoder {
	return &encoder{h: sha1.New()}
}

func (e *encoder) field(data []byte) {
	n := uint64(len(data))
	prefix := [8]byte{
		byte(n >> 56), byte(n >> 48), byte(n >> 40), byte(n >> 32),
		byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n),
	}
	_, _ = e.h.Write(prefix[:])
	_, _ = e.h.Write(data)
}

func (e *encoder) str(s string) { e.field([]byte(s)) }

func (e *encoder) sum() Fingerprint {
	return Fingerprint(hex.EncodeToString(e.h.Sum(nil)))
}

// PluginInputs is the tuple of values the plugin fingerprint is computed
// over: install URL, executable-or-entrypoint, interpreter compatibility
// tag, and machine architecture tag.
type PluginInputs struct {
	InstallURL         string
	ExecutableOrEntry  string
	InterpreterTag     string
	ArchTag            string
}

// Plugin computes the 40-hex-digit fingerprint of a plugin artifact's
// inputs, encoded in a stable order so the result is independent of how
// the caller happened to assemble the PluginInputs value.
func Plugin(in PluginInputs) Fingerprint {
	e := newEncoder()
	e.str(in.InstallURL)
	e.str(in.ExecutableOrEntry)
	e.str(in.InterpreterTag)
	e.str(in.ArchTag)
	return e.sum()
}

// FileInput is one content-bearing input to a task: its normalized path
// and its current byte content.
type FileInput struct {
	Path    string
	Content []byte
}

// TaskInputs is the full set of values a task's up-to-dateness depends
// on: its resolved file inputs (already expanded and sorted by the
// caller) and its declared scalar parameters (command, env, outputs,
// working directory, or any subsystem-specific configuration values).
type TaskInputs struct {
	Files      []FileInput
	Scalars    map[string]string
	WorkingDir string
}

// Task computes the 40-hex-digit fingerprint over the working
// directory, each input file's path and content, and each declared
// scalar parameter. Map iteration order never affects the result:
// scalar keys are sorted before hashing. Files is hashed in the order
// given; it is not sorted here.
func Task(in TaskInputs) Fingerprint {
	e := newEncoder()
	e.str(in.WorkingDir)

	e.field([]byte{byte(len(in.Files))})
	for _, f := range in.Files {
		e.str(f.Path)
		e.field(f.Content)
	}

	keys := make([]string, 0, len(in.Scalars))
	for k := range in.Scalars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	e.field([]byte{byte(len(keys))})
	for _, k := range keys {
		e.str(k)
		e.str(in.Scalars[k])
	}

	return e.sum()
}
