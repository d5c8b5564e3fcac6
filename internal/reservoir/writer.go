package reservoir

import (
	"bytes"
	"context"

	"github.com/klauspost/compress/gzip"

	"alto/internal/fs"
	"alto/internal/singer"
)

// Writer substitutes for the target half of a pipeline in tap->
// reservoir mode: it groups incoming Singer lines by stream, tracking
// each stream's current schema fingerprint, and flushes each
// non-empty stream buffer to its own compressed partition on Flush.
//
// STATE lines belong to the pipeline runner's own interception, not
// the archive, and are ignored here; ACTIVATE_VERSION and BATCH lines
// are archived alongside their stream's records so a replay sees the
// same message shapes the tap originally emitted.
type Writer struct {
	store   *Store
	env     string
	tap     string
	buffers map[string]*streamBuffer
}

type streamBuffer struct {
	schemaFP string
	lines    [][]byte
}

func NewWriter(filesystem fs.Filesystem, root, env, tap string) *Writer {
	return &Writer{
		store:   NewStore(filesystem, root),
		env:     env,
		tap:     tap,
		buffers: make(map[string]*streamBuffer),
	}
}

// Write accepts one raw Singer line from the transformer. Lines that
// don't parse as a recognizable Singer envelope are dropped from the
// archive rather than corrupting a partition.
func (w *Writer) Write(line []byte) {
	env, ok := singer.ParseLine(line)
	if !ok || env.Stream == "" {
		return
	}

	b := w.buffers[env.Stream]
	if b == nil {
		b = &streamBuffer{}
		w.buffers[env.Stream] = b
	}

	if env.Type == singer.TypeSchema && len(env.Schema) > 0 {
		b.schemaFP = SchemaFingerprint(env.Schema)
	}
	cp := make([]byte, len(line))
	copy(cp, line)
	b.lines = append(b.lines, cp)
}

// Flush compresses and writes one partition per non-empty stream
// buffer, then atomically appends them to the index, returning the
// partitions written. writtenAt is the caller-supplied UTC
// yyyymmddHHMMSSµµµ timestamp, keeping the writer itself free of a
// direct time dependency.
func (w *Writer) Flush(ctx context.Context, writtenAt string) ([]Partition, error) {
	var additions []Partition

	for stream, b := range w.buffers {
		if len(b.lines) == 0 {
			continue
		}
		schemaFP := b.schemaFP
		if schemaFP == "" {
			schemaFP = "unknown"
		}

		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		for _, line := range b.lines {
			if _, err := gw.Write(line); err != nil {
				gw.Close()
				return nil, err
			}
			if _, err := gw.Write([]byte("\n")); err != nil {
				gw.Close()
				return nil, err
			}
		}
		if err := gw.Close(); err != nil {
			return nil, err
		}

		path := partitionPath(w.store.Root, w.env, w.tap, stream, schemaFP, writtenAt)
		if err := w.store.FS.Put(ctx, path, buf.Bytes()); err != nil {
			return nil, err
		}

		additions = append(additions, Partition{
			Stream:    stream,
			SchemaFP:  schemaFP,
			Path:      path,
			WrittenAt: writtenAt,
			Messages:  len(b.lines),
		})
		delete(w.buffers, stream)
	}

	if len(additions) == 0 {
		return nil, nil
	}
	if _, err := w.store.AppendPartitions(ctx, w.env, w.tap, additions); err != nil {
		return nil, err
	}
	return additions, nil
}
