package reservoir

import (
	"context"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"

	"alto/internal/fs"
)

// Reader replays archived partitions for reservoir->target mode.
type Reader struct {
	store *Store
	env   string
	tap   string
}

func NewReader(filesystem fs.Filesystem, root, env, tap string) *Reader {
	return &Reader{store: NewStore(filesystem, root), env: env, tap: tap}
}

// Partitions enumerates this tap's archived partitions in write-time
// order. If since is non-empty, only partitions written strictly
// after it are returned — the "newest-unseen only" mode that consults
// the (tap, target) pair's active state.
func (r *Reader) Partitions(ctx context.Context, since string) ([]Partition, error) {
	idx, err := r.store.LoadIndex(ctx, r.env, r.tap)
	if err != nil {
		return nil, err
	}
	ordered := sortedByWriteTime(idx.Partitions)
	if since == "" {
		return ordered, nil
	}
	out := ordered[:0:0]
	for _, p := range ordered {
		if p.WrittenAt > since {
			out = append(out, p)
		}
	}
	return out, nil
}

// ReplaySequential decompresses each partition in order and
// concatenates its messages to dst, preserving the relative order
// records were originally written in.
func (r *Reader) ReplaySequential(ctx context.Context, partitions []Partition, dst io.Writer) error {
	for _, p := range partitions {
		if err := r.copyPartition(ctx, p, dst); err != nil {
			return err
		}
	}
	return nil
}

// ReplayParallel decompresses partitions grouped by schema fingerprint
// concurrently, one goroutine per schema group, each writing to its
// own io.Writer. It is only safe to use when the target is declared
// idempotent: across groups there is no ordering guarantee, only
// within a group.
func (r *Reader) ReplayParallel(ctx context.Context, partitions []Partition, dstFor func(schemaFP string) io.Writer) error {
	groups := make(map[string][]Partition)
	for _, p := range partitions {
		groups[p.SchemaFP] = append(groups[p.SchemaFP], p)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(groups))
	for fp, group := range groups {
		fp, group := fp, group
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.ReplaySequential(ctx, group, dstFor(fp)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) copyPartition(ctx context.Context, p Partition, dst io.Writer) error {
	rc, err := r.openPartition(ctx, p)
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(dst, rc)
	return err
}

func (r *Reader) openPartition(ctx context.Context, p Partition) (io.ReadCloser, error) {
	raw, err := r.store.FS.OpenRead(ctx, p.Path)
	if err != nil {
		return nil, err
	}
	gr, err := gzip.NewReader(raw)
	if err != nil {
		raw.Close()
		return nil, err
	}
	return &gzipReadCloser{gr: gr, underlying: raw}, nil
}

type gzipReadCloser struct {
	gr         *gzip.Reader
	underlying io.ReadCloser
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.gr.Read(p) }

func (g *gzipReadCloser) Close() error {
	gerr := g.gr.Close()
	uerr := g.underlying.Close()
	if gerr != nil {
		return gerr
	}
	return uerr
}
