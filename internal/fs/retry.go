package fs

import (
	"context"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"

	"alto/internal/errtax"
)

// Retrying wraps a Filesystem whose Get/Put/List/MTime calls may fail
// transiently (a real remote driver talking to S3/GCS/Azure). Failures
// are retried with exponential backoff up to a bounded attempt count;
// once exhausted, the final error is wrapped in errtax.RemoteUnavailable
// per the RemoteUnavailable error class.
//
// Exists, Remove, OpenRead, and OpenWrite are passed through unwrapped:
// existence checks are allowed to report false on transient failure (the
// caller re-checks after a build), and streaming opens don't fit a
// retry-the-whole-call model.
type Retrying struct {
	Inner      Filesystem
	MaxRetries uint64
}

// NewRetrying wraps inner with a bounded exponential backoff policy.
// maxRetries of 0 uses a default of 5 retries (6 attempts in all).
func NewRetrying(inner Filesystem, maxRetries uint64) *Retrying {
	if maxRetries == 0 {
		maxRetries = 5
	}
	return &Retrying{Inner: inner, MaxRetries: maxRetries}
}

func (r *Retrying) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(b, r.MaxRetries), ctx)
}

func (r *Retrying) Exists(ctx context.Context, path string) (bool, error) {
	return r.Inner.Exists(ctx, path)
}

func (r *Retrying) Get(ctx context.Context, path string) ([]byte, error) {
	var out []byte
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		data, err := r.Inner.Get(ctx, path)
		if err != nil {
			return err
		}
		out = data
		return nil
	}, r.policy(ctx))
	if err != nil {
		return nil, &errtax.RemoteUnavailable{Path: path, Attempt: attempt, Cause: err}
	}
	return out, nil
}

func (r *Retrying) Put(ctx context.Context, path string, data []byte) error {
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		return r.Inner.Put(ctx, path, data)
	}, r.policy(ctx))
	if err != nil {
		return &errtax.RemoteUnavailable{Path: path, Attempt: attempt, Cause: err}
	}
	return nil
}

func (r *Retrying) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		paths, err := r.Inner.List(ctx, prefix)
		if err != nil {
			return err
		}
		out = paths
		return nil
	}, r.policy(ctx))
	if err != nil {
		return nil, &errtax.RemoteUnavailable{Path: prefix, Attempt: attempt, Cause: err}
	}
	return out, nil
}

func (r *Retrying) Remove(ctx context.Context, path string) error {
	return r.Inner.Remove(ctx, path)
}

func (r *Retrying) OpenRead(ctx context.Context, path string) (io.ReadCloser, error) {
	return r.Inner.OpenRead(ctx, path)
}

func (r *Retrying) OpenWrite(ctx context.Context, path string) (io.WriteCloser, error) {
	return r.Inner.OpenWrite(ctx, path)
}

func (r *Retrying) MTime(ctx context.Context, path string) (time.Time, error) {
	var out time.Time
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		t, err := r.Inner.MTime(ctx, path)
		if err != nil {
			return err
		}
		out = t
		return nil
	}, r.policy(ctx))
	if err != nil {
		return time.Time{}, &errtax.RemoteUnavailable{Path: path, Attempt: attempt, Cause: err}
	}
	return out, nil
}
