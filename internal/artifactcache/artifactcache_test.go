package artifactcache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"alto/internal/fs"
	"alto/internal/pluginspec"
)

type counterBuilder struct {
	calls int32
	delay time.Duration
}

func (b *counterBuilder) Build(ctx context.Context, spec pluginspec.PluginSpec) ([]byte, error) {
	atomic.AddInt32(&b.calls, 1)
	time.Sleep(b.delay)
	return []byte("#!/bin/sh\necho " + spec.Name), nil
}

func TestCache_GetOrBuild_BuildsOnceOnCacheMiss(t *testing.T) {
	ctx := context.Background()
	builder := &counterBuilder{}
	cache := New(fs.NewMemory(nil), fs.NewMemory(nil), builder, nil)
	spec := pluginspec.PluginSpec{Name: "tap-x", InstallURL: "pkg-x==1.0", Executable: "tap-x"}

	path1, err := cache.GetOrBuild(ctx, spec, "cp311", "x86_64")
	if err != nil {
		t.Fatalf("GetOrBuild (1): %v", err)
	}
	path2, err := cache.GetOrBuild(ctx, spec, "cp311", "x86_64")
	if err != nil {
		t.Fatalf("GetOrBuild (2): %v", err)
	}

	if path1 != path2 {
		t.Fatalf("expected same path, got %q and %q", path1, path2)
	}
	if builder.calls != 1 {
		t.Fatalf("expected exactly one build, got %d", builder.calls)
	}
}

func TestCache_GetOrBuild_ConcurrentCallsCoalesceToOneBuild(t *testing.T) {
	ctx := context.Background()
	builder := &counterBuilder{delay: 20 * time.Millisecond}
	cache := New(fs.NewMemory(nil), fs.NewMemory(nil), builder, nil)
	spec := pluginspec.PluginSpec{Name: "tap-x", InstallURL: "pkg-x==1.0", Executable: "tap-x"}

	var wg sync.WaitGroup
	paths := make([]string, 8)
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := cache.GetOrBuild(ctx, spec, "cp311", "x86_64")
			if err != nil {
				t.Errorf("GetOrBuild: %v", err)
				return
			}
			paths[i] = p
		}(i)
	}
	wg.Wait()

	for _, p := range paths {
		if p != paths[0] {
			t.Fatalf("expected all callers to observe the same path, got %v", paths)
		}
	}
	if builder.calls != 1 {
		t.Fatalf("expected exactly one build across concurrent callers, got %d", builder.calls)
	}
}

func TestCache_GetOrBuild_RetrievesFromRemoteWithoutRebuilding(t *testing.T) {
	ctx := context.Background()
	builder := &counterBuilder{}
	remote := fs.NewMemory(nil)
	spec := pluginspec.PluginSpec{Name: "tap-x", InstallURL: "pkg-x==1.0", Executable: "tap-x"}

	warm := New(fs.NewMemory(nil), remote, builder, nil)
	if _, err := warm.GetOrBuild(ctx, spec, "cp311", "x86_64"); err != nil {
		t.Fatalf("warm build: %v", err)
	}

	cold := New(fs.NewMemory(nil), remote, builder, nil)
	if _, err := cold.GetOrBuild(ctx, spec, "cp311", "x86_64"); err != nil {
		t.Fatalf("cold retrieval: %v", err)
	}

	if builder.calls != 1 {
		t.Fatalf("expected no rebuild on remote hit, got %d builds", builder.calls)
	}
}
