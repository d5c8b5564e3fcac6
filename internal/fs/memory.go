package fs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-memory driver used by tests and as the stand-in for a
// remote object store during local development, per the scope boundary
// that keeps concrete remote drivers out of this module.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
	mtimes  map[string]time.Time
	now     func() time.Time
}

// NewMemory returns an empty in-memory filesystem. now defaults to
// time.Now if nil; tests may inject a deterministic clock.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		entries: make(map[string][]byte),
		mtimes:  make(map[string]time.Time),
		now:     now,
	}
}

func (m *Memory) Exists(_ context.Context, path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[path]
	return ok, nil
}

func (m *Memory) Get(_ context.Context, path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.entries[path]
	if !ok {
		return nil, fmt.Errorf("memory fs: %s: not found", path)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) Put(_ context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	m.entries[path] = stored
	m.mtimes[path] = m.now()
	return nil
}

func (m *Memory) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for p := range m.entries {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Remove(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, path)
	delete(m.mtimes, path)
	return nil
}

func (m *Memory) OpenRead(ctx context.Context, path string) (io.ReadCloser, error) {
	data, err := m.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *Memory) OpenWrite(_ context.Context, path string) (io.WriteCloser, error) {
	return &memoryWriter{m: m, path: path}, nil
}

func (m *Memory) MTime(_ context.Context, path string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.mtimes[path]
	if !ok {
		return time.Time{}, fmt.Errorf("memory fs: %s: not found", path)
	}
	return t, nil
}

type memoryWriter struct {
	m    *Memory
	path string
	buf  bytes.Buffer
}

func (w *memoryWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *memoryWriter) Close() error {
	return w.m.Put(context.Background(), w.path, w.buf.Bytes())
}
