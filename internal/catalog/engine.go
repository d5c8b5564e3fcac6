package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"alto/internal/errtax"
	"alto/internal/fs"
)

// Discoverer invokes a tap's discovery mode and returns exactly the
// bytes it emitted — the Catalog Engine never rewrites discovery
// output before caching it.
type Discoverer interface {
	Discover(ctx context.Context, tap string) ([]byte, error)
}

// MetadataOverlay merges Metadata into every stream whose name matches
// Glob, per the Config Projection metadata-overlay declaration.
type MetadataOverlay struct {
	Glob     string
	Metadata map[string]any
}

// Engine discovers, caches, and projects catalogs.
type Engine struct {
	Remote     fs.Filesystem
	Discoverer Discoverer
}

func New(remote fs.Filesystem, discoverer Discoverer) *Engine {
	return &Engine{Remote: remote, Discoverer: discoverer}
}

func basePath(tap string) string {
	return fmt.Sprintf("catalogs/%s.base.json", tap)
}

// Base returns the cached base catalog for tap, invoking discovery on a
// cache miss. The cache key is the tap name alone, not the plugin
// fingerprint — the documented open-question resolution (see
// DESIGN.md): an install-URL change with the same tap name may reuse a
// stale discovery result, and `clean catalog:<tap>` is the remedy.
func (e *Engine) Base(ctx context.Context, tap string) (Catalog, error) {
	path := basePath(tap)
	if exists, err := e.Remote.Exists(ctx, path); err != nil {
		return Catalog{}, err
	} else if exists {
		data, err := e.Remote.Get(ctx, path)
		if err != nil {
			return Catalog{}, err
		}
		return decode(data)
	}

	raw, err := e.Discoverer.Discover(ctx, tap)
	if err != nil {
		return Catalog{}, &errtax.DiscoveryFailure{Tap: tap, Cause: err}
	}
	if len(raw) == 0 {
		return Catalog{}, &errtax.DiscoveryFailure{Tap: tap, Cause: fmt.Errorf("discovery produced empty output")}
	}
	cat, err := decode(raw)
	if err != nil {
		return Catalog{}, &errtax.DiscoveryFailure{Tap: tap, Cause: err}
	}
	// The base catalog cache is written with exactly the bytes the tap
	// emitted; only the in-memory Catalog value is decoded for callers.
	if err := e.Remote.Put(ctx, path, raw); err != nil {
		return Catalog{}, err
	}
	return cat, nil
}

func decode(data []byte) (Catalog, error) {
	var cat Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return Catalog{}, err
	}
	return cat, nil
}

// Runtime computes the runtime catalog from a base catalog: selection,
// then metadata overlays, then the PII field set. Selection is applied
// before metadata overlay, matching the documented pipeline order.
func Runtime(base Catalog, selectPatterns []string, overlays []MetadataOverlay) (rt Catalog, piiFields map[string]map[string]bool) {
	rt = base.Clone()
	sb := NewScoreboard(selectPatterns)
	piiFields = make(map[string]map[string]bool)

	for i := range rt.Streams {
		stream := &rt.Streams[i]
		selected := sb.StreamSelected(stream.TapStreamID)
		root := stream.RootMetadata()
		root.Metadata["selected"] = selected

		for _, prop := range stream.PropertyNames() {
			propSelected := selected && sb.PropertySelected(stream.TapStreamID, prop)
			pm := stream.PropertyMetadata(prop)
			pm.Metadata["selected"] = propSelected

			if sb.PIIMatches(stream.TapStreamID, prop) {
				if piiFields[stream.TapStreamID] == nil {
					piiFields[stream.TapStreamID] = make(map[string]bool)
				}
				piiFields[stream.TapStreamID][prop] = true
			}
		}
	}

	applyMetadataOverlays(rt, overlays)
	return rt, piiFields
}

// applyMetadataOverlays merges each overlay whose glob matches a
// stream's name into that stream's root metadata entry. Overlays are
// applied in ascending specificity so a more specific overlay's keys
// win over a less specific one's on conflict, per the documented
// specificity tie-break.
func applyMetadataOverlays(cat Catalog, overlays []MetadataOverlay) {
	sorted := append([]MetadataOverlay{}, overlays...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return literalPrefixLen(sorted[i].Glob) < literalPrefixLen(sorted[j].Glob)
	})

	for i := range cat.Streams {
		stream := &cat.Streams[i]
		root := stream.RootMetadata()
		for _, overlay := range sorted {
			if !globMatch(overlay.Glob, stream.TapStreamID) {
				continue
			}
			for k, v := range overlay.Metadata {
				root.Metadata[k] = v
			}
		}
	}
}
