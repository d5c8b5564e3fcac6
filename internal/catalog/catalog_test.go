package catalog

import (
	"context"
	"encoding/json"
	"testing"

	"alto/internal/fs"
)

func ordersStreamCatalog() Catalog {
	return Catalog{
		Streams: []Stream{
			{
				TapStreamID: "orders",
				Schema: map[string]any{
					"properties": map[string]any{
						"id":            map[string]any{"type": "integer"},
						"secret_field":  map[string]any{"type": "string"},
						"total":         map[string]any{"type": "number"},
					},
				},
			},
		},
	}
}

func TestRuntime_SelectionExcludesOneFieldButSelectsStreamAndOthers(t *testing.T) {
	base := ordersStreamCatalog()

	rt, _ := Runtime(base, []string{"*.*", "!orders.secret_field"}, nil)

	stream := rt.Streams[0]
	if sel, _ := stream.RootMetadata().Metadata["selected"].(bool); !sel {
		t.Fatal("expected orders stream to be selected")
	}

	for _, prop := range []string{"id", "total"} {
		pm := stream.PropertyMetadata(prop)
		if sel, _ := pm.Metadata["selected"].(bool); !sel {
			t.Fatalf("expected property %q to be selected", prop)
		}
	}

	pm := stream.PropertyMetadata("secret_field")
	if sel, _ := pm.Metadata["selected"].(bool); sel {
		t.Fatal("expected secret_field to be excluded")
	}
}

func TestRuntime_PIIPrefixMarksFieldForHashing(t *testing.T) {
	base := Catalog{
		Streams: []Stream{{
			TapStreamID: "customers",
			Schema: map[string]any{
				"properties": map[string]any{"email": map[string]any{"type": "string"}},
			},
		}},
	}

	_, pii := Runtime(base, []string{"~customers.email"}, nil)

	if !pii["customers"]["email"] {
		t.Fatal("expected customers.email to be marked PII")
	}
}

func TestRuntime_MetadataOverlayMergesIntoRootMetadataBySpecificity(t *testing.T) {
	base := ordersStreamCatalog()

	rt, _ := Runtime(base, []string{"*.*"}, []MetadataOverlay{
		{Glob: "*", Metadata: map[string]any{"replication-method": "FULL_TABLE"}},
		{Glob: "orders", Metadata: map[string]any{"replication-method": "INCREMENTAL"}},
	})

	root := rt.Streams[0].RootMetadata()
	if root.Metadata["replication-method"] != "INCREMENTAL" {
		t.Fatalf("expected the more specific overlay to win, got %v", root.Metadata["replication-method"])
	}
}

func TestRuntime_Idempotent(t *testing.T) {
	base := ordersStreamCatalog()
	selectPatterns := []string{"*.*", "!orders.secret_field"}

	rt1, _ := Runtime(base, selectPatterns, nil)
	rt2, _ := Runtime(base, selectPatterns, nil)

	b1, _ := json.Marshal(rt1)
	b2, _ := json.Marshal(rt2)
	if string(b1) != string(b2) {
		t.Fatal("applying the runtime catalog pipeline twice produced different documents")
	}
}

type fakeDiscoverer struct {
	output []byte
	err    error
}

func (d fakeDiscoverer) Discover(ctx context.Context, tap string) ([]byte, error) {
	return d.output, d.err
}

func TestEngine_Base_CachesDiscoveryOutputVerbatim(t *testing.T) {
	ctx := context.Background()
	raw := []byte(`{"streams":[{"tap_stream_id":"orders","schema":{"properties":{}}}]}`)
	remote := fs.NewMemory(nil)
	engine := New(remote, fakeDiscoverer{output: raw})

	cat, err := engine.Base(ctx, "tap-x")
	if err != nil {
		t.Fatalf("Base: %v", err)
	}
	if len(cat.Streams) != 1 {
		t.Fatalf("expected one stream, got %d", len(cat.Streams))
	}

	stored, err := remote.Get(ctx, basePath("tap-x"))
	if err != nil {
		t.Fatalf("Get cached catalog: %v", err)
	}
	if string(stored) != string(raw) {
		t.Fatalf("expected cached bytes to match discovery output exactly, got %s", stored)
	}
}

func TestEngine_Base_EmptyDiscoveryOutputIsDiscoveryFailure(t *testing.T) {
	engine := New(fs.NewMemory(nil), fakeDiscoverer{output: nil})
	if _, err := engine.Base(context.Background(), "tap-x"); err == nil {
		t.Fatal("expected a discovery failure for empty output")
	}
}
