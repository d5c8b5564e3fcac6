package pluginspec

import "testing"

func TestRegistry_Resolve_InheritFromMergesAncestorBeforeOverlay(t *testing.T) {
	base := PluginSpec{
		Name: "base-tap", Kind: KindTap, InstallURL: "pkg-base==1.0",
		Config: map[string]any{"host": "a", "port": float64(5432)},
	}
	child := PluginSpec{
		Name: "child-tap", Kind: KindTap, InheritFrom: "base-tap",
		Config: map[string]any{"port": float64(5433)},
	}

	reg, err := NewRegistry([]PluginSpec{base, child})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	resolved, err := reg.Resolve(KindTap, "child-tap")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if resolved.InstallURL != "pkg-base==1.0" {
		t.Errorf("expected inherited install url, got %q", resolved.InstallURL)
	}
	if resolved.Config["host"] != "a" {
		t.Errorf("expected inherited host, got %v", resolved.Config["host"])
	}
	if resolved.Config["port"] != float64(5433) {
		t.Errorf("expected overlay port to win, got %v", resolved.Config["port"])
	}
}

func TestRegistry_Resolve_DetectsInheritanceCycle(t *testing.T) {
	a := PluginSpec{Name: "a", Kind: KindTap, InheritFrom: "b"}
	b := PluginSpec{Name: "b", Kind: KindTap, InheritFrom: "a"}

	reg, err := NewRegistry([]PluginSpec{a, b})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	if _, err := reg.Resolve(KindTap, "a"); err == nil {
		t.Fatal("expected a cycle error, got nil")
	}
}

func TestNewRegistry_RejectsDuplicateNameWithinKind(t *testing.T) {
	specs := []PluginSpec{
		{Name: "dup", Kind: KindTap},
		{Name: "dup", Kind: KindTap},
	}
	if _, err := NewRegistry(specs); err == nil {
		t.Fatal("expected duplicate name error, got nil")
	}
}

func TestEnvironment_Effective_ConcatenatesSequences(t *testing.T) {
	env := Environment{
		Overlays: map[string]map[string]any{
			DefaultOverlay: {
				"taps": map[string]any{"tap-x": map[string]any{"select": []any{"*.*"}}},
				"tags": []any{"a", "b"},
			},
			"prod": {
				"tags": []any{"c"},
			},
		},
	}

	effective := env.Effective("prod")
	tags, ok := effective["tags"].([]any)
	if !ok || len(tags) != 3 {
		t.Fatalf("expected concatenated tags of length 3, got %v", effective["tags"])
	}
}

func TestEnvironment_Effective_AbsentOverlayMeansDefaultOnly(t *testing.T) {
	env := Environment{
		Overlays: map[string]map[string]any{
			DefaultOverlay: {"x": float64(1)},
		},
	}
	if got := env.Effective(""); got["x"] != float64(1) {
		t.Fatalf("expected default-only config, got %v", got)
	}
}

func TestProjectPipeline_AccentOverlayMergesIntoTargetConfig(t *testing.T) {
	tap := PluginSpec{
		Name: "tap-x", Kind: KindTap,
		Accents: map[string]map[string]any{
			"target-jsonl": {"destination_path": "/data/tap-x"},
		},
	}
	target := PluginSpec{
		Name: "target-jsonl", Kind: KindTarget,
		Config: map[string]any{"destination_path": "/data/default"},
	}

	_, targetView := ProjectPipeline(tap, target, nil)

	if targetView.Config["destination_path"] != "/data/tap-x" {
		t.Fatalf("expected accent override, got %v", targetView.Config["destination_path"])
	}
}

func TestProjectPipeline_LoadPathInheritsFromTap(t *testing.T) {
	tap := PluginSpec{Name: "tap-x", Kind: KindTap, LoadPath: "analytics.raw"}
	target := PluginSpec{Name: "target-jsonl", Kind: KindTarget, LoadPath: "unused"}

	tapView, targetView := ProjectPipeline(tap, target, nil)

	if tapView.LoadPath != "analytics.raw" || targetView.LoadPath != "analytics.raw" {
		t.Fatalf("expected both views to inherit tap load path, got tap=%q target=%q", tapView.LoadPath, targetView.LoadPath)
	}
}
