package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sh(script string) Invocation {
	return Invocation{Path: "/bin/sh", Args: []string{"-c", script}}
}

func TestRun_CopiesRecordsFromTapToTarget(t *testing.T) {
	dir, err := os.MkdirTemp("", "pipeline-run-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)
	out := filepath.Join(dir, "target.out")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = Run(ctx, Options{
		Tap:    sh(`echo '{"type":"RECORD","stream":"orders","record":{"id":1}}'`),
		Target: sh("cat > " + out),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(got), `"id":1`) {
		t.Fatalf("expected target to receive the tap's record, got %q", got)
	}
}

func TestRun_InterceptsFinalStateLine(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := Run(ctx, Options{
		Tap:    sh(`true`),
		Target: sh(`echo '{"type":"STATE","value":{"bookmarks":{"orders":42}}}'`),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	bookmarks, ok := result.FinalState["bookmarks"].(map[string]any)
	if !ok {
		t.Fatalf("expected a bookmarks map in final state, got %#v", result.FinalState)
	}
	if bookmarks["orders"] != float64(42) {
		t.Fatalf("expected orders bookmark 42, got %v", bookmarks["orders"])
	}
}

func TestRun_PIIFieldsAreHashedBeforeReachingTarget(t *testing.T) {
	dir, err := os.MkdirTemp("", "pipeline-run-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)
	out := filepath.Join(dir, "target.out")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = Run(ctx, Options{
		Tap:     sh(`echo '{"type":"RECORD","stream":"customers","record":{"email":"a@example.com"}}'`),
		Target:  sh("cat > " + out),
		PII:     PIIFields{"customers": {"email": true}},
		PIISalt: "project-salt",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.Contains(string(got), "a@example.com") {
		t.Fatalf("expected email to be hashed, got plaintext in %q", got)
	}
	want := HashField("project-salt", "a@example.com")
	if !strings.Contains(string(got), want) {
		t.Fatalf("expected hashed value %q in target input, got %q", want, got)
	}
}

func TestRun_NonPIIStreamPassesThroughByteIdentical(t *testing.T) {
	dir, err := os.MkdirTemp("", "pipeline-run-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)
	out := filepath.Join(dir, "target.out")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	line := `{"type":"SCHEMA","stream":"orders","schema":{}}`
	_, err = Run(ctx, Options{
		Tap:     sh("echo '" + line + "'"),
		Target:  sh("cat > " + out),
		PII:     PIIFields{"customers": {"email": true}},
		PIISalt: "project-salt",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.TrimRight(string(got), "\n") != line {
		t.Fatalf("expected byte-identical passthrough, got %q want %q", got, line)
	}
}

func TestRun_NonZeroTapExitIsReportedAsPipelineFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := Run(ctx, Options{
		Tap:    sh(`exit 3`),
		Target: sh(`cat > /dev/null`),
	})
	if err == nil {
		t.Fatal("expected an error for a failing tap")
	}
	if result == nil || result.TapExitCode != 3 {
		t.Fatalf("expected tap exit code 3, got %#v", result)
	}
}

func TestRun_StreamMapFiltersBetweenTapAndTarget(t *testing.T) {
	dir, err := os.MkdirTemp("", "pipeline-run-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)
	out := filepath.Join(dir, "target.out")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	streamMap := sh(`sed 's/orders/orders_renamed/'`)
	_, err = Run(ctx, Options{
		Tap:       sh(`echo '{"type":"RECORD","stream":"orders","record":{}}'`),
		Target:    sh("cat > " + out),
		StreamMap: &streamMap,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(got), "orders_renamed") {
		t.Fatalf("expected stream-map rewrite to reach the target, got %q", got)
	}
}
