package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"alto/internal/altolog"
	"alto/internal/fs"
	"alto/internal/pluginspec"
)

func testProject(t *testing.T, specs []pluginspec.PluginSpec) *Project {
	t.Helper()
	settings := Settings{
		ProjectRoot:    t.TempDir(),
		InterpreterTag: "go1.22",
		ArchTag:        "linux/amd64",
	}
	p, err := NewProject(settings, specs, pluginspec.Environment{}, fs.NewMemory(nil), altolog.Nop())
	if err != nil {
		t.Fatalf("NewProject: %v", err)
	}
	return p
}

func TestExecute_List(t *testing.T) {
	p := testProject(t, []pluginspec.PluginSpec{
		{Name: "tap-x", Kind: pluginspec.KindTap},
		{Name: "warehouse", Kind: pluginspec.KindTarget},
	})
	inv, err := ParseInvocation([]string{"list"})
	if err != nil {
		t.Fatalf("ParseInvocation: %v", err)
	}
	result, err := Execute(context.Background(), p, inv)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ExitCode != ExitSuccess {
		t.Fatalf("expected exit code %d, got %d", ExitSuccess, result.ExitCode)
	}
}

func TestExecute_Init(t *testing.T) {
	p := testProject(t, nil)
	inv, err := ParseInvocation([]string{"init"})
	if err != nil {
		t.Fatalf("ParseInvocation: %v", err)
	}
	result, err := Execute(context.Background(), p, inv)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ExitCode != ExitSuccess {
		t.Fatalf("expected exit code %d, got %d", ExitSuccess, result.ExitCode)
	}
	for _, d := range []string{"plugins", "catalogs"} {
		dir := filepath.Join(p.Settings.ProjectRoot, ".alto", d)
		if _, err := os.Stat(dir); err != nil {
			t.Fatalf("expected %s to exist: %v", dir, err)
		}
	}
}

func TestExecute_UnresolvablePluginReferenceFails(t *testing.T) {
	p := testProject(t, nil)
	inv, err := ParseInvocation([]string{"build:does-not-exist"})
	if err != nil {
		t.Fatalf("ParseInvocation: %v", err)
	}
	result, err := Execute(context.Background(), p, inv)
	if err == nil {
		t.Fatalf("expected an error for an unresolvable plugin reference")
	}
	if result == nil || result.ExitCode != ExitConfigError {
		t.Fatalf("expected ExitConfigError, got %+v", result)
	}
}

func TestExecTaskGraph_BuildSetupErrorMapsToInternalError(t *testing.T) {
	p := testProject(t, []pluginspec.PluginSpec{
		{
			Name:       "tap-x",
			Kind:       pluginspec.KindTap,
			InstallURL: "pkg-x==1.0",
			Executable: "tap-x",
		},
	})
	// No "pip" binary resolves inside the test sandbox, so build:tap-x's
	// install step fails and the task's Execute closure returns a bare
	// error rather than a failing Outcome. That takes RunSerial's
	// error-return path, which execTaskGraph maps to ExitInternalError
	// rather than a task-specific exit code — build/config/catalog setup
	// failures aren't a running plugin's own exit status, only pipeline
	// task runs carry one of those.
	inv, err := ParseInvocation([]string{"build:tap-x"})
	if err != nil {
		t.Fatalf("ParseInvocation: %v", err)
	}
	result, execErr := Execute(context.Background(), p, inv)
	if execErr == nil {
		t.Fatalf("expected build:tap-x to fail without a real installer")
	}
	if result == nil {
		t.Fatalf("expected a non-nil result even on failure")
	}
	if result.ExitCode != ExitInternalError {
		t.Fatalf("expected ExitInternalError, got %d", result.ExitCode)
	}
}
