package cli

import "testing"

func TestParseInvocation_Verbs(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want VerbKind
	}{
		{"list", []string{"list"}, VerbList},
		{"clean", []string{"clean", "cache"}, VerbClean},
		{"invoke", []string{"invoke", "tap-x", "--version"}, VerbInvoke},
		{"init", []string{"init"}, VerbInit},
		{"dump", []string{"dump", "build:tap-x"}, VerbDump},
		{"bare task key", []string{"tap-x:warehouse"}, VerbTaskKey},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inv, err := ParseInvocation(tc.args)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if inv.Verb != tc.want {
				t.Fatalf("expected verb %v, got %v", tc.want, inv.Verb)
			}
		})
	}
}

func TestParseInvocation_ListAll(t *testing.T) {
	inv, err := ParseInvocation([]string{"list", "--all"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !inv.ListAll {
		t.Fatalf("expected ListAll to be set")
	}
}

func TestParseInvocation_InvokePassesThroughArgs(t *testing.T) {
	inv, err := ParseInvocation([]string{"invoke", "tap-x", "--discover", "--config", "c.json"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.Plugin != "tap-x" {
		t.Fatalf("expected plugin tap-x, got %q", inv.Plugin)
	}
	want := []string{"--discover", "--config", "c.json"}
	if len(inv.PluginArgs) != len(want) {
		t.Fatalf("expected %d plugin args, got %d: %v", len(want), len(inv.PluginArgs), inv.PluginArgs)
	}
	for i, a := range want {
		if inv.PluginArgs[i] != a {
			t.Fatalf("plugin arg %d: expected %q, got %q", i, a, inv.PluginArgs[i])
		}
	}
}

func TestParseInvocation_ParallelAndConcurrency(t *testing.T) {
	inv, err := ParseInvocation([]string{"tap-x:warehouse", "--parallel", "--concurrency", "8"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !inv.Parallel {
		t.Fatalf("expected Parallel to be set")
	}
	if inv.Concurrency != 8 {
		t.Fatalf("expected concurrency 8, got %d", inv.Concurrency)
	}
}

func TestParseInvocation_DefaultConcurrency(t *testing.T) {
	inv, err := ParseInvocation([]string{"list"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.Concurrency != 4 {
		t.Fatalf("expected default concurrency 4, got %d", inv.Concurrency)
	}
}

func TestParseInvocation_Errors(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"empty", nil},
		{"clean without scope", []string{"clean"}},
		{"invoke without plugin", []string{"invoke"}},
		{"dump without task", []string{"dump"}},
		{"leading flag", []string{"--bogus"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseInvocation(tc.args)
			if err == nil {
				t.Fatalf("expected error")
			}
			invErr, ok := err.(*InvocationError)
			if !ok {
				t.Fatalf("expected *InvocationError, got %T", err)
			}
			if invErr.ExitCode != ExitInvalidInvocation {
				t.Fatalf("expected exit code %d, got %d", ExitInvalidInvocation, invErr.ExitCode)
			}
		})
	}
}

func TestParsePositiveInt(t *testing.T) {
	cases := map[string]int{
		"8":    8,
		"0":    0,
		"":     0,
		"12a":  0,
		"-1":   0,
		"4096": 4096,
	}
	for in, want := range cases {
		if got := parsePositiveInt(in); got != want {
			t.Fatalf("parsePositiveInt(%q) = %d, want %d", in, got, want)
		}
	}
}
