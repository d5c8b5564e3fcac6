package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"alto/internal/pluginspec"
	"alto/internal/task"
)

// Result is the outcome of one Execute call: ExitCode is the process
// exit code per spec.md §6 ("0 on success, non-zero equal to the
// failing task's exit code").
type Result struct {
	ExitCode int
	Graph    *task.Result
}

// Execute dispatches a parsed Invocation against a Project. It never
// calls os.Exit itself — cmd/alto's main is the only caller allowed to
// do that, keeping this function testable.
func Execute(ctx context.Context, p *Project, inv Invocation) (*Result, error) {
	switch inv.Verb {
	case VerbList:
		return execList(p, inv.ListAll)
	case VerbInit:
		return execInit(p)
	case VerbInvoke:
		return execInvoke(ctx, p, inv)
	case VerbDump:
		return execDump(ctx, p, inv.TaskKey)
	case VerbClean:
		return execTaskGraph(ctx, p, "clean:"+inv.TaskKey, inv)
	case VerbTaskKey:
		return execTaskGraph(ctx, p, inv.TaskKey, inv)
	default:
		return nil, &InvocationError{ExitCode: ExitInvalidInvocation, Message: "unrecognized verb"}
	}
}

func execTaskGraph(ctx context.Context, p *Project, rootKey string, inv Invocation) (*Result, error) {
	g, err := BuildGraph(ctx, p, rootKey)
	if err != nil {
		return &Result{ExitCode: ExitConfigError}, err
	}
	exec, err := task.NewExecutor(g, p.Log)
	if err != nil {
		return &Result{ExitCode: ExitInternalError}, err
	}

	var result *task.Result
	if inv.Parallel {
		result, err = exec.RunParallel(ctx, inv.Concurrency)
	} else {
		result, err = exec.RunSerial(ctx)
	}
	if err != nil {
		return &Result{ExitCode: ExitInternalError}, err
	}

	for _, key := range result.ExecutionOrder {
		if result.FinalState[key] == task.Failed {
			return &Result{ExitCode: result.ExitCode[key], Graph: result}, fmt.Errorf("task %q failed with exit code %d", key, result.ExitCode[key])
		}
	}
	return &Result{ExitCode: ExitSuccess, Graph: result}, nil
}

func execList(p *Project, all bool) (*Result, error) {
	for _, tap := range p.Registry.Names(pluginspec.KindTap) {
		fmt.Println("tap:" + tap)
		if all {
			for _, target := range p.Registry.Names(pluginspec.KindTarget) {
				fmt.Println(tap + ":" + target)
			}
		}
	}
	for _, target := range p.Registry.Names(pluginspec.KindTarget) {
		fmt.Println("target:" + target)
	}
	for _, u := range p.Registry.Names(pluginspec.KindUtility) {
		fmt.Println("utility:" + u)
	}
	return &Result{ExitCode: ExitSuccess}, nil
}

func execInit(p *Project) (*Result, error) {
	dirs := []string{
		p.Settings.ProjectRoot + "/.alto/plugins",
		p.Settings.ProjectRoot + "/.alto/catalogs",
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return &Result{ExitCode: ExitConfigError}, err
		}
	}
	return &Result{ExitCode: ExitSuccess}, nil
}

func execInvoke(ctx context.Context, p *Project, inv Invocation) (*Result, error) {
	spec, err := resolveEitherKind(p, inv.Plugin)
	if err != nil {
		return &Result{ExitCode: ExitConfigError}, err
	}
	exe, err := resolveExecutable(ctx, p, spec)
	if err != nil {
		return &Result{ExitCode: ExitInternalError}, err
	}
	view := pluginspec.ProjectPlugin(spec, p.projectEnvVars())
	code, err := runCheckInvocation(ctx, exe, inv.PluginArgs, view.Env)
	return &Result{ExitCode: code}, err
}

func execDump(ctx context.Context, p *Project, taskKey string) (*Result, error) {
	var payload any
	var err error
	switch {
	case strings.HasPrefix(taskKey, "catalog:"):
		payload, err = p.Catalogs.Base(ctx, strings.TrimPrefix(taskKey, "catalog:"))
	case strings.HasPrefix(taskKey, "apply:"):
		rt, pii, rtErr := loadRuntimeCatalog(ctx, p, strings.TrimPrefix(taskKey, "apply:"))
		err = rtErr
		if err == nil {
			payload = map[string]any{"catalog": rt, "pii_fields": pii}
		}
	default:
		rec, ok, getErr := p.Ledger.Get(ctx, taskKey)
		if getErr != nil {
			err = getErr
		} else if !ok {
			err = fmt.Errorf("no recorded task named %q", taskKey)
		} else {
			payload = rec
		}
	}
	if err != nil {
		return &Result{ExitCode: ExitConfigError}, err
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return &Result{ExitCode: ExitInternalError}, err
	}
	fmt.Println(string(data))
	return &Result{ExitCode: ExitSuccess}, nil
}

