package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"alto/internal/catalog"
	"alto/internal/errtax"
	"alto/internal/fingerprint"
	"alto/internal/pipeline"
	"alto/internal/pluginspec"
	"alto/internal/reservoir"
	"alto/internal/statestore"
	"alto/internal/task"
)

// newStageDir creates a fresh staging directory for one task invocation,
// named by a uuid rather than os.MkdirTemp's random suffix so the
// directory name doubles as the run identifier in logs.
func newStageDir(prefix string) (string, error) {
	dir := filepath.Join(os.TempDir(), prefix+"-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// builder accumulates the transitive closure of a requested task key
// into a task.Graph, memoizing one task.Task per key so a diamond
// dependency (e.g. two pipelines sharing config:tap-x) is only visited
// once.
type builder struct {
	p       *Project
	ctx     context.Context
	tasks   map[string]task.Task
	edges   []task.Edge
	visited map[string]bool
}

// BuildGraph computes the transitive closure of rootKey's dependencies
// per the DAG edge rules and returns a ready-to-execute task.Graph.
func BuildGraph(ctx context.Context, p *Project, rootKey string) (*task.Graph, error) {
	b := &builder{p: p, ctx: ctx, tasks: map[string]task.Task{}, visited: map[string]bool{}}
	if err := b.add(rootKey); err != nil {
		return nil, err
	}
	tasks := make([]task.Task, 0, len(b.tasks))
	for _, t := range b.tasks {
		tasks = append(tasks, t)
	}
	return task.NewGraph(tasks, b.edges)
}

func (b *builder) add(key string) error {
	if b.visited[key] {
		return nil
	}
	b.visited[key] = true

	switch {
	case strings.HasPrefix(key, "build:"):
		return b.addBuild(key, strings.TrimPrefix(key, "build:"))
	case strings.HasPrefix(key, "config:"):
		return b.addConfig(key, strings.TrimPrefix(key, "config:"))
	case strings.HasPrefix(key, "catalog:"):
		return b.addCatalog(key, strings.TrimPrefix(key, "catalog:"))
	case strings.HasPrefix(key, "apply:"):
		return b.addApply(key, strings.TrimPrefix(key, "apply:"))
	case strings.HasPrefix(key, "test:"):
		return b.addTest(key, strings.TrimPrefix(key, "test:"))
	case strings.HasPrefix(key, "about:"):
		return b.addAbout(key, strings.TrimPrefix(key, "about:"))
	case strings.HasPrefix(key, "clean:"):
		return b.addClean(key, strings.TrimPrefix(key, "clean:"))
	case strings.HasPrefix(key, "reservoir:"):
		return b.addReservoirReplay(key, strings.TrimPrefix(key, "reservoir:"))
	default:
		tap, target, ok := splitPipelineKey(key)
		if !ok {
			return fmt.Errorf("unrecognized task key %q", key)
		}
		if target == "reservoir" {
			return b.addTapToReservoir(key, tap)
		}
		return b.addPipeline(key, tap, target)
	}
}

func (b *builder) dependOn(key string, deps ...string) error {
	for _, dep := range deps {
		if err := b.add(dep); err != nil {
			return err
		}
		b.edges = append(b.edges, task.Edge{From: dep, To: key})
	}
	return nil
}

// splitPipelineKey splits "<tap>:<target>" at the colon that separates
// a declared tap name from a declared target name, since either half
// may itself contain hyphens but never a colon.
func splitPipelineKey(key string) (tap, target string, ok bool) {
	i := strings.IndexByte(key, ':')
	if i < 0 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

func resolveEitherKind(p *Project, name string) (pluginspec.PluginSpec, error) {
	if spec, err := p.Registry.Resolve(pluginspec.KindTap, name); err == nil {
		return spec, nil
	}
	return p.Registry.Resolve(pluginspec.KindTarget, name)
}

// ---- build:<plugin> ----

func (b *builder) addBuild(key, plugin string) error {
	spec, err := resolveEitherKind(b.p, plugin)
	if err != nil {
		return err
	}
	fp := fingerprint.Plugin(fingerprint.PluginInputs{
		InstallURL:        spec.InstallURL,
		ExecutableOrEntry: spec.ExecutableOrEntrypoint(),
		InterpreterTag:    b.p.Settings.InterpreterTag,
		ArchTag:           b.p.Settings.ArchTag,
	})
	p := b.p
	b.tasks[key] = task.Task{
		Key:         key,
		Fingerprint: string(fp),
		Execute: func(ctx context.Context) (*task.Outcome, error) {
			path, err := p.Cache.GetOrBuild(ctx, spec, p.Settings.InterpreterTag, p.Settings.ArchTag)
			if err != nil {
				return nil, err
			}
			fromCache := false
			if rec, ok, _ := p.Ledger.Get(ctx, key); ok && rec.Fingerprint == string(fp) && rec.Succeeded {
				fromCache = true
			}
			_ = p.Ledger.Put(ctx, task.Record{Key: key, Fingerprint: string(fp), Succeeded: true, UpdatedAt: stamp()})
			p.Log.Debug("build ready", zapField("plugin", plugin), zapField("path", path))
			return &task.Outcome{ExitCode: 0, FromCache: fromCache}, nil
		},
	}
	return nil
}

// ---- config:<plugin> ----

// configArtifactPath is where config:<plugin> materializes its
// projected configuration, per spec.md §4.4's "a materialized JSON
// configuration file for the plugin" — every site that needs a
// plugin's config on disk (a pipeline run, a tap->reservoir capture,
// test:<tap>, discovery) reads this file instead of re-deriving its
// own copy of the projection.
func configArtifactPath(plugin string) string {
	return fmt.Sprintf("configs/%s.json", plugin)
}

func (b *builder) addConfig(key, plugin string) error {
	spec, err := resolveEitherKind(b.p, plugin)
	if err != nil {
		return err
	}
	p := b.p
	view := pluginspec.ProjectPlugin(spec, p.projectEnvVars())
	scalars, err := scalarsFor(view)
	if err != nil {
		return err
	}
	fp := fingerprint.Task(fingerprint.TaskInputs{Scalars: scalars})

	b.tasks[key] = task.Task{
		Key:         key,
		Fingerprint: string(fp),
		Execute: func(ctx context.Context) (*task.Outcome, error) {
			fromCache := false
			if rec, ok, _ := p.Ledger.Get(ctx, key); ok && rec.Fingerprint == string(fp) && rec.Succeeded {
				fromCache = true
			}
			data, err := json.MarshalIndent(view.Config, "", "  ")
			if err != nil {
				return nil, err
			}
			if err := p.Local.Put(ctx, configArtifactPath(plugin), data); err != nil {
				return nil, err
			}
			_ = p.Ledger.Put(ctx, task.Record{Key: key, Fingerprint: string(fp), Succeeded: true, UpdatedAt: stamp()})
			return &task.Outcome{ExitCode: 0, FromCache: fromCache}, nil
		},
	}
	return nil
}

// stageConfigFile copies config:<plugin>'s materialized artifact into
// stage so it can be handed to the plugin process as a real on-disk
// path, the same way every other staged input (catalog.json,
// state.json) is local to one run. It errors clearly if config:<plugin>
// never ran, rather than silently falling back to a recomputed view.
func stageConfigFile(ctx context.Context, p *Project, stage, plugin string) (string, error) {
	data, err := p.Local.Get(ctx, configArtifactPath(plugin))
	if err != nil {
		return "", fmt.Errorf("loading projected config for %s (run config:%s first): %w", plugin, plugin, err)
	}
	path := filepath.Join(stage, plugin+"-config.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func scalarsFor(view pluginspec.View) (map[string]string, error) {
	cfg, err := json.Marshal(view.Config)
	if err != nil {
		return nil, err
	}
	env, err := json.Marshal(view.Env)
	if err != nil {
		return nil, err
	}
	return map[string]string{"config": string(cfg), "env": string(env), "loadpath": view.LoadPath}, nil
}

// ---- catalog:<tap> ----

func (b *builder) addCatalog(key, tap string) error {
	if err := b.dependOn(key, "config:"+tap); err != nil {
		return err
	}
	spec, err := b.p.Registry.Resolve(pluginspec.KindTap, tap)
	if err != nil {
		return err
	}
	p := b.p
	fp := fingerprint.Task(fingerprint.TaskInputs{Scalars: map[string]string{
		"tap": tap, "install_url": spec.InstallURL, "executable": spec.ExecutableOrEntrypoint(),
	}})

	b.tasks[key] = task.Task{
		Key:         key,
		Fingerprint: string(fp),
		Execute: func(ctx context.Context) (*task.Outcome, error) {
			exists, _ := p.Remote.Exists(ctx, catalogBasePath(tap))
			if exists {
				if rec, ok, _ := p.Ledger.Get(ctx, key); ok && rec.Fingerprint == string(fp) && rec.Succeeded {
					return &task.Outcome{ExitCode: 0, FromCache: true}, nil
				}
			}
			if _, err := p.Catalogs.Base(ctx, tap); err != nil {
				return &task.Outcome{ExitCode: 1}, err
			}
			_ = p.Ledger.Put(ctx, task.Record{Key: key, Fingerprint: string(fp), Succeeded: true, UpdatedAt: stamp()})
			return &task.Outcome{ExitCode: 0}, nil
		},
	}
	return nil
}

func catalogBasePath(tap string) string { return fmt.Sprintf("catalogs/%s.base.json", tap) }

// ---- apply:<tap> ----

func (b *builder) addApply(key, tap string) error {
	if err := b.dependOn(key, "catalog:"+tap, "config:"+tap); err != nil {
		return err
	}
	spec, err := b.p.Registry.Resolve(pluginspec.KindTap, tap)
	if err != nil {
		return err
	}
	p := b.p
	selectPatterns := make([]string, len(spec.Select))
	for i, sp := range spec.Select {
		selectPatterns[i] = string(sp)
	}
	overlays := make([]catalog.MetadataOverlay, len(spec.Metadata))
	for i, m := range spec.Metadata {
		overlays[i] = catalog.MetadataOverlay{Glob: m.Glob, Metadata: m.Metadata}
	}

	b.tasks[key] = task.Task{
		Key: key,
		// The fingerprint covers only the tap name; the base catalog's
		// bytes do not enter it. Execute re-derives the runtime catalog
		// on every run — apply is cheap and deterministic, re-running it
		// is never more than a local JSON transform.
		Fingerprint: string(fingerprint.Task(fingerprint.TaskInputs{Scalars: map[string]string{"tap": tap}})),
		Execute: func(ctx context.Context) (*task.Outcome, error) {
			base, err := p.Catalogs.Base(ctx, tap)
			if err != nil {
				return &task.Outcome{ExitCode: 1}, err
			}
			rt, pii := catalog.Runtime(base, selectPatterns, overlays)
			rtBytes, err := json.MarshalIndent(rt, "", "  ")
			if err != nil {
				return nil, err
			}
			if err := p.Local.Put(ctx, fmt.Sprintf("catalogs/%s.runtime.json", tap), rtBytes); err != nil {
				return nil, err
			}
			piiBytes, err := json.Marshal(pii)
			if err != nil {
				return nil, err
			}
			if err := p.Local.Put(ctx, fmt.Sprintf("catalogs/%s.pii.json", tap), piiBytes); err != nil {
				return nil, err
			}
			return &task.Outcome{ExitCode: 0}, nil
		},
	}
	return nil
}

func loadRuntimeCatalog(ctx context.Context, p *Project, tap string) (catalog.Catalog, map[string]map[string]bool, error) {
	var rt catalog.Catalog
	data, err := p.Local.Get(ctx, fmt.Sprintf("catalogs/%s.runtime.json", tap))
	if err != nil {
		return rt, nil, err
	}
	if err := json.Unmarshal(data, &rt); err != nil {
		return rt, nil, err
	}
	piiData, err := p.Local.Get(ctx, fmt.Sprintf("catalogs/%s.pii.json", tap))
	if err != nil {
		return rt, nil, err
	}
	var pii map[string]map[string]bool
	if err := json.Unmarshal(piiData, &pii); err != nil {
		return rt, nil, err
	}
	return rt, pii, nil
}

// ---- <tap>:<target> pipeline ----

func (b *builder) addPipeline(key, tap, target string) error {
	if err := b.dependOn(key, "build:"+tap, "build:"+target, "config:"+tap, "config:"+target, "apply:"+tap); err != nil {
		return err
	}
	p := b.p
	b.tasks[key] = task.Task{
		Key:         key,
		Fingerprint: string(fingerprint.Task(fingerprint.TaskInputs{Scalars: map[string]string{"tap": tap, "target": target, "stamp": stamp()}})),
		Execute: func(ctx context.Context) (*task.Outcome, error) {
			return runPipeline(ctx, p, tap, target)
		},
	}
	return nil
}

func runPipeline(ctx context.Context, p *Project, tap, target string) (*task.Outcome, error) {
	tapSpec, err := p.Registry.Resolve(pluginspec.KindTap, tap)
	if err != nil {
		return nil, err
	}
	targetSpec, err := p.Registry.Resolve(pluginspec.KindTarget, target)
	if err != nil {
		return nil, err
	}
	tapView, targetView := pluginspec.ProjectPipeline(tapSpec, targetSpec, p.projectEnvVars())

	rt, pii, err := loadRuntimeCatalog(ctx, p, tap)
	if err != nil {
		return nil, fmt.Errorf("loading runtime catalog for %s (run apply:%s first): %w", tap, tap, err)
	}

	stage, err := newStageDir("alto-pipeline-" + tap + "-" + target)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(stage)
	p.Log.Info("running pipeline", zap.String("tap", tap), zap.String("target", target), zap.String("run_id", filepath.Base(stage)))

	tapExe, err := resolveExecutable(ctx, p, tapSpec)
	if err != nil {
		return nil, err
	}
	targetExe, err := resolveExecutable(ctx, p, targetSpec)
	if err != nil {
		return nil, err
	}

	tapConfigPath, err := stageConfigFile(ctx, p, stage, tap)
	if err != nil {
		return nil, err
	}
	targetConfigPath, err := stageConfigFile(ctx, p, stage, target)
	if err != nil {
		return nil, err
	}
	catalogBytes, err := json.Marshal(rt)
	if err != nil {
		return nil, err
	}
	catalogPath := filepath.Join(stage, "catalog.json")
	if err := os.WriteFile(catalogPath, catalogBytes, 0o644); err != nil {
		return nil, err
	}

	activeState, err := p.States.LoadActive(ctx, p.Settings.Environment, tap, target)
	if err != nil {
		return nil, err
	}

	tapArgs := []string{"--config", tapConfigPath, "--catalog", catalogPath}
	var statePath string
	if activeState != nil {
		stateBytes, err := json.Marshal(activeState)
		if err != nil {
			return nil, err
		}
		statePath = filepath.Join(stage, "state.json")
		if err := os.WriteFile(statePath, stateBytes, 0o644); err != nil {
			return nil, err
		}
		tapArgs = append(tapArgs, "--state", statePath)
	}

	tapLog, targetLog, err := openLogFiles(stage)
	if err != nil {
		return nil, err
	}
	defer tapLog.Close()
	defer targetLog.Close()

	result, runErr := pipeline.Run(ctx, pipeline.Options{
		Tap:         pipeline.Invocation{Path: tapExe, Args: tapArgs, Env: tapView.Env, Stderr: tapLog},
		Target:      pipeline.Invocation{Path: targetExe, Args: []string{"--config", targetConfigPath}, Env: targetView.Env, Stderr: targetLog},
		PII:         pipeline.PIIFields(pii),
		PIISalt:     p.Settings.PIISalt,
		GracePeriod: p.Settings.GracePeriod,
		Log:         p.Log,
	})
	if result == nil {
		return nil, runErr
	}
	if runErr == nil && result.FinalState != nil {
		if err := p.States.Commit(ctx, p.Settings.Environment, tap, target, result.FinalState, stamp()); err != nil {
			return nil, err
		}
	}
	exitCode := result.TapExitCode
	if result.TargetExitCode != 0 {
		exitCode = result.TargetExitCode
	}
	return &task.Outcome{ExitCode: exitCode}, runErr
}

func resolveExecutable(ctx context.Context, p *Project, spec pluginspec.PluginSpec) (string, error) {
	path, err := p.Cache.GetOrBuild(ctx, spec, p.Settings.InterpreterTag, p.Settings.ArchTag)
	if err != nil {
		return "", err
	}
	return localAbsPath(p.Local, path)
}

func openLogFiles(stage string) (tapLog, targetLog *os.File, err error) {
	tapLog, err = os.Create(filepath.Join(stage, "tap.stderr.log"))
	if err != nil {
		return nil, nil, err
	}
	targetLog, err = os.Create(filepath.Join(stage, "target.stderr.log"))
	if err != nil {
		tapLog.Close()
		return nil, nil, err
	}
	return tapLog, targetLog, nil
}

// ---- <tap>:reservoir ----

func (b *builder) addTapToReservoir(key, tap string) error {
	if err := b.dependOn(key, "build:"+tap, "config:"+tap, "apply:"+tap); err != nil {
		return err
	}
	p := b.p
	b.tasks[key] = task.Task{
		Key:         key,
		Fingerprint: string(fingerprint.Task(fingerprint.TaskInputs{Scalars: map[string]string{"tap": tap, "stamp": stamp()}})),
		Execute: func(ctx context.Context) (*task.Outcome, error) {
			return runTapToReservoir(ctx, p, tap)
		},
	}
	return nil
}

func runTapToReservoir(ctx context.Context, p *Project, tap string) (*task.Outcome, error) {
	tapSpec, err := p.Registry.Resolve(pluginspec.KindTap, tap)
	if err != nil {
		return nil, err
	}
	tapView := pluginspec.ProjectPlugin(tapSpec, p.projectEnvVars())
	rt, pii, err := loadRuntimeCatalog(ctx, p, tap)
	if err != nil {
		return nil, fmt.Errorf("loading runtime catalog for %s (run apply:%s first): %w", tap, tap, err)
	}

	stage, err := newStageDir("alto-reservoir-" + tap)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(stage)
	p.Log.Info("capturing tap into reservoir", zap.String("tap", tap), zap.String("run_id", filepath.Base(stage)))

	tapExe, err := resolveExecutable(ctx, p, tapSpec)
	if err != nil {
		return nil, err
	}
	tapConfigPath, err := stageConfigFile(ctx, p, stage, tap)
	if err != nil {
		return nil, err
	}
	catalogBytes, err := json.Marshal(rt)
	if err != nil {
		return nil, err
	}
	catalogPath := filepath.Join(stage, "catalog.json")
	if err := os.WriteFile(catalogPath, catalogBytes, 0o644); err != nil {
		return nil, err
	}

	tapLog, err := os.Create(filepath.Join(stage, "tap.stderr.log"))
	if err != nil {
		return nil, err
	}
	defer tapLog.Close()

	reservoirResult, runErr := captureIntoReservoir(ctx, p, tap, tapExe, tapConfigPath, catalogPath, tapView, pii, tapLog)
	if runErr != nil {
		return &task.Outcome{ExitCode: 1}, runErr
	}
	return reservoirResult, nil
}

func stamp() string { return time.Now().UTC().Format("20060102150405") }

// ---- reservoir:<tap>-<target> ----

func (b *builder) addReservoirReplay(key, arg string) error {
	tap, target, ok := splitTapTargetHyphen(b.p, arg)
	if !ok {
		return fmt.Errorf("reservoir replay key %q does not name a known tap-target pair", key)
	}
	if err := b.dependOn(key, "build:"+target, "config:"+target); err != nil {
		return err
	}
	p := b.p
	b.tasks[key] = task.Task{
		Key:         key,
		Fingerprint: string(fingerprint.Task(fingerprint.TaskInputs{Scalars: map[string]string{"tap": tap, "target": target, "stamp": stamp()}})),
		Execute: func(ctx context.Context) (*task.Outcome, error) {
			return runReservoirReplay(ctx, p, tap, target)
		},
	}
	return nil
}

// splitTapTargetHyphen finds the hyphen split point in "<tap>-<target>"
// that matches a declared tap name against a declared target name,
// since either half may itself contain hyphens.
func splitTapTargetHyphen(p *Project, arg string) (tap, target string, ok bool) {
	for i := 0; i < len(arg); i++ {
		if arg[i] != '-' {
			continue
		}
		candidateTap, candidateTarget := arg[:i], arg[i+1:]
		if _, err := p.Registry.Resolve(pluginspec.KindTap, candidateTap); err != nil {
			continue
		}
		if _, err := p.Registry.Resolve(pluginspec.KindTarget, candidateTarget); err != nil {
			continue
		}
		return candidateTap, candidateTarget, true
	}
	return "", "", false
}

func runReservoirReplay(ctx context.Context, p *Project, tap, target string) (*task.Outcome, error) {
	targetSpec, err := p.Registry.Resolve(pluginspec.KindTarget, target)
	if err != nil {
		return nil, err
	}
	targetView := pluginspec.ProjectPlugin(targetSpec, p.projectEnvVars())

	since := ""
	if active, err := p.States.LoadActive(ctx, p.Settings.Environment, tap, target); err == nil && active != nil {
		if ts, ok := active["_reservoir_replayed_through"].(string); ok {
			since = ts
		}
	}

	reader := newReservoirReader(p, tap)
	partitions, err := reader.Partitions(ctx, since)
	if err != nil {
		return nil, err
	}
	if len(partitions) == 0 {
		return &task.Outcome{ExitCode: 0}, nil
	}

	stage, err := newStageDir("alto-replay-" + tap + "-" + target)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(stage)
	p.Log.Info("replaying reservoir into target", zap.String("tap", tap), zap.String("target", target), zap.String("run_id", filepath.Base(stage)))

	targetExe, err := resolveExecutable(ctx, p, targetSpec)
	if err != nil {
		return nil, err
	}
	targetConfigPath, err := stageConfigFile(ctx, p, stage, target)
	if err != nil {
		return nil, err
	}
	targetLog, err := os.Create(filepath.Join(stage, "target.stderr.log"))
	if err != nil {
		return nil, err
	}
	defer targetLog.Close()

	interceptor := &statestore.Interceptor{}
	exitCode, runErr := replaySequentialIntoTarget(ctx, reader, partitions, targetExe, targetConfigPath, targetView.Env, targetLog, interceptor)
	if runErr != nil {
		return &task.Outcome{ExitCode: exitCode}, runErr
	}

	if interceptor.Last() != nil {
		newState := interceptor.Last()
		newState["_reservoir_replayed_through"] = partitions[len(partitions)-1].WrittenAt
		if err := p.States.Commit(ctx, p.Settings.Environment, tap, target, newState, stamp()); err != nil {
			return nil, err
		}
	}
	return &task.Outcome{ExitCode: exitCode}, nil
}

// ---- test:<tap> ----

func (b *builder) addTest(key, tap string) error {
	if err := b.dependOn(key, "build:"+tap, "config:"+tap); err != nil {
		return err
	}
	spec, err := b.p.Registry.Resolve(pluginspec.KindTap, tap)
	if err != nil {
		return err
	}
	if !spec.Supports(pluginspec.CapTest) {
		return &errtax.ConfigError{Path: "tap." + tap + ".capabilities", Message: "plugin does not declare test capability"}
	}
	p := b.p
	b.tasks[key] = task.Task{
		Key:         key,
		Fingerprint: string(fingerprint.Task(fingerprint.TaskInputs{Scalars: map[string]string{"tap": tap, "stamp": stamp()}})),
		Execute: func(ctx context.Context) (*task.Outcome, error) {
			view := pluginspec.ProjectPlugin(spec, p.projectEnvVars())
			stage, err := newStageDir("alto-test-" + tap)
			if err != nil {
				return nil, err
			}
			defer os.RemoveAll(stage)
			configPath, err := stageConfigFile(ctx, p, stage, tap)
			if err != nil {
				return nil, err
			}
			exe, err := resolveExecutable(ctx, p, spec)
			if err != nil {
				return nil, err
			}
			code, err := runCheckInvocation(ctx, exe, []string{"--config", configPath}, view.Env)
			return &task.Outcome{ExitCode: code}, err
		},
	}
	return nil
}

// ---- about:<tap> ----

func (b *builder) addAbout(key, name string) error {
	spec, err := resolveEitherKind(b.p, name)
	if err != nil {
		return err
	}
	p := b.p
	b.tasks[key] = task.Task{
		Key:         key,
		Fingerprint: string(fingerprint.Task(fingerprint.TaskInputs{Scalars: map[string]string{"plugin": name}})),
		Execute: func(ctx context.Context) (*task.Outcome, error) {
			p.Log.Info("about", zapField("plugin", name), zapField("kind", string(spec.Kind)), zapField("install_url", spec.InstallURL))
			return &task.Outcome{ExitCode: 0, Log: []byte(spec.InstallURL)}, nil
		},
	}
	return nil
}

// ---- clean:<scope> ----

func (b *builder) addClean(key, scope string) error {
	p := b.p
	b.tasks[key] = task.Task{
		Key:         key,
		Fingerprint: string(fingerprint.Task(fingerprint.TaskInputs{Scalars: map[string]string{"scope": scope, "stamp": stamp()}})),
		Execute: func(ctx context.Context) (*task.Outcome, error) {
			if err := cleanScope(ctx, p, scope); err != nil {
				return &task.Outcome{ExitCode: 1}, err
			}
			return &task.Outcome{ExitCode: 0}, nil
		},
	}
	return nil
}

func cleanScope(ctx context.Context, p *Project, scope string) error {
	switch {
	case scope == "cache":
		paths, err := p.Local.List(ctx, "plugins")
		if err != nil {
			return err
		}
		for _, path := range paths {
			if err := p.Local.Remove(ctx, path); err != nil {
				return err
			}
		}
		return nil
	case strings.HasPrefix(scope, "catalog:"):
		tap := strings.TrimPrefix(scope, "catalog:")
		return p.Remote.Remove(ctx, catalogBasePath(tap))
	case strings.HasPrefix(scope, "state:"):
		rest := strings.TrimPrefix(scope, "state:")
		tap, target, ok := splitPipelineKey(rest)
		if !ok {
			return fmt.Errorf("clean state:<tap>:<target>: %q is not tap:target", rest)
		}
		return p.Remote.Remove(ctx, fmt.Sprintf("state/%s/%s-to-%s.json", p.Settings.Environment, tap, target))
	case strings.HasPrefix(scope, "reservoir:"):
		tap := strings.TrimPrefix(scope, "reservoir:")
		result, err := p.Reserv.Compact(ctx, p.Settings.Environment, tap, reservoir.DefaultCompactionThreshold)
		if err != nil {
			return err
		}
		p.Log.Info("reservoir compacted", zapField("tap", tap), zap.Int("merged", result.FilesMerged), zap.Int("removed", result.FilesRemoved))
		return nil
	default:
		return fmt.Errorf("unknown clean scope %q", scope)
	}
}
