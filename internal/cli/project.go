package cli

import (
	"os"
	"time"

	"go.uber.org/zap"

	"alto/internal/artifactcache"
	"alto/internal/catalog"
	"alto/internal/fs"
	"alto/internal/pluginspec"
	"alto/internal/reservoir"
	"alto/internal/statestore"
	"alto/internal/task"
)

// Settings is the handful of project-level values that come from outside
// the plugin/pipeline declarations themselves: the active overlay name,
// the per-project PII salt, and the tags that make a plugin fingerprint
// portable across machines.
type Settings struct {
	ProjectRoot    string
	Environment    string
	PIISalt        string
	GracePeriod    time.Duration
	InterpreterTag string
	ArchTag        string
	Verbose        bool
}

// Project wires every subsystem package together the way cmd/alto's
// entrypoint would otherwise have to inline: one struct a verb handler
// pulls from instead of threading eight constructors through main.
type Project struct {
	Settings Settings
	Registry *pluginspec.Registry
	Env      pluginspec.Environment
	Local    fs.Filesystem
	Remote   fs.Filesystem
	Cache    *artifactcache.Cache
	Catalogs *catalog.Engine
	States   *statestore.Store
	Reserv   *reservoir.Store
	Ledger   *task.Ledger
	Log      *zap.Logger

	discoverer *ProcessDiscoverer
}

// NewProject assembles a Project. remote is the content-addressed store
// plugins/catalogs/state are promoted to; local defaults to the
// user-home-rooted cache directory (fs.NewLocal("")) when settings don't
// override it.
func NewProject(settings Settings, specs []pluginspec.PluginSpec, env pluginspec.Environment, remote fs.Filesystem, log *zap.Logger) (*Project, error) {
	if log == nil {
		log = zap.NewNop()
	}
	registry, err := pluginspec.NewRegistry(specs)
	if err != nil {
		return nil, err
	}

	local, err := fs.NewLocal(localRoot(settings.ProjectRoot))
	if err != nil {
		return nil, err
	}
	retryingRemote := fs.NewRetrying(remote, 0)

	p := &Project{
		Settings: settings,
		Registry: registry,
		Env:      env,
		Local:    local,
		Remote:   retryingRemote,
		States:   statestore.New(retryingRemote, "state"),
		Reserv:   reservoir.NewStore(retryingRemote, "reservoir"),
		Ledger:   task.NewLedger(local, "tasks.json"),
		Log:      log,
	}

	stagingRoot, err := os.MkdirTemp("", "alto-build-*")
	if err != nil {
		return nil, err
	}
	builder := artifactcache.Builder(artifactcache.ProcessBuilder{
		StagingRoot: stagingRoot,
		InstallCmd:  defaultInstallCmd,
	})
	p.Cache = artifactcache.New(local, retryingRemote, builder, log)

	p.discoverer = &ProcessDiscoverer{Project: p}
	p.Catalogs = catalog.New(retryingRemote, p.discoverer)
	return p, nil
}

func localRoot(projectRoot string) string {
	if projectRoot == "" {
		return ""
	}
	return projectRoot + "/.alto"
}

// effectiveEnv returns the merged environment-level config/env for the
// active overlay, used as the base every plugin view is layered on.
func (p *Project) effectiveEnv() map[string]any {
	return p.Env.Effective(p.Settings.Environment)
}

func (p *Project) projectEnvVars() map[string]string {
	vars := map[string]string{}
	for k, v := range p.effectiveEnv() {
		if s, ok := v.(string); ok {
			vars[k] = s
		}
	}
	return vars
}
