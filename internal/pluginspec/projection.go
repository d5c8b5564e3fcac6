package pluginspec

// Invocation is the resolved executable invocation for a plugin: the
// path to run plus the CLI contract it implements (a tap, target, or
// utility all invoke the same underlying binary differently; the
// pipeline runner decides the exact argv).
type Invocation struct {
	ExecutablePath string
	Entrypoint     string
}

// View is the projected, materializable form of a single plugin within
// a request (a standalone plugin, or one half of a tap->target
// pipeline).
type View struct {
	Spec       PluginSpec
	Config     map[string]any
	Env        map[string]string
	LoadPath   string
}

// ProjectPlugin resolves a standalone plugin view: inherit_from chains
// already collapsed by Registry.Resolve, no accent overlay applied.
func ProjectPlugin(resolved PluginSpec, projectEnv map[string]string) View {
	return View{
		Spec:     resolved,
		Config:   resolved.Config,
		Env:      mergeEnv(projectEnv, resolved.Env),
		LoadPath: resolved.LoadPath,
	}
}

// ProjectPipeline resolves the tap and target views for a tap->target
// pipeline, applying the tap's accent overlay (if any) to the target's
// configuration. Accent: if the tap spec contains a map keyed by the
// target's name, that map is merged into the target's configuration,
// tap overrides target. The pipeline's effective load-path is the tap's
// load-path (a tap combined with a target inherits the tap's effective
// load-path).
func ProjectPipeline(tap, target PluginSpec, projectEnv map[string]string) (tapView, targetView View) {
	tapView = ProjectPlugin(tap, projectEnv)

	targetConfig := target.Config
	if accent, ok := tap.Accents[target.Name]; ok {
		targetConfig = Merge(target.Config, accent)
	}

	targetView = View{
		Spec:     target,
		Config:   targetConfig,
		Env:      mergeEnv(projectEnv, target.Env),
		LoadPath: tap.LoadPath,
	}
	return tapView, targetView
}

func mergeEnv(project, plugin map[string]string) map[string]string {
	out := make(map[string]string, len(project)+len(plugin))
	for k, v := range project {
		out[k] = v
	}
	for k, v := range plugin {
		out[k] = v
	}
	return out
}
