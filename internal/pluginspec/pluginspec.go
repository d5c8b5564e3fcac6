// Package pluginspec holds the plugin declaration model and the config
// projection logic: deep-merging environment overlays into an effective
// configuration tree, resolving inherit_from chains, and materializing
// the per-plugin and per-pipeline views the task engine's build, config,
// catalog, and pipeline tasks consume.
package pluginspec

import (
	"fmt"
	"sort"

	"alto/internal/errtax"
)

// Kind discriminates the three plugin roles. PluginSpec is intentionally
// a single tagged struct rather than a class hierarchy per kind; callers
// dispatch on Kind and Capabilities rather than on a Go type.
type Kind string

const (
	KindTap    Kind = "tap"
	KindTarget Kind = "target"
	KindUtility Kind = "utility"
)

// Capability names a plugin-supported operation.
type Capability string

const (
	CapState      Capability = "state"
	CapCatalog    Capability = "catalog"
	CapProperties Capability = "properties"
	CapAbout      Capability = "about"
	CapTest       Capability = "test"
)

// SelectionPattern is one entry of a PluginSpec's select list: a glob
// expression optionally negated with a leading '!' or marked for PII
// hashing with a leading '~'.
type SelectionPattern string

// MetadataOverlay merges a map into every catalog stream whose name
// matches Glob.
type MetadataOverlay struct {
	Glob     string
	Metadata map[string]any
}

// StreamMap declares an external filter script applied to the streams
// matching Select before records reach the target.
type StreamMap struct {
	ScriptPath string
	Select     []string
}

// PluginSpec is a plugin declaration, as it arrives already assembled
// (not parsed — parsing the host configuration file is out of this
// module's scope) from the external configuration loader.
type PluginSpec struct {
	Name         string
	Kind         Kind
	InstallURL   string
	Executable   string
	Entrypoint   string
	Capabilities map[Capability]bool
	Config       map[string]any
	Select       []SelectionPattern
	Metadata     []MetadataOverlay
	StreamMaps   []StreamMap
	Env          map[string]string
	LoadPath     string
	Accents      map[string]map[string]any // target name -> overlay map
	InheritFrom  string
}

// Supports reports whether the spec declares a capability.
func (s PluginSpec) Supports(c Capability) bool {
	return s.Capabilities != nil && s.Capabilities[c]
}

// ExecutableOrEntrypoint returns the entrypoint if set, else the
// configured executable name, else the plugin name — the same fallback
// chain the fingerprinter and the artifact cache use to name the
// artifact to build.
func (s PluginSpec) ExecutableOrEntrypoint() string {
	if s.Entrypoint != "" {
		return s.Entrypoint
	}
	if s.Executable != "" {
		return s.Executable
	}
	return s.Name
}

// Registry holds every PluginSpec for a project, keyed by (kind, name).
// NewRegistry rejects duplicate names within a kind; Resolve rejects
// inherit_from cycles.
type Registry struct {
	specs map[Kind]map[string]PluginSpec
}

// NewRegistry builds a Registry from a flat list of specs, rejecting
// duplicate names within a kind.
func NewRegistry(specs []PluginSpec) (*Registry, error) {
	r := &Registry{specs: make(map[Kind]map[string]PluginSpec)}
	for _, s := range specs {
		if r.specs[s.Kind] == nil {
			r.specs[s.Kind] = make(map[string]PluginSpec)
		}
		if _, dup := r.specs[s.Kind][s.Name]; dup {
			return nil, &errtax.ConfigError{
				Path:    fmt.Sprintf("%s.%s", s.Kind, s.Name),
				Message: "duplicate plugin name within kind",
			}
		}
		r.specs[s.Kind][s.Name] = s
	}
	return r, nil
}

// Names returns every plugin name declared under kind, sorted.
func (r *Registry) Names(kind Kind) []string {
	byName := r.specs[kind]
	out := make([]string, 0, len(byName))
	for name := range byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Get looks up a spec by kind and name.
func (r *Registry) Get(kind Kind, name string) (PluginSpec, error) {
	byName, ok := r.specs[kind]
	if !ok {
		return PluginSpec{}, &errtax.ConfigError{Path: string(kind), Message: "no plugins of this kind"}
	}
	spec, ok := byName[name]
	if !ok {
		return PluginSpec{}, &errtax.ConfigError{Path: fmt.Sprintf("%s.%s", kind, name), Message: "plugin not declared"}
	}
	return spec, nil
}

// Resolve walks a spec's inherit_from chain (ancestors first) and
// returns the fully merged effective spec. inherit_from is resolved
// before any overlay is applied, per the Config Projection invariant.
func (r *Registry) Resolve(kind Kind, name string) (PluginSpec, error) {
	chain, err := r.inheritanceChain(kind, name, nil)
	if err != nil {
		return PluginSpec{}, err
	}
	effective := chain[0]
	for _, ancestor := range chain[1:] {
		effective = mergeSpec(ancestor, effective)
	}
	return effective, nil
}

// inheritanceChain returns [name, parent, grandparent, ...] with a
// cycle check against the visited set.
func (r *Registry) inheritanceChain(kind Kind, name string, visited map[string]bool) ([]PluginSpec, error) {
	if visited == nil {
		visited = make(map[string]bool)
	}
	if visited[name] {
		return nil, &errtax.ConfigError{
			Path:    fmt.Sprintf("%s.%s.inherit_from", kind, name),
			Message: "inherit_from forms a cycle",
		}
	}
	visited[name] = true

	spec, err := r.Get(kind, name)
	if err != nil {
		return nil, err
	}
	chain := []PluginSpec{spec}
	if spec.InheritFrom == "" {
		return chain, nil
	}
	rest, err := r.inheritanceChain(kind, spec.InheritFrom, visited)
	if err != nil {
		return nil, err
	}
	return append(chain, rest...), nil
}

// mergeSpec merges an ancestor spec's fields under a descendant's,
// descendant values winning on conflict. Config is deep-merged via
// Merge; scalar fields are simple override-if-set.
func mergeSpec(ancestor, descendant PluginSpec) PluginSpec {
	out := descendant
	if out.InstallURL == "" {
		out.InstallURL = ancestor.InstallURL
	}
	if out.Executable == "" {
		out.Executable = ancestor.Executable
	}
	if out.Entrypoint == "" {
		out.Entrypoint = ancestor.Entrypoint
	}
	if out.LoadPath == "" {
		out.LoadPath = ancestor.LoadPath
	}
	out.Config = Merge(ancestor.Config, descendant.Config)

	merged := make(map[Capability]bool, len(ancestor.Capabilities)+len(descendant.Capabilities))
	for k, v := range ancestor.Capabilities {
		merged[k] = v
	}
	for k, v := range descendant.Capabilities {
		merged[k] = v
	}
	out.Capabilities = merged

	out.Select = append(append([]SelectionPattern{}, ancestor.Select...), descendant.Select...)
	out.Metadata = append(append([]MetadataOverlay{}, ancestor.Metadata...), descendant.Metadata...)
	out.StreamMaps = append(append([]StreamMap{}, ancestor.StreamMaps...), descendant.StreamMaps...)

	env := make(map[string]string, len(ancestor.Env)+len(descendant.Env))
	for k, v := range ancestor.Env {
		env[k] = v
	}
	for k, v := range descendant.Env {
		env[k] = v
	}
	out.Env = env

	return out
}
