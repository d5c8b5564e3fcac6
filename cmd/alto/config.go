package main

import (
	"encoding/json"
	"fmt"
	"os"

	"alto/internal/pluginspec"
)

// manifest is the on-disk shape of the project descriptor: plugin
// declarations and environment overlays, already parsed and
// interpolated by whatever produced the file (per pluginspec.Merge's
// doc comment, that step is this module's caller's job, not ours).
type manifest struct {
	Plugins     []pluginManifest           `json:"plugins"`
	Environment map[string]map[string]any `json:"environment"`
	PIISalt     string                    `json:"pii_salt"`
}

type pluginManifest struct {
	Name         string                     `json:"name"`
	Kind         string                     `json:"kind"`
	InstallURL   string                     `json:"install_url"`
	Executable   string                     `json:"executable"`
	Entrypoint   string                     `json:"entrypoint"`
	Capabilities []string                   `json:"capabilities"`
	Config       map[string]any             `json:"config"`
	Select       []string                   `json:"select"`
	Metadata     []metadataManifest         `json:"metadata"`
	StreamMaps   []streamMapManifest        `json:"stream_maps"`
	Env          map[string]string          `json:"env"`
	LoadPath     string                     `json:"load_path"`
	Accents      map[string]map[string]any  `json:"accents"`
	InheritFrom  string                     `json:"inherit_from"`
}

type metadataManifest struct {
	Glob     string         `json:"glob"`
	Metadata map[string]any `json:"metadata"`
}

type streamMapManifest struct {
	ScriptPath string   `json:"script_path"`
	Select     []string `json:"select"`
}

// loadManifest reads and decodes the project descriptor at path into
// the plugin specs and environment overlays NewProject wants.
func loadManifest(path string) ([]pluginspec.PluginSpec, pluginspec.Environment, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pluginspec.Environment{}, "", fmt.Errorf("reading project descriptor: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, pluginspec.Environment{}, "", fmt.Errorf("parsing project descriptor: %w", err)
	}

	specs := make([]pluginspec.PluginSpec, 0, len(m.Plugins))
	for _, pm := range m.Plugins {
		specs = append(specs, pm.toSpec())
	}
	env := pluginspec.Environment{Overlays: m.Environment}
	return specs, env, m.PIISalt, nil
}

func (pm pluginManifest) toSpec() pluginspec.PluginSpec {
	caps := make(map[pluginspec.Capability]bool, len(pm.Capabilities))
	for _, c := range pm.Capabilities {
		caps[pluginspec.Capability(c)] = true
	}
	selects := make([]pluginspec.SelectionPattern, 0, len(pm.Select))
	for _, s := range pm.Select {
		selects = append(selects, pluginspec.SelectionPattern(s))
	}
	metadata := make([]pluginspec.MetadataOverlay, 0, len(pm.Metadata))
	for _, mm := range pm.Metadata {
		metadata = append(metadata, pluginspec.MetadataOverlay{Glob: mm.Glob, Metadata: mm.Metadata})
	}
	streamMaps := make([]pluginspec.StreamMap, 0, len(pm.StreamMaps))
	for _, sm := range pm.StreamMaps {
		streamMaps = append(streamMaps, pluginspec.StreamMap{ScriptPath: sm.ScriptPath, Select: sm.Select})
	}
	return pluginspec.PluginSpec{
		Name:         pm.Name,
		Kind:         pluginspec.Kind(pm.Kind),
		InstallURL:   pm.InstallURL,
		Executable:   pm.Executable,
		Entrypoint:   pm.Entrypoint,
		Capabilities: caps,
		Config:       pm.Config,
		Select:       selects,
		Metadata:     metadata,
		StreamMaps:   streamMaps,
		Env:          pm.Env,
		LoadPath:     pm.LoadPath,
		Accents:      pm.Accents,
		InheritFrom:  pm.InheritFrom,
	}
}
