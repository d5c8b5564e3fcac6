package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"alto/internal/fs"
	"alto/internal/pluginspec"
)

// ProcessDiscoverer implements catalog.Discoverer by building the tap's
// artifact (if not already cached) and invoking it with the discovery
// flag per the plugin invocation contract: `<exe> --config <path>
// --discover > <catalog>`. The catalog engine only ever sees the bytes
// written to stdout; a non-zero exit or empty output is reported to the
// caller, which wraps it as a DiscoveryFailure.
type ProcessDiscoverer struct {
	Project *Project
}

func (d *ProcessDiscoverer) Discover(ctx context.Context, tap string) ([]byte, error) {
	p := d.Project
	spec, err := p.Registry.Resolve(pluginspec.KindTap, tap)
	if err != nil {
		return nil, err
	}

	artifactPath, err := p.Cache.GetOrBuild(ctx, spec, p.Settings.InterpreterTag, p.Settings.ArchTag)
	if err != nil {
		return nil, err
	}
	exePath, err := localAbsPath(p.Local, artifactPath)
	if err != nil {
		return nil, err
	}

	stage, err := os.MkdirTemp("", "alto-discover-"+tap+"-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(stage)

	view := pluginspec.ProjectPlugin(spec, p.projectEnvVars())
	configPath, err := stageConfigFile(ctx, p, stage, tap)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, exePath, "--config", configPath, "--discover")
	cmd.Dir = stage
	cmd.Env = envSlice(view.Env)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("discover %s: %w: %s", tap, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// localAbsPath resolves a Filesystem-relative key to a real on-disk
// path, the way a built plugin artifact must be resolved before it can
// be exec'd. Only the Local driver's keys are ever used to build or run
// a plugin, so this asserts that shape rather than widening Filesystem
// with an AbsPath method every driver would have to implement.
func localAbsPath(local fs.Filesystem, key string) (string, error) {
	abs, ok := local.(interface{ AbsPath(string) string })
	if !ok {
		return "", fmt.Errorf("filesystem driver does not expose an on-disk path for %q", key)
	}
	return abs.AbsPath(key), nil
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
