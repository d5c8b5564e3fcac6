package artifactcache

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"alto/internal/errtax"
	"alto/internal/pluginspec"
)

// ProcessBuilder implements Builder by running a plugin's InstallURL as
// an install command in a dedicated staging directory, then harvesting
// the resulting executable named by ExecutableOrEntrypoint — the same
// "only the declared output is collected" discipline the teacher's
// output harvester uses, narrowed to a single file.
//
// InstallCmd builds the command run to materialize the plugin: given
// the spec's InstallURL, it returns the executable path and its
// arguments. StagingRoot is a directory each build gets its own fresh
// temporary subdirectory under ("build-<sanitized name>-*"), so
// concurrent builds never collide.
type ProcessBuilder struct {
	StagingRoot string
	InstallCmd  func(installURL string) (path string, args []string)
}

func (b ProcessBuilder) Build(ctx context.Context, spec pluginspec.PluginSpec) ([]byte, error) {
	stage, err := os.MkdirTemp(b.StagingRoot, "build-"+sanitize(spec.Name)+"-*")
	if err != nil {
		return nil, fmt.Errorf("creating staging dir: %w", err)
	}
	defer os.RemoveAll(stage)

	path, args := b.InstallCmd(spec.InstallURL)
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = stage
	var log bytes.Buffer
	cmd.Stdout = &log
	cmd.Stderr = &log

	if err := cmd.Run(); err != nil {
		return nil, &errtax.BuildFailure{Plugin: spec.Name, InstallerLog: log.String(), Cause: err}
	}

	exePath := filepath.Join(stage, spec.ExecutableOrEntrypoint())
	data, err := os.ReadFile(exePath)
	if err != nil {
		return nil, &errtax.BuildFailure{
			Plugin:       spec.Name,
			InstallerLog: log.String(),
			Cause:        fmt.Errorf("install succeeded but declared executable %q was not produced: %w", spec.ExecutableOrEntrypoint(), err),
		}
	}
	return data, nil
}

func sanitize(name string) string {
	out := make([]byte, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, byte(r))
		default:
			out = append(out, '-')
		}
	}
	return string(out)
}
