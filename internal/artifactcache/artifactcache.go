// Package artifactcache implements the plugin artifact cache:
// content-addressed build-once-cache-forever of a self-contained plugin
// executable, with transparent promotion to and retrieval from a
// remote store.
package artifactcache

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"alto/internal/errtax"
	"alto/internal/fingerprint"
	"alto/internal/fs"
	"alto/internal/pluginspec"
)

// Builder invokes the packager that produces a single-file executable
// for a plugin spec. A failure must be surfaced as *errtax.BuildFailure
// with the installer's captured log.
type Builder interface {
	Build(ctx context.Context, spec pluginspec.PluginSpec) ([]byte, error)
}

// Cache implements get_or_build. Local is the project-local filesystem
// rooted so that "plugins/<fp>" resolves to
// "<project_root>/.alto/plugins/<fp>"; Remote is the content-addressed
// remote artifact store, keyed the same way. Locks coalesces concurrent
// builds for the same fingerprint within this process tree.
type Cache struct {
	Local  fs.Filesystem
	Remote fs.Filesystem
	Build  Builder
	Locks  *FingerprintLocks
	Log    *zap.Logger
}

func New(local, remote fs.Filesystem, builder Builder, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{Local: local, Remote: remote, Build: builder, Locks: NewFingerprintLocks(), Log: log}
}

func artifactPath(fp fingerprint.Fingerprint) string {
	return fmt.Sprintf("plugins/%s", fp)
}

// GetOrBuild returns the local path of the built artifact for spec,
// building it at most once per fingerprint per process tree. Concurrent
// callers for the same fingerprint coalesce onto a single build; losers
// wait and then re-check local presence.
func (c *Cache) GetOrBuild(ctx context.Context, spec pluginspec.PluginSpec, interpreterTag, archTag string) (string, error) {
	fp := fingerprint.Plugin(fingerprint.PluginInputs{
		InstallURL:        spec.InstallURL,
		ExecutableOrEntry: spec.ExecutableOrEntrypoint(),
		InterpreterTag:    interpreterTag,
		ArchTag:           archTag,
	})
	path := artifactPath(fp)

	if exists, err := c.Local.Exists(ctx, path); err != nil {
		return "", err
	} else if exists {
		return path, nil
	}

	unlock := c.Locks.Acquire(string(fp))
	defer unlock()

	// Re-check now that we hold the fingerprint's lock: a sibling build
	// may have completed while we were waiting.
	if exists, err := c.Local.Exists(ctx, path); err != nil {
		return "", err
	} else if exists {
		return path, nil
	}

	if exists, err := c.Remote.Exists(ctx, path); err != nil {
		return "", err
	} else if exists {
		data, err := c.Remote.Get(ctx, path)
		if err != nil {
			return "", err
		}
		if err := c.Local.Put(ctx, path, data); err != nil {
			return "", err
		}
		c.Log.Debug("artifact retrieved from remote", zap.String("plugin", spec.Name), zap.String("fingerprint", string(fp)))
		return path, nil
	}

	c.Log.Info("building plugin artifact", zap.String("plugin", spec.Name), zap.String("fingerprint", string(fp)))
	data, err := c.Build.Build(ctx, spec)
	if err != nil {
		var bf *errtax.BuildFailure
		if !asBuildFailure(err, &bf) {
			err = &errtax.BuildFailure{Plugin: spec.Name, Fingerprint: string(fp), Cause: err}
		}
		return "", err
	}

	if err := c.Remote.Put(ctx, path, data); err != nil {
		return "", err
	}
	if err := c.Local.Put(ctx, path, data); err != nil {
		return "", err
	}
	return path, nil
}

func asBuildFailure(err error, target **errtax.BuildFailure) bool {
	bf, ok := err.(*errtax.BuildFailure)
	if ok {
		*target = bf
	}
	return ok
}
