package distribution

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/codeql-community/qldist/internal/logging"
	"github.com/codeql-community/qldist/internal/state"
	"github.com/codeql-community/qldist/internal/version"
)

// Source identifies where a resolved binary came from. Sources are tried
// in declaration order.
type Source int

const (
	// SourceNone means no usable binary was found.
	SourceNone Source = iota
	// SourceCustomPath is a path set explicitly in configuration.
	SourceCustomPath
	// SourceManaged is an installation this system downloaded itself.
	SourceManaged
	// SourceSearchPath is a binary found on the process search path.
	SourceSearchPath
)

func (s Source) String() string {
	switch s {
	case SourceCustomPath:
		return "configured path"
	case SourceManaged:
		return "managed installation"
	case SourceSearchPath:
		return "search path"
	default:
		return "none"
	}
}

// Distribution is a resolved binary. A zero Path means none was found.
type Distribution struct {
	Path   string
	Source Source
}

// StatusKind tags the variants of a compatibility Status.
type StatusKind int

const (
	// StatusNoDistribution means no binary could be resolved.
	StatusNoDistribution StatusKind = iota
	// StatusUnknownCompatibility means a binary was found but its version
	// could not be determined.
	StatusUnknownCompatibility
	// StatusIncompatible means the binary's version fails the constraint.
	StatusIncompatible
	// StatusCompatible means the binary satisfies the constraint.
	StatusCompatible
)

// Status is the outcome of resolving a binary and probing its version.
// Version is set for StatusIncompatible and StatusCompatible.
type Status struct {
	Kind         StatusKind
	Version      *semver.Version
	Distribution Distribution
}

// VersionProbe asks a binary for its version. Returning an error means the
// version could not be determined; the resolver treats that as unknown
// compatibility rather than failing.
type VersionProbe func(ctx context.Context, binaryPath string) (*semver.Version, error)

// Settings is the slice of host configuration the resolver and update
// checker consume.
type Settings interface {
	// CustomPath is a user-chosen binary path overriding all other
	// sources; empty when unset.
	CustomPath() string

	// IncludePrerelease reports whether prerelease releases are eligible.
	IncludePrerelease() bool
}

// Resolver decides which CodeQL CLI binary to use, trying the configured
// custom path, then the managed installation, then the search path.
type Resolver struct {
	settings    Settings
	store       state.Store
	storageRoot string
	constraint  version.Constraint
	probe       VersionProbe
	log         logging.Logger

	getenv     func(string) string
	candidates []launcherCandidate

	warnDeprecated sync.Once
}

// NewResolver returns a Resolver over the given storage root.
func NewResolver(settings Settings, store state.Store, storageRoot string, constraint version.Constraint, probe VersionProbe, log logging.Logger) *Resolver {
	if log == nil {
		log = logging.Discard()
	}
	return &Resolver{
		settings:    settings,
		store:       store,
		storageRoot: storageRoot,
		constraint:  constraint,
		probe:       probe,
		log:         log,
		getenv:      os.Getenv,
		candidates:  launcherCandidates(),
	}
}

// Find resolves a binary path by source priority. A missing custom path is
// reported to the user and resolves to none; it does not fall through to
// other sources.
func (r *Resolver) Find() Distribution {
	if custom := r.settings.CustomPath(); custom != "" {
		if _, err := os.Stat(custom); err != nil {
			r.log.Error("the configured CodeQL CLI path does not exist", "path", custom)
			return Distribution{Source: SourceNone}
		}
		r.warnIfDeprecatedCustomPath(custom)
		return Distribution{Path: custom, Source: SourceCustomPath}
	}

	if path, ok := r.findManaged(); ok {
		return Distribution{Path: path, Source: SourceManaged}
	}

	if path, ok := r.findOnSearchPath(); ok {
		return Distribution{Path: path, Source: SourceSearchPath}
	}

	return Distribution{Source: SourceNone}
}

// Status resolves a binary and probes its version against the constraint.
func (r *Resolver) Status(ctx context.Context) Status {
	dist := r.Find()
	if dist.Path == "" {
		return Status{Kind: StatusNoDistribution}
	}
	if r.probe == nil {
		return Status{Kind: StatusUnknownCompatibility, Distribution: dist}
	}
	v, err := r.probe(ctx, dist.Path)
	if err != nil || v == nil {
		if err != nil {
			r.log.Debug("version probe failed", "path", dist.Path, "error", err)
		}
		return Status{Kind: StatusUnknownCompatibility, Distribution: dist}
	}
	if !r.constraint.Check(v) {
		return Status{Kind: StatusIncompatible, Version: v, Distribution: dist}
	}
	return Status{Kind: StatusCompatible, Version: v, Distribution: dist}
}

// findManaged returns the launcher inside the current managed install. A
// recorded install whose launcher is gone is treated as corrupted: it is
// removed best-effort and resolution falls through to the next source.
func (r *Resolver) findManaged() (string, bool) {
	release, err := r.store.InstalledRelease()
	if err != nil {
		r.log.Warn("could not read installed-release record", "error", err)
		return "", false
	}
	if release == nil {
		return "", false
	}

	index, err := r.store.FolderIndex()
	if err != nil {
		r.log.Warn("could not read folder index", "error", err)
		return "", false
	}

	installDir := filepath.Join(r.storageRoot, distDirName(index))
	launcherDir := filepath.Join(installDir, extractedDirName)
	for _, cand := range r.candidates {
		path := filepath.Join(launcherDir, cand.name)
		if fileExists(path) {
			if cand.deprecated {
				r.deprecationWarning(cand.name)
			}
			return path, true
		}
	}

	r.log.Warn("managed distribution is missing its launcher, removing it", "dir", installDir)
	if err := r.store.SetInstalledRelease(nil); err != nil {
		r.log.Warn("could not clear installed-release record", "error", err)
	}
	if err := os.RemoveAll(installDir); err != nil {
		r.log.Warn("could not remove corrupted distribution", "dir", installDir, "error", err)
	}
	return "", false
}

func (r *Resolver) findOnSearchPath() (string, bool) {
	for _, dir := range filepath.SplitList(r.getenv("PATH")) {
		if dir == "" {
			continue
		}
		for _, cand := range r.candidates {
			path := filepath.Join(dir, cand.name)
			if fileExists(path) {
				if cand.deprecated {
					r.deprecationWarning(cand.name)
				}
				return path, true
			}
		}
	}
	return "", false
}

// warnIfDeprecatedCustomPath warns when the configured path names a
// deprecated launcher while the preferred launcher sits alongside it.
// Informational only; the configured path is still used.
func (r *Resolver) warnIfDeprecatedCustomPath(custom string) {
	base := filepath.Base(custom)
	for _, cand := range r.candidates {
		if !cand.deprecated || base != cand.name {
			continue
		}
		for _, alt := range r.candidates {
			if alt.deprecated {
				continue
			}
			if fileExists(filepath.Join(filepath.Dir(custom), alt.name)) {
				r.deprecationWarning(cand.name)
				return
			}
		}
	}
}

func (r *Resolver) deprecationWarning(name string) {
	r.warnDeprecated.Do(func() {
		r.log.Warn("the launcher name is deprecated and may stop working in a future release", "launcher", name)
	})
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
