package distribution

import (
	"context"
	"time"

	"github.com/codeql-community/qldist/internal/logging"
	"github.com/codeql-community/qldist/internal/ratelimit"
	"github.com/codeql-community/qldist/internal/registry"
	"github.com/codeql-community/qldist/internal/state"
	"github.com/codeql-community/qldist/internal/version"
)

// CheckOutcome tags the variants of an update-check result.
type CheckOutcome int

const (
	// OutcomeAlreadyCheckedRecently means the rate limiter suppressed the
	// check; no registry call was made.
	OutcomeAlreadyCheckedRecently CheckOutcome = iota
	// OutcomeAlreadyUpToDate means the managed install matches the newest
	// compatible release.
	OutcomeAlreadyUpToDate
	// OutcomeInvalidLocation means the active binary is not managed by
	// this system, so prompting for a managed update would be wrong.
	OutcomeInvalidLocation
	// OutcomeUpdateAvailable means a newer compatible release exists.
	OutcomeUpdateAvailable
)

// CheckResult is the outcome of one update check. Release is set for
// OutcomeUpdateAvailable.
type CheckResult struct {
	Outcome CheckOutcome
	Release *registry.Release
}

// ReleaseFinder returns the newest compatible release.
// *registry.Client implements it.
type ReleaseFinder interface {
	LatestRelease(ctx context.Context, constraint version.Constraint, includePrerelease bool) (*registry.Release, error)
}

// updateCheckOperation names the update check in the rate-limit gate.
const updateCheckOperation = "distribution-update-check"

// UpdateChecker answers "is a newer compatible release available" without
// hitting the registry more often than a configured interval.
type UpdateChecker struct {
	resolver   *Resolver
	finder     ReleaseFinder
	store      state.Store
	gate       *ratelimit.Gate
	settings   Settings
	constraint version.Constraint
	log        logging.Logger
}

// NewUpdateChecker wires an UpdateChecker from its collaborators.
func NewUpdateChecker(resolver *Resolver, finder ReleaseFinder, store state.Store, gate *ratelimit.Gate, settings Settings, constraint version.Constraint, log logging.Logger) *UpdateChecker {
	if log == nil {
		log = logging.Discard()
	}
	return &UpdateChecker{
		resolver:   resolver,
		finder:     finder,
		store:      store,
		gate:       gate,
		settings:   settings,
		constraint: constraint,
		log:        log,
	}
}

// CheckForUpdates reports whether a newer compatible release is available.
// An externally supplied binary (custom path or search path) yields
// OutcomeInvalidLocation immediately, bypassing the rate limiter. Registry
// errors propagate unmodified.
func (u *UpdateChecker) CheckForUpdates(ctx context.Context, minInterval time.Duration) (CheckResult, error) {
	dist := u.resolver.Find()
	if dist.Path != "" && dist.Source != SourceManaged {
		u.log.Debug("active binary is not managed, skipping update check", "path", dist.Path, "source", dist.Source.String())
		return CheckResult{Outcome: OutcomeInvalidLocation}, nil
	}

	result := CheckResult{Outcome: OutcomeAlreadyCheckedRecently}
	ran, err := u.gate.Do(updateCheckOperation, minInterval, func() error {
		latest, err := u.finder.LatestRelease(ctx, u.constraint, u.settings.IncludePrerelease())
		if err != nil {
			return err
		}

		installed, err := u.store.InstalledRelease()
		if err != nil {
			return err
		}

		if installed != nil && installed.ID == latest.ID && dist.Path != "" {
			result = CheckResult{Outcome: OutcomeAlreadyUpToDate}
			return nil
		}
		result = CheckResult{Outcome: OutcomeUpdateAvailable, Release: latest}
		return nil
	})
	if err != nil {
		return CheckResult{}, err
	}
	if !ran {
		return CheckResult{Outcome: OutcomeAlreadyCheckedRecently}, nil
	}
	return result, nil
}
