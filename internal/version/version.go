// Package version parses release tags and defines the total ordering used
// to pick the newest compatible CodeQL CLI release.
package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// collator orders prerelease strings in the final tie-break.
var collator = collate.New(language.English)

// Parse parses a release tag such as "v2.3.1" or "2.3.1-rc1".
// The leading "v" is optional. Returns false for malformed tags.
func Parse(tag string) (*semver.Version, bool) {
	v, err := semver.NewVersion(strings.TrimPrefix(tag, "v"))
	if err != nil {
		return nil, false
	}
	return v, true
}

// Compare returns a negative number if a is older than b, a positive number
// if a is newer than b, and zero otherwise. Ordering is by major, minor,
// then patch, compared numerically. When all three are equal and both sides
// carry a prerelease string, the prerelease strings are collated as the
// final tie-break; if either side lacks one, the versions compare equal.
func Compare(a, b *semver.Version) int {
	if c := compareUint(a.Major(), b.Major()); c != 0 {
		return c
	}
	if c := compareUint(a.Minor(), b.Minor()); c != 0 {
		return c
	}
	if c := compareUint(a.Patch(), b.Patch()); c != 0 {
		return c
	}
	if a.Prerelease() != "" && b.Prerelease() != "" {
		return collator.CompareString(a.Prerelease(), b.Prerelease())
	}
	return 0
}

func compareUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Constraint decides whether a release version is acceptable to the host.
// Constructed once at startup and treated as immutable.
type Constraint struct {
	// Description is a human-readable rendering of the constraint, used
	// in error messages ("no release found matching <Description>").
	Description string

	// Check reports whether v satisfies the constraint.
	Check func(v *semver.Version) bool
}

// MajorMinor returns a constraint accepting versions with the given major
// version and at least the given minor version.
func MajorMinor(major, minor uint64) Constraint {
	return Constraint{
		Description: fmt.Sprintf("major version %d and minor version >= %d", major, minor),
		Check: func(v *semver.Version) bool {
			return v.Major() == major && v.Minor() >= minor
		},
	}
}
