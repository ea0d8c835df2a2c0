package distribution

import (
	"fmt"
	"runtime"
)

const (
	// distDirBaseName is the rotating install directory prefix. Index 0 is
	// unlabeled for backward compatibility with older installs.
	distDirBaseName = "distribution"

	// extractedDirName is the folder the release archive unpacks to inside
	// each install directory.
	extractedDirName = "codeql"
)

// launcherCandidate is one acceptable launcher filename. Deprecated names
// still resolve but emit a warning.
type launcherCandidate struct {
	name       string
	deprecated bool
}

// launcherCandidates returns the launcher filenames for the current
// platform, preferred name first.
func launcherCandidates() []launcherCandidate {
	if runtime.GOOS == "windows" {
		return []launcherCandidate{
			{name: "codeql.exe"},
			{name: "codeql.cmd", deprecated: true},
		}
	}
	return []launcherCandidate{{name: "codeql"}}
}

// distDirName returns the install directory name for a folder index.
func distDirName(index int) string {
	if index == 0 {
		return distDirBaseName
	}
	return fmt.Sprintf("%s%d", distDirBaseName, index)
}
