package cli

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/codeql-community/qldist/internal/version"
)

// probeTimeout bounds how long a binary gets to report its version.
const probeTimeout = 10 * time.Second

// cliVersionProbe asks a CodeQL CLI binary for its version.
func cliVersionProbe(ctx context.Context, binaryPath string) (*semver.Version, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, binaryPath, "version", "--format=terse").Output()
	if err != nil {
		return nil, fmt.Errorf("running version probe: %w", err)
	}

	raw := strings.TrimSpace(string(out))
	v, ok := version.Parse(raw)
	if !ok {
		return nil, fmt.Errorf("unexpected version output %q", raw)
	}
	return v, nil
}
