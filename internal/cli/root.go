// Package cli wires the distribution components into the qldist command.
package cli

import (
	"os"
	"path/filepath"

	"github.com/codeql-community/qldist/internal/config"
	"github.com/codeql-community/qldist/internal/distribution"
	"github.com/codeql-community/qldist/internal/logging"
	"github.com/codeql-community/qldist/internal/ratelimit"
	"github.com/codeql-community/qldist/internal/registry"
	"github.com/codeql-community/qldist/internal/state"
	"github.com/codeql-community/qldist/internal/version"
	"github.com/spf13/cobra"
)

var (
	buildVersion string
	buildCommit  string
	buildDate    string
)

// requiredMajor pins the CLI generation this tool manages.
const requiredMajor = 2

var rootCmd = &cobra.Command{
	Use:   "qldist",
	Short: "Manage a local CodeQL CLI distribution",
	Long: `qldist locates a usable CodeQL CLI binary, keeps a managed copy up to
date from the release registry, and installs new releases atomically.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with build info injected via ldflags.
func Execute(version, commit, date string) error {
	buildVersion = version
	buildCommit = commit
	buildDate = date
	return rootCmd.Execute()
}

// app holds the wired components every command works with.
type app struct {
	settings  *config.Settings
	store     *state.FileStore
	client    *registry.Client
	resolver  *distribution.Resolver
	installer *distribution.Installer
	checker   *distribution.UpdateChecker
	log       logging.Logger
}

func newApp() *app {
	dir := config.Dir()
	settings := config.Load(dir)
	store := state.NewFileStore(dir)
	log := logging.NewWriterLogger(os.Stderr)

	var opts []registry.Option
	opts = append(opts, registry.WithLogger(log))
	if token := settings.Token(); token != "" {
		opts = append(opts, registry.WithToken(token))
	}
	client := registry.New(settings.Owner(), settings.Repo(), opts...)

	constraint := version.MajorMinor(requiredMajor, 0)
	storageRoot := filepath.Join(dir, "storage")

	resolver := distribution.NewResolver(settings, store, storageRoot, constraint, cliVersionProbe, log)
	installer := distribution.NewInstaller(storageRoot, store, client, log)
	gate := ratelimit.NewGate(dir)
	checker := distribution.NewUpdateChecker(resolver, client, store, gate, settings, constraint, log)

	return &app{
		settings:  settings,
		store:     store,
		client:    client,
		resolver:  resolver,
		installer: installer,
		checker:   checker,
		log:       log,
	}
}

func (a *app) constraint() version.Constraint {
	return version.MajorMinor(requiredMajor, 0)
}
