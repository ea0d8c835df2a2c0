package cli

import (
	"fmt"
	"time"

	"github.com/codeql-community/qldist/internal/distribution"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(resolveCmd)
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Locate the CodeQL CLI binary and report its compatibility",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp()

		status := a.resolver.Status(cmd.Context())
		switch status.Kind {
		case distribution.StatusNoDistribution:
			return fmt.Errorf("no CodeQL CLI found; run `qldist install` or set %s", "distribution.path")
		case distribution.StatusUnknownCompatibility:
			fmt.Printf("%s (%s, version unknown)\n", status.Distribution.Path, status.Distribution.Source)
		case distribution.StatusIncompatible:
			fmt.Printf("%s (%s, version %s, incompatible: requires %s)\n",
				status.Distribution.Path, status.Distribution.Source, status.Version, a.constraint().Description)
		case distribution.StatusCompatible:
			fmt.Printf("%s (%s, version %s)\n", status.Distribution.Path, status.Distribution.Source, status.Version)
		}

		if status.Distribution.Source == distribution.SourceManaged {
			if installedAt, ok := a.store.InstalledAt(); ok {
				fmt.Printf("installed %s\n", installedAt.Local().Format(time.RFC1123))
			}
		}
		return nil
	},
}
