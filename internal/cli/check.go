package cli

import (
	"fmt"
	"time"

	"github.com/codeql-community/qldist/internal/distribution"
	"github.com/spf13/cobra"
)

var checkMinInterval time.Duration

func init() {
	checkCmd.Flags().DurationVar(&checkMinInterval, "min-interval", 24*time.Hour,
		"Minimum time between registry update checks")
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether a newer compatible release is available",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp()

		result, err := a.checker.CheckForUpdates(cmd.Context(), checkMinInterval)
		if err != nil {
			return err
		}

		switch result.Outcome {
		case distribution.OutcomeAlreadyCheckedRecently:
			fmt.Println("already checked recently; skipping registry call")
		case distribution.OutcomeAlreadyUpToDate:
			fmt.Println("the installed distribution is up to date")
		case distribution.OutcomeInvalidLocation:
			fmt.Println("the active CodeQL CLI is not managed by qldist; not checking for updates")
		case distribution.OutcomeUpdateAvailable:
			fmt.Printf("update available: %s\nRun `qldist install` to install it.\n", result.Release.Name)
		}
		return nil
	},
}
