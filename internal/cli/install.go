package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(installCmd)
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Download and install the newest compatible release",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp()

		release, err := a.client.LatestRelease(cmd.Context(), a.constraint(), a.settings.IncludePrerelease())
		if err != nil {
			return err
		}
		fmt.Printf("installing CodeQL CLI %s\n", release.Name)

		progress := func(received, total int64, message string) {
			fmt.Fprintf(os.Stderr, "\rDownloading... %s", message)
			if received == total {
				fmt.Fprintln(os.Stderr)
			}
		}
		if err := a.installer.Install(cmd.Context(), release, progress); err != nil {
			return err
		}

		dist := a.resolver.Find()
		fmt.Printf("installed %s at %s\n", release.Name, dist.Path)
		return nil
	},
}
