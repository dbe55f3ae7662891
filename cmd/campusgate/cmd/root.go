package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "campusgate",
	Short: "campusgate serves the LMS web client and owns its sessions",
	Long: `campusgate keeps each browser's LMS session (user, tenant and tokens)
on the server, guards the client's routes by role and approval state, and
proxies LMS reads to the backend API with token refresh and caching.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
