package app

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "darkauthd",
	Short: "DarkAuth identity provider",
	Long: `darkauthd runs the aPAKE-backed OIDC identity provider: the server
never observes a cleartext password, only an OPRF-blinded value and an
AKE-derived session key.`,
}

// Execute runs the root command, dispatching to install or serve.
func Execute() error {
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(serveCmd)
	return rootCmd.Execute()
}
