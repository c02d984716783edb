// Package app provides the commands for the nydusd daemon.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/crutech/nydus/pkg/config"
	"github.com/crutech/nydus/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "nydusd",
	DisableAutoGenTag: true,
	Short:             "Nydus fleet-auth daemon",
	Long: `Nydusd holds a pool of authenticated game accounts and hands them out,
one at a time, to workstations on the trusted LAN. Accounts are taken back
when a workstation releases them, when a tenancy outlives its timeout, or
when the holder is no longer logged in.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		// Re-initialize now that the debug flag has been parsed.
		logger.Initialize()
	},
}

// NewRootCmd creates the root command for the nydusd daemon.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("config", config.DefaultPath, "Path to the config file")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.AddCommand(serveCmd)

	return rootCmd
}
