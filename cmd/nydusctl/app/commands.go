// Package app provides the commands for the nydusctl administrative CLI.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/crutech/nydus/pkg/config"
	"github.com/crutech/nydus/pkg/logger"
	"github.com/crutech/nydus/pkg/pool"
)

var rootCmd = &cobra.Command{
	Use:               "nydusctl",
	DisableAutoGenTag: true,
	Short:             "Inspect and adjust the Nydus account pool",
	Long: `Nydusctl operates on the pool file directly, under the same file lock
the daemon takes, so it is safe to use while nydusd is running. Tenancy
changes made here are picked up by the daemon on its next operation.`,
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

// NewRootCmd creates the root command for the nydusctl CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("config", config.DefaultPath, "Path to the config file")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(allocateCmd)
	rootCmd.AddCommand(newReleaseCmd())
	rootCmd.AddCommand(initCmd)

	return rootCmd
}

// openPool loads the config named by the command's flags and opens the pool
// engine over its alloc file.
func openPool(cmd *cobra.Command) (*config.Config, *pool.Engine, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	engine, err := pool.NewEngine(cfg.AllocFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, engine, nil
}
