package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crutech/nydus/pkg/account"
	"github.com/crutech/nydus/pkg/auth"
	"github.com/crutech/nydus/pkg/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Authenticate the fleet accounts and create the pool file",
	Long: `Init runs the full authentication chain for every account in the
accounts file, prompting interactively where no cached sign-in exists, and
writes one free pool record per account that succeeded. It refuses to touch
an existing pool; release or delete it first.`,
	Args: cobra.NoArgs,
	RunE: initCmdFunc,
}

func initCmdFunc(cmd *cobra.Command, _ []string) error {
	cfg, engine, err := openPool(cmd)
	if err != nil {
		return err
	}
	if engine.Count() > 0 {
		return fmt.Errorf("pool %s already has %d records", cfg.AllocFile, engine.Count())
	}

	usernames, err := config.ReadAccounts(cfg.AccountsFile)
	if err != nil {
		return err
	}
	if len(usernames) == 0 {
		return fmt.Errorf("accounts file %s lists no accounts", cfg.AccountsFile)
	}

	provider, err := auth.NewMSALProvider(cfg.MSALClientID, cfg.MSALCacheFile)
	if err != nil {
		return err
	}
	bundles := auth.NewClient().AuthAll(cmd.Context(), provider, usernames, true)

	var fresh []*account.Bundle
	for _, username := range usernames {
		if b := bundles[username]; b != nil {
			fresh = append(fresh, b)
		}
	}
	if len(fresh) == 0 {
		return fmt.Errorf("no account could be authenticated")
	}
	if err := engine.Create(fresh); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created pool %s with %d of %d accounts\n",
		cfg.AllocFile, len(fresh), len(usernames))
	return nil
}
