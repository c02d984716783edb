package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crutech/nydus/pkg/account"
	"github.com/crutech/nydus/pkg/auth"
	"github.com/crutech/nydus/pkg/config"
	"github.com/crutech/nydus/pkg/logger"
	"github.com/crutech/nydus/pkg/pool"
	"github.com/crutech/nydus/pkg/server"
	"github.com/crutech/nydus/pkg/sessions"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Authenticate the fleet accounts and serve the pool",
	Long: `Serve authenticates every account in the accounts file, interactively
where needed, then listens for workstation requests and runs the periodic
maintenance pass. The first run creates the pool file; later runs refresh
the tokens of the existing records and keep standing tenancies.`,
	Args: cobra.NoArgs,
	RunE: serveCmdFunc,
}

func serveCmdFunc(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	engine, err := pool.NewEngine(cfg.AllocFile)
	if err != nil {
		return err
	}

	provider, err := auth.NewMSALProvider(cfg.MSALClientID, cfg.MSALCacheFile)
	if err != nil {
		return err
	}
	client := auth.NewClient()

	if err := populatePool(ctx, cfg, engine, client, provider); err != nil {
		return err
	}

	maint := server.NewMaintainer(engine, client, provider, sessions.NewWhoProber())
	srv := server.New(cfg.ListenAddr(), cfg.CertFile, cfg.CertPrivKey, cfg.McVersion, engine)
	return srv.Run(ctx, maint)
}

// populatePool authenticates every configured account and either creates the
// pool or refreshes the surviving records. Accounts that fail to
// authenticate are logged and left out; the daemon still serves the rest.
func populatePool(ctx context.Context, cfg *config.Config, engine *pool.Engine, client *auth.Client, provider auth.IdentityProvider) error {
	usernames, err := config.ReadAccounts(cfg.AccountsFile)
	if err != nil {
		return err
	}
	if len(usernames) == 0 {
		return fmt.Errorf("accounts file %s lists no accounts", cfg.AccountsFile)
	}

	bundles := client.AuthAll(ctx, provider, usernames, true)

	if engine.Count() > 0 {
		refreshed, err := engine.RefreshBundles(bundles)
		if err != nil {
			return err
		}
		logger.Infof("Refreshed %d of %d pool records", refreshed, engine.Count())
		return nil
	}

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
	logger.Infof("Created pool %s with %d of %d accounts", cfg.AllocFile, len(fresh), len(usernames))
	return nil
}
