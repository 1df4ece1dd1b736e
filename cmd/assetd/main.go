package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/terminal-bench/assetdao/internal/auth"
	"github.com/terminal-bench/assetdao/internal/config"
	"github.com/terminal-bench/assetdao/internal/persistence"
	"github.com/terminal-bench/assetdao/pkg/address"
)

var (
	cfgPath  string
	envFile  string
	tokenTTL time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "assetd",
		Short:         "Fractional asset ownership vault with dividends and governance",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to the config file (default ./assetdao.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before the config")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway, event relay and snapshot scheduler",
		RunE:  runServe,
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the audit and snapshot tables",
		RunE:  runMigrate,
	}

	tokenCmd := &cobra.Command{
		Use:   "token <address>",
		Short: "Issue an API token for an address",
		Args:  cobra.ExactArgs(1),
		RunE:  runToken,
	}
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (default auth.token_ttl)")

	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print the latest stored snapshot sequence",
		RunE:  runSnapshotInfo,
	}

	rootCmd.AddCommand(serveCmd, migrateCmd, tokenCmd, snapshotCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the dotenv file, the config and the root logger
func setup() (*config.Config, zerolog.Logger, error) {
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger, err := cfg.Log.Logger(os.Stdout)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}

	db, err := persistence.Open(cmd.Context(), cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := persistence.NewRepository(db, cfg.Database.TablePrefix).Migrate(cmd.Context()); err != nil {
		return err
	}
	logger.Info().Str("prefix", cfg.Database.TablePrefix).Msg("schema migrated")
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}
	addr, err := address.Parse(args[0])
	if err != nil {
		return err
	}
	ttl := cfg.Auth.TokenTTL
	if tokenTTL > 0 {
		ttl = tokenTTL
	}
	svc, err := auth.NewService(cfg.Auth.Secret, ttl)
	if err != nil {
		return err
	}
	token, err := svc.Issue(addr)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func runSnapshotInfo(cmd *cobra.Command, _ []string) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	db, err := persistence.Open(cmd.Context(), cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	snap, err := persistence.NewRepository(db, cfg.Database.TablePrefix).LatestSnapshot(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "seq=%d taken_at=%s bytes=%d\n", snap.Seq, snap.TakenAt.Format(time.RFC3339), len(snap.Data))
	return nil
}
