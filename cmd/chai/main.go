package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chai-assistant/internal/bootstrap"
	"chai-assistant/internal/config"
)

var (
	configPath    string
	skipBootstrap bool
)

var rootCmd = &cobra.Command{
	Use:   "chai",
	Short: "Retrieval augmented chat assistant for the ChRIS documentation",
	Long: `chai indexes a documentation corpus into an agent runtime and answers
questions grounded in the retrieved context, keeping a per thread history.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $CONFIG_FILE or configs/config.toml)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

// openApp builds the application for one command; callers must Close it.
func openApp(cmd *cobra.Command, opts bootstrap.Options) (*bootstrap.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	if opts.LogWriter == nil {
		opts.LogWriter = cmd.ErrOrStderr()
	}
	app, err := bootstrap.New(cmd.Context(), cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("bootstrap failed: %w", err)
	}
	return app, nil
}

func addSkipBootstrapFlag(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&skipBootstrap, "skip-bootstrap", false, "do not check or populate the index at startup")
}

// ensureIndex registers and populates the index unless --skip-bootstrap is set.
func ensureIndex(cmd *cobra.Command, app *bootstrap.App) error {
	if skipBootstrap {
		return nil
	}
	report, err := app.Ingestor.Bootstrap(cmd.Context())
	if err != nil {
		return fmt.Errorf("bootstrap index failed: %w", err)
	}
	app.Logger.Info("index ready", "candidates", report.Candidates, "inserted", len(report.Inserted))
	return nil
}

func closeApp(app *bootstrap.App) {
	if err := app.Close(); err != nil {
		app.Logger.Error("close resources failed", "error", err)
	}
}
