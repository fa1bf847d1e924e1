package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"chai-assistant/internal/bootstrap"
	httptransport "chai-assistant/internal/transport/http"
	"chai-assistant/internal/watch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Makes sure the index exists and is populated, then serves the chat and
ingest API. With corpus.watch enabled, corpus changes trigger re-ingestion.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	addSkipBootstrapFlag(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	app, err := openApp(cmd, bootstrap.Options{StartWorker: true})
	if err != nil {
		return err
	}
	defer closeApp(app)

	if err := ensureIndex(cmd, app); err != nil {
		return err
	}

	if app.Config.Corpus.Watch {
		debounce := time.Duration(app.Config.Corpus.WatchDebounceMS) * time.Millisecond
		watcher := watch.New(app.Config.CorpusRoot(), app.Scanner.Supports, debounce, func(ctx context.Context, reason string) error {
			_, err := app.Ingest.Trigger(ctx, reason)
			return err
		}, app.Logger.With("component", "watch"))
		go func() {
			if err := watcher.Run(ctx); err != nil {
				app.Logger.Error("corpus watcher stopped", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:              app.Config.HTTPAddr(),
		Handler:           httptransport.NewRouter(app),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		app.Logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error("server shutdown failed", "error", err)
	}
	return nil
}
