package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"chai-assistant/internal/bootstrap"
)

var (
	ingestReason string
	ingestJSON   bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Reconcile the corpus with the index",
	Long: `Scans the corpus directory and inserts every document the index does not
report yet. With rabbitmq.url set the job is queued for the serving process.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestReason, "reason", "cli", "reason recorded with the job")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "print the outcome as JSON")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	app, err := openApp(cmd, bootstrap.Options{})
	if err != nil {
		return err
	}
	defer closeApp(app)

	if _, err := app.Ingestor.EnsureIndex(cmd.Context()); err != nil {
		return err
	}
	outcome, err := app.Ingest.Trigger(cmd.Context(), ingestReason)
	if err != nil {
		return err
	}

	if ingestJSON {
		data, err := json.MarshalIndent(outcome, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal outcome failed: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if outcome.Queued {
		cmd.Printf("Ingest job %s queued.\n", outcome.JobID)
		return nil
	}
	report := outcome.Report
	cmd.Printf("Scanned %d documents, %d already indexed, %d inserted.\n",
		report.Candidates, report.Skipped, len(report.Inserted))
	for _, id := range report.Inserted {
		if n, ok := report.ChunkCounts[id]; ok {
			cmd.Printf("  %s (%d chunks)\n", id, n)
			continue
		}
		cmd.Printf("  %s\n", id)
	}
	return nil
}
