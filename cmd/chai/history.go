package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"chai-assistant/internal/bootstrap"
)

var (
	historyThread string
	historyClear  bool
	historyJSON   bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show or clear a conversation thread",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVarP(&historyThread, "thread", "t", "", "conversation thread (default memory.default_thread)")
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "delete every turn of the thread")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print turns as JSON")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	app, err := openApp(cmd, bootstrap.Options{})
	if err != nil {
		return err
	}
	defer closeApp(app)

	thread := app.Chat.ResolveThread(historyThread)
	if historyClear {
		n, err := app.Chat.ClearHistory(cmd.Context(), thread)
		if err != nil {
			return err
		}
		cmd.Printf("Deleted %d turns from %s.\n", n, thread)
		return nil
	}

	turns, err := app.Chat.History(cmd.Context(), thread)
	if err != nil {
		return err
	}
	if historyJSON {
		data, err := json.MarshalIndent(turns, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal history failed: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(turns) == 0 {
		cmd.Printf("No turns in %s.\n", thread)
		return nil
	}
	for _, t := range turns {
		cmd.Printf("[%s] %s: %s\n", t.Timestamp, t.Role, t.Content)
	}
	return nil
}
