package main

import (
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"chai-assistant/internal/bootstrap"
	"chai-assistant/internal/tui"
)

var (
	chatThread string
	chatTopK   int
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive terminal chat",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatThread, "thread", "t", "", "conversation thread (default memory.default_thread)")
	chatCmd.Flags().IntVarP(&chatTopK, "top-k", "k", 0, "context items to retrieve (default retrieval.top_k)")
	addSkipBootstrapFlag(chatCmd)
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	// The program owns the terminal; only log.file receives logs.
	app, err := openApp(cmd, bootstrap.Options{LogWriter: io.Discard})
	if err != nil {
		return err
	}
	defer closeApp(app)

	if err := ensureIndex(cmd, app); err != nil {
		return err
	}
	thread := app.Chat.ResolveThread(chatThread)

	return tui.Run(cmd.Context(), app.Chat, thread, chatTopK, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
}
