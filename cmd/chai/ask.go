package main

import (
	"strings"

	"github.com/spf13/cobra"

	"chai-assistant/internal/app"
	"chai-assistant/internal/bootstrap"
)

var (
	askThread      string
	askTopK        int
	askStream      bool
	askShowContext bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askThread, "thread", "t", "", "conversation thread (default memory.default_thread)")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "context items to retrieve (default retrieval.top_k)")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "print the answer as it is generated")
	askCmd.Flags().BoolVar(&askShowContext, "context", false, "print the retrieved context sources")
	addSkipBootstrapFlag(askCmd)
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, bootstrap.Options{})
	if err != nil {
		return err
	}
	defer closeApp(a)

	if err := ensureIndex(cmd, a); err != nil {
		return err
	}

	input := app.AskInput{
		Question: strings.Join(args, " "),
		ThreadID: askThread,
		TopK:     askTopK,
	}

	var result *app.AskResult
	if askStream {
		result, err = a.Chat.StreamAsk(cmd.Context(), input, func(ev app.Event) error {
			if ev.Kind == app.EventContent {
				cmd.Print(ev.Delta)
			}
			return nil
		})
		if err != nil {
			return err
		}
		cmd.Println()
	} else {
		result, err = a.Chat.Ask(cmd.Context(), input)
		if err != nil {
			return err
		}
		cmd.Println(result.Content)
	}

	if askShowContext {
		cmd.Println()
		cmd.Printf("Context (%d items):\n", len(result.Context))
		for i, item := range result.Context {
			cmd.Printf("[%d] %s\n", i+1, item.Source())
		}
	}
	return nil
}
