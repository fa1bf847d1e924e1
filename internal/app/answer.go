package app

import (
	"context"
	"fmt"
	"strings"

	"chai-assistant/internal/ai"
	"chai-assistant/internal/model"
)

const DefaultPreamble = "You are an expert assistant for the ChRIS platform.\n" +
	"Use only the provided documentation context to answer the question clearly and accurately."

// AnswerEngine is a language model that answers a list of messages.
type AnswerEngine interface {
	Complete(ctx context.Context, messages []ai.ChatMessage) (string, error)
	StreamComplete(ctx context.Context, messages []ai.ChatMessage, onChunk func(string) error) (string, error)
}

type AnswerStage struct {
	engine   AnswerEngine
	preamble string
}

func NewAnswerStage(engine AnswerEngine, preamble string) *AnswerStage {
	if strings.TrimSpace(preamble) == "" {
		preamble = DefaultPreamble
	}
	return &AnswerStage{engine: engine, preamble: preamble}
}

// RenderContext puts every item on its own line.
func RenderContext(items []model.ContextItem) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, item.Render())
	}
	return strings.Join(lines, "\n")
}

func BuildPrompt(preamble, question string, items []model.ContextItem) string {
	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\nUser Question:\n")
	b.WriteString(question)
	b.WriteString("\n\nContext:\n")
	b.WriteString(RenderContext(items))
	b.WriteString("\n\nAnswer:")
	return b.String()
}

// Messages replays prior turns followed by the composite prompt. Every prior
// turn is sent with the user role, whatever role it was stored with.
func (a *AnswerStage) Messages(question string, items []model.ContextItem, history []model.Turn) []ai.ChatMessage {
	messages := make([]ai.ChatMessage, 0, len(history)+1)
	for _, turn := range history {
		messages = append(messages, ai.UserMessage(turn.Content))
	}
	return append(messages, ai.UserMessage(BuildPrompt(a.preamble, question, items)))
}

func (a *AnswerStage) Answer(ctx context.Context, question string, items []model.ContextItem, history []model.Turn) (string, error) {
	content, err := a.engine.Complete(ctx, a.Messages(question, items, history))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAnswerFailed, err)
	}
	return content, nil
}

func (a *AnswerStage) Stream(
	ctx context.Context,
	question string,
	items []model.ContextItem,
	history []model.Turn,
	onDelta func(string) error,
) (string, error) {
	deltas := 0
	content, err := a.engine.StreamComplete(ctx, a.Messages(question, items, history), func(delta string) error {
		deltas++
		return onDelta(delta)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAnswerFailed, err)
	}
	// Consumers always see at least one increment, even for an empty answer.
	if deltas == 0 {
		if err := onDelta(""); err != nil {
			return "", err
		}
	}
	return content, nil
}
