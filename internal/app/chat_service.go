package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"chai-assistant/internal/model"
)

type MemoryStore interface {
	Append(ctx context.Context, threadID, role, content string) (model.Turn, error)
	History(ctx context.Context, threadID string) ([]model.Turn, error)
	Clear(ctx context.Context, threadID string) (int64, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, question string, topK int) []model.ContextItem
}

type Answerer interface {
	Answer(ctx context.Context, question string, items []model.ContextItem, history []model.Turn) (string, error)
	Stream(ctx context.Context, question string, items []model.ContextItem, history []model.Turn, onDelta func(string) error) (string, error)
}

type AskInput struct {
	Question string
	ThreadID string
	TopK     int
	// History replaces the stored thread history when non-nil.
	History []model.Turn
}

type AskResult struct {
	ThreadID string              `json:"thread_id"`
	Content  string              `json:"content"`
	Context  []model.ContextItem `json:"context"`
}

type EventKind int

const (
	EventContext EventKind = iota
	EventContent
)

// Event is one element of a streamed answer: the context first, then deltas.
type Event struct {
	Kind    EventKind
	Context []model.ContextItem
	Delta   string
}

type ChatService struct {
	memory        MemoryStore
	retrieval     Retriever
	answer        Answerer
	defaultThread string
	maxHistory    int
	logger        *slog.Logger
}

func NewChatService(
	memory MemoryStore,
	retrieval Retriever,
	answer Answerer,
	defaultThread string,
	maxHistory int,
	logger *slog.Logger,
) *ChatService {
	if defaultThread == "" {
		defaultThread = "chat_memory"
	}
	if maxHistory < 0 {
		maxHistory = 0
	}
	return &ChatService{
		memory:        memory,
		retrieval:     retrieval,
		answer:        answer,
		defaultThread: defaultThread,
		maxHistory:    maxHistory,
		logger:        logger,
	}
}

func (s *ChatService) ResolveThread(threadID string) string {
	if t := strings.TrimSpace(threadID); t != "" {
		return t
	}
	return s.defaultThread
}

// Ask answers in batch mode.
func (s *ChatService) Ask(ctx context.Context, input AskInput) (*AskResult, error) {
	return s.run(ctx, input, nil)
}

// StreamAsk emits the retrieved context, then every answer delta as it arrives.
func (s *ChatService) StreamAsk(ctx context.Context, input AskInput, emit func(Event) error) (*AskResult, error) {
	if emit == nil {
		return nil, fmt.Errorf("%w: stream callback is nil", ErrInvalidInput)
	}
	return s.run(ctx, input, emit)
}

func (s *ChatService) run(ctx context.Context, input AskInput, emit func(Event) error) (*AskResult, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", ErrInvalidInput)
	}
	threadID := s.ResolveThread(input.ThreadID)
	logger := s.logger.With("thread_id", threadID, "stream", emit != nil)

	history := input.History
	if history == nil {
		stored, err := s.memory.History(ctx, threadID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMemory, err)
		}
		history = stored
	}
	history = trimTurns(history, s.maxHistory)

	if _, err := s.memory.Append(ctx, threadID, model.RoleUser, question); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMemory, err)
	}

	items := s.retrieval.Retrieve(ctx, question, input.TopK)
	logger.Info("retrieved context", "items", len(items), "history_turns", len(history))

	var (
		content string
		err     error
	)
	if emit == nil {
		content, err = s.answer.Answer(ctx, question, items, history)
	} else {
		if err := emit(Event{Kind: EventContext, Context: items}); err != nil {
			return nil, err
		}
		content, err = s.answer.Stream(ctx, question, items, history, func(delta string) error {
			return emit(Event{Kind: EventContent, Delta: delta})
		})
	}
	if err != nil {
		logger.Error("answer failed", "error", err)
		return nil, err
	}

	if _, err := s.memory.Append(ctx, threadID, model.RoleAssistant, strings.TrimSpace(content)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMemory, err)
	}

	return &AskResult{
		ThreadID: threadID,
		Content:  content,
		Context:  items,
	}, nil
}

func (s *ChatService) History(ctx context.Context, threadID string) ([]model.Turn, error) {
	turns, err := s.memory.History(ctx, s.ResolveThread(threadID))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMemory, err)
	}
	return turns, nil
}

func (s *ChatService) ClearHistory(ctx context.Context, threadID string) (int64, error) {
	n, err := s.memory.Clear(ctx, s.ResolveThread(threadID))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMemory, err)
	}
	return n, nil
}

// trimTurns keeps the last limit turns; limit 0 keeps everything.
func trimTurns(turns []model.Turn, limit int) []model.Turn {
	if limit <= 0 || limit >= len(turns) {
		return turns
	}
	return turns[len(turns)-limit:]
}
