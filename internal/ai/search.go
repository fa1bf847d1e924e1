package ai

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// AgentRuntime is the part of the runtime API used to run agent turns.
type AgentRuntime interface {
	CreateAgent(ctx context.Context, cfg AgentConfig) (string, error)
	CreateSession(ctx context.Context, agentID, name string) (string, error)
	CreateTurn(ctx context.Context, agentID, sessionID string, messages []ChatMessage) (*AgentTurn, error)
	StreamTurn(ctx context.Context, agentID, sessionID string, messages []ChatMessage, onDelta func(string) error) (string, error)
}

type SearchRequest struct {
	Query        string
	TopK         int
	Instructions string
	SessionName  string
}

// KnowledgeSearcher runs one agent turn scoped to the knowledge search tool
// and reports what the tool returned.
type KnowledgeSearcher struct {
	runtime     AgentRuntime
	model       string
	vectorDBIDs []string
}

func NewKnowledgeSearcher(runtime AgentRuntime, model string, vectorDBIDs ...string) *KnowledgeSearcher {
	return &KnowledgeSearcher{
		runtime:     runtime,
		model:       model,
		vectorDBIDs: vectorDBIDs,
	}
}

func (s *KnowledgeSearcher) Search(ctx context.Context, req SearchRequest) (ToolResult, error) {
	agentID, err := s.runtime.CreateAgent(ctx, AgentConfig{
		Model:        s.model,
		Instructions: req.Instructions,
		Toolgroups:   []AgentTool{KnowledgeSearch(s.vectorDBIDs, req.TopK)},
	})
	if err != nil {
		return ToolResult{}, fmt.Errorf("create search agent failed: %w", err)
	}

	name := req.SessionName
	if name == "" {
		name = "rag-context"
	}
	sessionID, err := s.runtime.CreateSession(ctx, agentID, name+"-"+uuid.NewString())
	if err != nil {
		return ToolResult{}, fmt.Errorf("create search session failed: %w", err)
	}

	turn, err := s.runtime.CreateTurn(ctx, agentID, sessionID, []ChatMessage{UserMessage(req.Query)})
	if err != nil {
		return ToolResult{}, fmt.Errorf("search turn failed: %w", err)
	}
	return ExtractToolResult(turn), nil
}
