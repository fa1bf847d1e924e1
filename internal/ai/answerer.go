package ai

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// AgentAnswerer produces answers through a fresh agent session per call.
type AgentAnswerer struct {
	runtime     AgentRuntime
	cfg         AgentConfig
	sessionName string
}

func NewAgentAnswerer(runtime AgentRuntime, cfg AgentConfig) *AgentAnswerer {
	if len(cfg.Toolgroups) > 0 && cfg.ToolChoice == "" {
		cfg.ToolChoice = ToolChoiceAuto
	}
	return &AgentAnswerer{
		runtime:     runtime,
		cfg:         cfg,
		sessionName: "chris-qa",
	}
}

func (a *AgentAnswerer) open(ctx context.Context) (string, string, error) {
	agentID, err := a.runtime.CreateAgent(ctx, a.cfg)
	if err != nil {
		return "", "", fmt.Errorf("create answer agent failed: %w", err)
	}
	sessionID, err := a.runtime.CreateSession(ctx, agentID, a.sessionName+"-"+uuid.NewString())
	if err != nil {
		return "", "", fmt.Errorf("create answer session failed: %w", err)
	}
	return agentID, sessionID, nil
}

func (a *AgentAnswerer) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	agentID, sessionID, err := a.open(ctx)
	if err != nil {
		return "", err
	}
	turn, err := a.runtime.CreateTurn(ctx, agentID, sessionID, messages)
	if err != nil {
		return "", err
	}
	return turn.Text(), nil
}

func (a *AgentAnswerer) StreamComplete(ctx context.Context, messages []ChatMessage, onChunk func(string) error) (string, error) {
	agentID, sessionID, err := a.open(ctx)
	if err != nil {
		return "", err
	}
	return a.runtime.StreamTurn(ctx, agentID, sessionID, messages, onChunk)
}
