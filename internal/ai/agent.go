package ai

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	KnowledgeSearchTool = "builtin::rag/knowledge_search"

	ToolChoiceAuto = "auto"

	StepToolExecution = "tool_execution"
	StepInference     = "inference"
)

// AgentTool is a toolgroup reference. Without args it is sent as a bare name.
type AgentTool struct {
	Name string
	Args map[string]any
}

func (t AgentTool) MarshalJSON() ([]byte, error) {
	if len(t.Args) == 0 {
		return json.Marshal(t.Name)
	}
	return json.Marshal(struct {
		Name string         `json:"name"`
		Args map[string]any `json:"args"`
	}{Name: t.Name, Args: t.Args})
}

// KnowledgeSearch scopes the retrieval tool to the given indexes.
func KnowledgeSearch(vectorDBIDs []string, topK int) AgentTool {
	return AgentTool{
		Name: KnowledgeSearchTool,
		Args: map[string]any{
			"vector_db_ids": vectorDBIDs,
			"top_k":         topK,
		},
	}
}

type AgentConfig struct {
	Model        string      `json:"model"`
	Instructions string      `json:"instructions"`
	Toolgroups   []AgentTool `json:"toolgroups,omitempty"`
	ToolChoice   string      `json:"tool_choice,omitempty"`
}

type ToolResponse struct {
	CallID   string          `json:"call_id"`
	ToolName string          `json:"tool_name"`
	Content  json.RawMessage `json:"content"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

type TurnStep struct {
	StepType      string         `json:"step_type"`
	ToolResponses []ToolResponse `json:"tool_responses,omitempty"`
}

type OutputMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type AgentTurn struct {
	TurnID        string        `json:"turn_id"`
	SessionID     string        `json:"session_id"`
	Steps         []TurnStep    `json:"steps"`
	OutputMessage OutputMessage `json:"output_message"`
}

// Text is the assistant output as plain text.
func (t *AgentTurn) Text() string {
	return ContentText(t.OutputMessage.Content)
}

// ContentText flattens message content, which is either a string or a list
// of typed content items.
func ContentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var items []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return ""
	}
	var b strings.Builder
	for _, item := range items {
		if item.Type == "" || item.Type == "text" {
			b.WriteString(item.Text)
		}
	}
	return b.String()
}

func (c *LlamaStackClient) CreateAgent(ctx context.Context, cfg AgentConfig) (string, error) {
	raw, err := c.do(ctx, "create agent", http.MethodPost, "/v1/agents", map[string]any{
		"agent_config": cfg,
	})
	if err != nil {
		return "", err
	}
	var parsed struct {
		AgentID string `json:"agent_id"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse create agent response failed: %w", err)
	}
	if parsed.AgentID == "" {
		return "", fmt.Errorf("create agent returned no agent_id")
	}
	return parsed.AgentID, nil
}

func (c *LlamaStackClient) CreateSession(ctx context.Context, agentID, name string) (string, error) {
	path := "/v1/agents/" + url.PathEscape(agentID) + "/session"
	raw, err := c.do(ctx, "create session", http.MethodPost, path, map[string]any{
		"session_name": name,
	})
	if err != nil {
		return "", err
	}
	var parsed struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse create session response failed: %w", err)
	}
	if parsed.SessionID == "" {
		return "", fmt.Errorf("create session returned no session_id")
	}
	return parsed.SessionID, nil
}

func turnPath(agentID, sessionID string) string {
	return "/v1/agents/" + url.PathEscape(agentID) + "/session/" + url.PathEscape(sessionID) + "/turn"
}

func (c *LlamaStackClient) CreateTurn(ctx context.Context, agentID, sessionID string, messages []ChatMessage) (*AgentTurn, error) {
	raw, err := c.do(ctx, "create turn", http.MethodPost, turnPath(agentID, sessionID), map[string]any{
		"messages": messages,
		"stream":   false,
	})
	if err != nil {
		return nil, err
	}
	var turn AgentTurn
	if err := json.Unmarshal(raw, &turn); err != nil {
		return nil, fmt.Errorf("parse turn response failed: %w", err)
	}
	return &turn, nil
}

type turnStreamChunk struct {
	Event struct {
		Payload struct {
			EventType string `json:"event_type"`
			StepType  string `json:"step_type"`
			Delta     struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"delta"`
			Turn *AgentTurn `json:"turn"`
		} `json:"payload"`
	} `json:"event"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// StreamTurn runs a turn in streaming mode and hands every text delta of the
// inference steps to onDelta as it arrives. It returns the full text.
func (c *LlamaStackClient) StreamTurn(
	ctx context.Context,
	agentID, sessionID string,
	messages []ChatMessage,
	onDelta func(delta string) error,
) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, turnPath(agentID, sessionID), map[string]any{
		"messages": messages,
		"stream":   true,
	})
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("stream turn request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return "", &StatusError{Op: "stream turn", Code: resp.StatusCode, Body: string(raw)}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var full strings.Builder
	emit := func(text string) error {
		full.WriteString(text)
		return onDelta(text)
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var chunk turnStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			return "", fmt.Errorf("stream turn failed: %s", chunk.Error.Message)
		}

		p := chunk.Event.Payload
		switch p.EventType {
		case "step_progress":
			if p.Delta.Type != "text" || p.Delta.Text == "" {
				continue
			}
			if p.StepType != "" && p.StepType != StepInference {
				continue
			}
			if err := emit(p.Delta.Text); err != nil {
				return "", err
			}
		case "turn_complete":
			// Some providers only report the answer on completion.
			if full.Len() == 0 && p.Turn != nil {
				if text := p.Turn.Text(); text != "" {
					if err := emit(text); err != nil {
						return "", err
					}
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan turn stream failed: %w", err)
	}
	return full.String(), nil
}
