package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"chai-assistant/internal/ai"
	"chai-assistant/internal/model"
)

// fakeRuntime is an in-memory agent runtime. Agents carrying the knowledge
// search tool search the inserted documents; other agents answer with a
// deterministic text derived from the last message.
type fakeRuntime struct {
	mu       sync.Mutex
	dbs      []ai.VectorDB
	docs     []model.Document
	agents   map[string]ai.AgentConfig
	sessions map[string]string

	answerMessages [][]ai.ChatMessage
	answerErr      error
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		agents:   map[string]ai.AgentConfig{},
		sessions: map[string]string{},
	}
}

func (f *fakeRuntime) ListVectorDBs(context.Context) ([]ai.VectorDB, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ai.VectorDB(nil), f.dbs...), nil
}

func (f *fakeRuntime) RegisterVectorDB(_ context.Context, req ai.RegisterVectorDBRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dbs = append(f.dbs, ai.VectorDB{Identifier: req.VectorDBID, ProviderResourceID: req.VectorDBID})
	return nil
}

func (f *fakeRuntime) InsertDocuments(_ context.Context, req ai.InsertRequest) (*ai.InsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, req.Documents...)
	return &ai.InsertResult{}, nil
}

func (f *fakeRuntime) CreateAgent(_ context.Context, cfg ai.AgentConfig) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("agent-%d", len(f.agents)+1)
	f.agents[id] = cfg
	return id, nil
}

func (f *fakeRuntime) CreateSession(_ context.Context, agentID, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("session-%d", len(f.sessions)+1)
	f.sessions[id] = agentID
	return id, nil
}

func (f *fakeRuntime) searchTopK(agentID string) (int, bool) {
	for _, tool := range f.agents[agentID].Toolgroups {
		if tool.Name == ai.KnowledgeSearchTool {
			return tool.Args["top_k"].(int), true
		}
	}
	return 0, false
}

func (f *fakeRuntime) CreateTurn(_ context.Context, agentID, _ string, messages []ai.ChatMessage) (*ai.AgentTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if topK, ok := f.searchTopK(agentID); ok {
		query := strings.ToLower(messages[len(messages)-1].Content)
		var items []json.RawMessage
		for _, doc := range f.docs {
			broad := query == "list" || query == "....."
			if !broad && !strings.Contains(query, strings.ToLower(doc.Content)) {
				continue
			}
			raw, _ := json.Marshal(map[string]any{"document_id": doc.ID, "content": doc.Content, "metadata": doc.Metadata})
			items = append(items, raw)
			if len(items) == topK {
				break
			}
		}
		if items == nil {
			items = []json.RawMessage{}
		}
		content, _ := json.Marshal(items)
		return &ai.AgentTurn{Steps: []ai.TurnStep{
			{StepType: ai.StepInference},
			{StepType: ai.StepToolExecution, ToolResponses: []ai.ToolResponse{{Content: content}}},
		}}, nil
	}

	if f.answerErr != nil {
		return nil, f.answerErr
	}
	f.answerMessages = append(f.answerMessages, messages)
	out, _ := json.Marshal(fakeAnswer(messages))
	return &ai.AgentTurn{OutputMessage: ai.OutputMessage{Role: "assistant", Content: out}}, nil
}

func (f *fakeRuntime) StreamTurn(ctx context.Context, agentID, sessionID string, messages []ai.ChatMessage, onDelta func(string) error) (string, error) {
	turn, err := f.CreateTurn(ctx, agentID, sessionID, messages)
	if err != nil {
		return "", err
	}
	text := turn.Text()
	for _, word := range strings.SplitAfter(text, " ") {
		if err := onDelta(word); err != nil {
			return "", err
		}
	}
	return text, nil
}

func fakeAnswer(messages []ai.ChatMessage) string {
	return fmt.Sprintf("answer over %d messages: %d chars", len(messages), len(messages[len(messages)-1].Content))
}

type stubSearcher struct {
	res  ai.ToolResult
	err  error
	reqs []ai.SearchRequest
}

func (s *stubSearcher) Search(_ context.Context, req ai.SearchRequest) (ai.ToolResult, error) {
	s.reqs = append(s.reqs, req)
	return s.res, s.err
}
