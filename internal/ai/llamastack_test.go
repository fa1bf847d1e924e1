package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chai-assistant/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *LlamaStackClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewLlamaStackClient(srv.URL+"/", 5*time.Second)
}

func TestListVectorDBs_AcceptsBothShapes(t *testing.T) {
	for name, body := range map[string]string{
		"wrapped": `{"data":[{"identifier":"demo","provider_resource_id":"demo"}]}`,
		"bare":    `[{"identifier":"demo"}]`,
	} {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/v1/vector-dbs", r.URL.Path)
				_, _ = w.Write([]byte(body))
			})
			dbs, err := c.ListVectorDBs(context.Background())
			require.NoError(t, err)
			require.Len(t, dbs, 1)
			assert.Equal(t, "demo", dbs[0].Name())
		})
	}
}

func TestRegisterVectorDB_StatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req RegisterVectorDBRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "demo", req.VectorDBID)
		assert.Equal(t, 384, req.EmbeddingDimension)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad model"))
	})

	err := c.RegisterVectorDB(context.Background(), RegisterVectorDBRequest{
		VectorDBID:         "demo",
		EmbeddingModel:     "all-MiniLM-L6-v2",
		EmbeddingDimension: 384,
		ProviderID:         "faiss",
	})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.Code)
	assert.Contains(t, err.Error(), "bad model")
}

func TestInsertDocuments(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tool-runtime/rag-tool/insert", r.URL.Path)
		var req InsertRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 512, req.ChunkSizeInTokens)
		require.Len(t, req.Documents, 1)
		assert.Equal(t, "a.md", req.Documents[0].ID)
		_, _ = w.Write([]byte(`{"chunk_counts":{"a.md":3}}`))
	})

	res, err := c.InsertDocuments(context.Background(), InsertRequest{
		Documents:         []model.Document{{ID: "a.md", Content: "Alpha", MimeType: model.MimeTextPlain}},
		VectorDBID:        "demo",
		ChunkSizeInTokens: 512,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ChunkCounts["a.md"])
}

func TestInsertDocuments_NullBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`null`))
	})
	res, err := c.InsertDocuments(context.Background(), InsertRequest{VectorDBID: "demo"})
	require.NoError(t, err)
	assert.Empty(t, res.ChunkCounts)
}

func TestAgentTurnFlow(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/agents":
			var body struct {
				AgentConfig json.RawMessage `json:"agent_config"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.JSONEq(t, `{
				"model":"llama3.2:3b",
				"instructions":"find",
				"toolgroups":[{"name":"builtin::rag/knowledge_search","args":{"vector_db_ids":["demo"],"top_k":5}},"builtin::websearch"],
				"tool_choice":"auto"
			}`, string(body.AgentConfig))
			_, _ = w.Write([]byte(`{"agent_id":"ag-1"}`))
		case "/v1/agents/ag-1/session":
			_, _ = w.Write([]byte(`{"session_id":"s-1"}`))
		case "/v1/agents/ag-1/session/s-1/turn":
			_, _ = w.Write([]byte(`{
				"turn_id":"t-1",
				"steps":[
					{"step_type":"inference"},
					{"step_type":"tool_execution","tool_responses":[{"call_id":"c","tool_name":"knowledge_search","content":[{"type":"text","text":"Alpha"}]}]}
				],
				"output_message":{"role":"assistant","content":[{"type":"text","text":"Alpha is "},{"type":"text","text":"first."}]}
			}`))
		default:
			http.NotFound(w, r)
		}
	})

	ctx := context.Background()
	agentID, err := c.CreateAgent(ctx, AgentConfig{
		Model:        "llama3.2:3b",
		Instructions: "find",
		Toolgroups:   []AgentTool{KnowledgeSearch([]string{"demo"}, 5), {Name: "builtin::websearch"}},
		ToolChoice:   ToolChoiceAuto,
	})
	require.NoError(t, err)
	sessionID, err := c.CreateSession(ctx, agentID, "rag-context")
	require.NoError(t, err)

	turn, err := c.CreateTurn(ctx, agentID, sessionID, []ChatMessage{UserMessage("What is Alpha?")})
	require.NoError(t, err)
	assert.Equal(t, "Alpha is first.", turn.Text())

	res := ExtractToolResult(turn)
	assert.Equal(t, ToolResultPresent, res.Kind)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Alpha", res.Items[0].Text())
}

func TestStreamTurn(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Stream bool `json:"stream"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`{"event":{"payload":{"event_type":"step_start","step_type":"inference"}}}`,
			`{"event":{"payload":{"event_type":"step_progress","step_type":"tool_execution","delta":{"type":"tool_call","text":""}}}}`,
			`{"event":{"payload":{"event_type":"step_progress","step_type":"inference","delta":{"type":"text","text":"Hel"}}}}`,
			`{"event":{"payload":{"event_type":"step_progress","step_type":"inference","delta":{"type":"text","text":"lo"}}}}`,
			`not json`,
			`{"event":{"payload":{"event_type":"turn_complete","turn":{"output_message":{"content":"Hello"}}}}}`,
		}
		for _, e := range events {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", e)
		}
	})

	var deltas []string
	full, err := c.StreamTurn(context.Background(), "a", "s", []ChatMessage{UserMessage("hi")}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	assert.Equal(t, "Hello", full)
}

func TestStreamTurn_CompletionOnly(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `data: {"event":{"payload":{"event_type":"turn_complete","turn":{"output_message":{"content":"done"}}}}}`+"\n\n")
	})

	var deltas []string
	full, err := c.StreamTurn(context.Background(), "a", "s", nil, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"done"}, deltas)
	assert.Equal(t, "done", full)
}

func TestStreamTurn_ErrorEvent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `data: {"error":{"message":"model not loaded"}}`+"\n\n")
	})
	_, err := c.StreamTurn(context.Background(), "a", "s", nil, func(string) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}
