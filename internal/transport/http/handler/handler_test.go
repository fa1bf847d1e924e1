package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chai-assistant/internal/app"
	"chai-assistant/internal/ingest"
	"chai-assistant/internal/model"
	"chai-assistant/internal/pkg/jwtutil"
	"chai-assistant/internal/transport/http/middleware"
)

type fakeChat struct {
	lastInput app.AskInput
	items     []model.ContextItem
	deltas    []string
	err       error
	turns     []model.Turn
	cleared   string
}

func (f *fakeChat) ResolveThread(threadID string) string {
	if threadID == "" {
		return "chat_memory"
	}
	return threadID
}

func (f *fakeChat) Ask(_ context.Context, in app.AskInput) (*app.AskResult, error) {
	f.lastInput = in
	if f.err != nil {
		return nil, f.err
	}
	return &app.AskResult{
		ThreadID: f.ResolveThread(in.ThreadID),
		Content:  strings.Join(f.deltas, ""),
		Context:  f.items,
	}, nil
}

func (f *fakeChat) StreamAsk(_ context.Context, in app.AskInput, emit func(app.Event) error) (*app.AskResult, error) {
	f.lastInput = in
	if err := emit(app.Event{Kind: app.EventContext, Context: f.items}); err != nil {
		return nil, err
	}
	for _, d := range f.deltas {
		if err := emit(app.Event{Kind: app.EventContent, Delta: d}); err != nil {
			return nil, err
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &app.AskResult{ThreadID: f.ResolveThread(in.ThreadID)}, nil
}

func (f *fakeChat) History(_ context.Context, threadID string) ([]model.Turn, error) {
	return f.turns, f.err
}

func (f *fakeChat) ClearHistory(_ context.Context, threadID string) (int64, error) {
	f.cleared = threadID
	return int64(len(f.turns)), f.err
}

type fakeIngest struct {
	outcome *app.IngestOutcome
	err     error
	reason  string
}

func (f *fakeIngest) Trigger(_ context.Context, reason string) (*app.IngestOutcome, error) {
	f.reason = reason
	return f.outcome, f.err
}

const testSecret = "test-secret"

func newRouter(chat *fakeChat, ing *fakeIngest, auth bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	group := r.Group("/api/v1")
	if auth {
		group.Use(middleware.AuthJWT(testSecret))
	}
	h := NewChatHandler(chat)
	group.POST("/chat/ask", h.Ask)
	group.POST("/chat/stream", h.Stream)
	group.GET("/chat/history", h.GetHistory)
	group.DELETE("/chat/history", h.ClearHistory)
	group.POST("/ingest", NewIngestHandler(ing).Trigger)
	return r
}

func do(r *gin.Engine, method, path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAsk(t *testing.T) {
	chat := &fakeChat{
		items:  []model.ContextItem{model.NewTextItem("Alpha is 42")},
		deltas: []string{"It is ", "42."},
	}
	r := newRouter(chat, &fakeIngest{}, false)

	rec := do(r, http.MethodPost, "/api/v1/chat/ask", `{"question":"What is Alpha?","thread_id":"t1","top_k":3}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Code int `json:"code"`
		Data struct {
			ThreadID string            `json:"thread_id"`
			Content  string            `json:"content"`
			Context  []json.RawMessage `json:"context"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "t1", body.Data.ThreadID)
	assert.Equal(t, "It is 42.", body.Data.Content)
	assert.Len(t, body.Data.Context, 1)
	assert.Equal(t, 3, chat.lastInput.TopK)
}

func TestAskErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"missing question", `{}`, nil, http.StatusBadRequest},
		{"negative top_k", `{"question":"q","top_k":-1}`, nil, http.StatusBadRequest},
		{"invalid input", `{"question":"  "}`, fmt.Errorf("%w: question is empty", app.ErrInvalidInput), http.StatusBadRequest},
		{"answer failed", `{"question":"q"}`, fmt.Errorf("%w: boom", app.ErrAnswerFailed), http.StatusBadGateway},
		{"memory failed", `{"question":"q"}`, fmt.Errorf("%w: disk", app.ErrMemory), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(&fakeChat{err: tt.err}, &fakeIngest{}, false)
			rec := do(r, http.MethodPost, "/api/v1/chat/ask", tt.body)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestStreamFrames(t *testing.T) {
	chat := &fakeChat{
		items:  []model.ContextItem{model.NewTextItem("Beta is blue")},
		deltas: []string{"Beta ", "is\nblue"},
	}
	r := newRouter(chat, &fakeIngest{}, false)

	rec := do(r, http.MethodPost, "/api/v1/chat/stream", `{"question":"What color is Beta?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	frames := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n\n"), "\n\n")
	require.Len(t, frames, 4)
	assert.Equal(t, `event: context`+"\n"+`data: ["Beta is blue"]`, frames[0])
	assert.Equal(t, "data: Beta ", frames[1])
	assert.Equal(t, `data: is\nblue`, frames[2])
	assert.Equal(t, "event: done\ndata: chat_memory", frames[3])
}

func TestStreamError(t *testing.T) {
	chat := &fakeChat{
		deltas: []string{"partial"},
		err:    fmt.Errorf("%w: %w", app.ErrAnswerFailed, errors.New("upstream 500")),
	}
	r := newRouter(chat, &fakeIngest{}, false)

	rec := do(r, http.MethodPost, "/api/v1/chat/stream", `{"question":"q"}`)
	body := rec.Body.String()
	assert.Contains(t, body, "data: partial\n\n")
	assert.True(t, strings.HasSuffix(body, "event: error\ndata: answer generation failed\n\n"))
	assert.NotContains(t, body, "upstream 500")
}

func TestHistory(t *testing.T) {
	chat := &fakeChat{turns: []model.Turn{
		{ThreadID: "t1", ID: "user-1", Role: model.RoleUser, Content: "hi"},
		{ThreadID: "t1", ID: "assistant-2", Role: model.RoleAssistant, Content: "hello"},
	}}
	r := newRouter(chat, &fakeIngest{}, false)

	rec := do(r, http.MethodGet, "/api/v1/chat/history?thread_id=t1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"thread_id":"t1"`)
	assert.Contains(t, rec.Body.String(), `"hello"`)

	rec = do(r, http.MethodDelete, "/api/v1/chat/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "chat_memory", chat.cleared)
	assert.Contains(t, rec.Body.String(), `"deleted":2`)
}

func TestTokenThreadOverridesRequest(t *testing.T) {
	chat := &fakeChat{}
	r := newRouter(chat, &fakeIngest{}, true)
	token, err := jwtutil.GenerateToken(testSecret, "alice", "alice-thread", time.Hour)
	require.NoError(t, err)

	rec := do(r, http.MethodPost, "/api/v1/chat/ask", `{"question":"q","thread_id":"other"}`,
		"Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice-thread", chat.lastInput.ThreadID)

	rec = do(r, http.MethodPost, "/api/v1/chat/ask", `{"question":"q"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIngestTrigger(t *testing.T) {
	t.Run("inline", func(t *testing.T) {
		ing := &fakeIngest{outcome: &app.IngestOutcome{JobID: "j1", Report: &ingest.Report{Candidates: 2, Inserted: []string{"a"}}}}
		r := newRouter(&fakeChat{}, ing, false)
		rec := do(r, http.MethodPost, "/api/v1/ingest", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "api", ing.reason)
		assert.Contains(t, rec.Body.String(), `"candidates":2`)
	})

	t.Run("queued", func(t *testing.T) {
		ing := &fakeIngest{outcome: &app.IngestOutcome{Queued: true, JobID: "j2"}}
		r := newRouter(&fakeChat{}, ing, false)
		rec := do(r, http.MethodPost, "/api/v1/ingest", `{"reason":"manual"}`)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "manual", ing.reason)
	})

	t.Run("enqueue failed", func(t *testing.T) {
		r := newRouter(&fakeChat{}, &fakeIngest{err: app.ErrIngestEnqueue}, false)
		rec := do(r, http.MethodPost, "/api/v1/ingest", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHealthHandler("chai", "test", time.Now(),
		HealthCheck{Name: "memory", Check: func(context.Context) error { return nil }},
		HealthCheck{Name: "redis"},
	)
	r.GET("/healthz", h.Check)

	rec := do(r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":{"ok":true,"configured":false}`)

	r = gin.New()
	h = NewHealthHandler("chai", "test", time.Now(),
		HealthCheck{Name: "runtime", Check: func(context.Context) error { return errors.New("down") }},
	)
	r.GET("/healthz", h.Check)
	rec = do(r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "down")
}
