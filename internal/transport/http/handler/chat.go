package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chai-assistant/internal/app"
	"chai-assistant/internal/model"
	"chai-assistant/internal/transport/http/middleware"
	"chai-assistant/internal/transport/http/response"
)

type ChatService interface {
	Ask(ctx context.Context, input app.AskInput) (*app.AskResult, error)
	StreamAsk(ctx context.Context, input app.AskInput, emit func(app.Event) error) (*app.AskResult, error)
	History(ctx context.Context, threadID string) ([]model.Turn, error)
	ClearHistory(ctx context.Context, threadID string) (int64, error)
	ResolveThread(threadID string) string
}

type ChatHandler struct {
	chatService ChatService
}

type AskRequest struct {
	Question string `json:"question" binding:"required"`
	ThreadID string `json:"thread_id" binding:"max=128"`
	TopK     int    `json:"top_k" binding:"gte=0,lte=100"`
}

func NewChatHandler(chatService ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.chatService.Ask(c.Request.Context(), app.AskInput{
		Question: req.Question,
		ThreadID: threadFor(c, req.ThreadID),
		TopK:     req.TopK,
	})
	if err != nil {
		writeChatError(c, err, "ask failed")
		return
	}

	response.OK(c, result)
}

// Stream answers over server sent events: one context event, then the answer
// deltas as data lines, then done or error.
func (h *ChatHandler) Stream(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	write := func(frame string) error {
		if _, err := c.Writer.Write([]byte(frame)); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	result, err := h.chatService.StreamAsk(c.Request.Context(), app.AskInput{
		Question: req.Question,
		ThreadID: threadFor(c, req.ThreadID),
		TopK:     req.TopK,
	}, func(ev app.Event) error {
		switch ev.Kind {
		case app.EventContext:
			payload, err := json.Marshal(ev.Context)
			if err != nil {
				return err
			}
			return write("event: context\ndata: " + string(payload) + "\n\n")
		default:
			return write("data: " + sanitizeSSE(ev.Delta) + "\n\n")
		}
	})
	if err != nil {
		_ = write(fmt.Sprintf("event: error\ndata: %s\n\n", sanitizeSSE(publicError(err))))
		return
	}

	_ = write("event: done\ndata: " + sanitizeSSE(result.ThreadID) + "\n\n")
}

func (h *ChatHandler) GetHistory(c *gin.Context) {
	threadID := h.chatService.ResolveThread(threadFor(c, c.Query("thread_id")))
	turns, err := h.chatService.History(c.Request.Context(), threadID)
	if err != nil {
		writeChatError(c, err, "get history failed")
		return
	}
	if turns == nil {
		turns = []model.Turn{}
	}
	response.OK(c, gin.H{"thread_id": threadID, "turns": turns})
}

func (h *ChatHandler) ClearHistory(c *gin.Context) {
	threadID := h.chatService.ResolveThread(threadFor(c, c.Query("thread_id")))
	n, err := h.chatService.ClearHistory(c.Request.Context(), threadID)
	if err != nil {
		writeChatError(c, err, "clear history failed")
		return
	}
	response.OK(c, gin.H{"thread_id": threadID, "deleted": n})
}

// threadFor prefers the thread carried by the token over the requested one.
func threadFor(c *gin.Context, requested string) string {
	if thread, ok := middleware.ThreadFromContext(c); ok {
		return thread
	}
	return requested
}

func writeChatError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrAnswerFailed):
		response.Error(c, http.StatusBadGateway, response.CodeAnswerFailed, app.ErrAnswerFailed.Error())
	case errors.Is(err, app.ErrMemory):
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, app.ErrMemory.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}

func publicError(err error) string {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		return err.Error()
	case errors.Is(err, app.ErrAnswerFailed):
		return app.ErrAnswerFailed.Error()
	case errors.Is(err, app.ErrMemory):
		return app.ErrMemory.Error()
	}
	return "stream failed"
}

func sanitizeSSE(input string) string {
	replaced := strings.ReplaceAll(input, "\r\n", "\\n")
	replaced = strings.ReplaceAll(replaced, "\n", "\\n")
	return replaced
}
