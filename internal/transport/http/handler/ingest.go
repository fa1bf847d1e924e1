package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chai-assistant/internal/app"
	"chai-assistant/internal/transport/http/response"
)

type IngestService interface {
	Trigger(ctx context.Context, reason string) (*app.IngestOutcome, error)
}

type IngestHandler struct {
	ingestService IngestService
}

type IngestRequest struct {
	Reason string `json:"reason" binding:"max=256"`
}

func NewIngestHandler(ingestService IngestService) *IngestHandler {
	return &IngestHandler{ingestService: ingestService}
}

func (h *IngestHandler) Trigger(c *gin.Context) {
	var req IngestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "api"
	}

	outcome, err := h.ingestService.Trigger(c.Request.Context(), req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrIngestEnqueue):
			response.Error(c, http.StatusServiceUnavailable, response.CodeUnavailable, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "ingest failed")
		}
		return
	}

	if outcome.Queued {
		response.Status(c, http.StatusAccepted, outcome)
		return
	}
	response.OK(c, outcome)
}
