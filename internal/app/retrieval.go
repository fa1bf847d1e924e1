package app

import (
	"context"
	"log/slog"

	"chai-assistant/internal/ai"
	"chai-assistant/internal/config"
	"chai-assistant/internal/model"
)

type Searcher interface {
	Search(ctx context.Context, req ai.SearchRequest) (ai.ToolResult, error)
}

// RetrievalStage fetches context for a question. It never fails: any problem
// yields an empty context.
type RetrievalStage struct {
	searcher     Searcher
	defaultTopK  int
	instructions string
	logger       *slog.Logger
}

func NewRetrievalStage(searcher Searcher, cfg config.RetrievalConfig, logger *slog.Logger) *RetrievalStage {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	return &RetrievalStage{
		searcher:     searcher,
		defaultTopK:  cfg.TopK,
		instructions: cfg.Instructions,
		logger:       logger,
	}
}

func (r *RetrievalStage) Retrieve(ctx context.Context, question string, topK int) []model.ContextItem {
	if topK <= 0 {
		topK = r.defaultTopK
	}

	res, err := r.searcher.Search(ctx, ai.SearchRequest{
		Query:        question,
		TopK:         topK,
		Instructions: r.instructions,
		SessionName:  "rag-context",
	})
	if err != nil {
		r.logger.Warn("retrieval failed, continuing without context", "error", err)
		return []model.ContextItem{}
	}

	switch res.Kind {
	case ai.ToolResultPresent:
		if res.Items == nil {
			return []model.ContextItem{}
		}
		return res.Items
	case ai.ToolResultAbsent:
		r.logger.Info("retrieval returned no tool result", "reason", res.Reason)
	case ai.ToolResultMalformed:
		r.logger.Warn("retrieval returned an unrecognised payload", "reason", res.Reason)
	}
	return []model.ContextItem{}
}
