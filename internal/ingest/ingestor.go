package ingest

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"chai-assistant/internal/ai"
	"chai-assistant/internal/config"
	"chai-assistant/internal/model"
)

var ErrUnexpectedPayload = errors.New("unexpected retrieval payload")

const (
	listingQuery           = "list"
	listingInstructions    = "Fetch existing doc IDs"
	emptyCheckQuery        = "....."
	emptyCheckInstructions = "Check if any documents exist"
)

// IndexRuntime manages indexes and accepts documents.
type IndexRuntime interface {
	ListVectorDBs(ctx context.Context) ([]ai.VectorDB, error)
	RegisterVectorDB(ctx context.Context, req ai.RegisterVectorDBRequest) error
	InsertDocuments(ctx context.Context, req ai.InsertRequest) (*ai.InsertResult, error)
}

type Searcher interface {
	Search(ctx context.Context, req ai.SearchRequest) (ai.ToolResult, error)
}

type DocumentSource interface {
	Scan(root string) iter.Seq[model.Document]
}

// Report summarises one reconciliation run.
type Report struct {
	Candidates  int            `json:"candidates"`
	Skipped     int            `json:"skipped"`
	Inserted    []string       `json:"inserted"`
	ChunkCounts map[string]int `json:"chunk_counts,omitempty"`
}

type Ingestor struct {
	runtime  IndexRuntime
	searcher Searcher
	source   DocumentSource
	root     string
	index    config.IndexConfig
	logger   *slog.Logger
}

func NewIngestor(
	runtime IndexRuntime,
	searcher Searcher,
	source DocumentSource,
	root string,
	index config.IndexConfig,
	logger *slog.Logger,
) *Ingestor {
	if index.ListingTopK <= 0 {
		index.ListingTopK = 1000
	}
	if index.ChunkSizeTokens <= 0 {
		index.ChunkSizeTokens = 512
	}
	return &Ingestor{
		runtime:  runtime,
		searcher: searcher,
		source:   source,
		root:     root,
		index:    index,
		logger:   logger.With("vector_db", index.VectorDBID),
	}
}

// EnsureIndex registers the index unless the runtime already lists it.
// A failed listing counts as "absent"; a failed registration is returned.
func (i *Ingestor) EnsureIndex(ctx context.Context) (bool, error) {
	dbs, err := i.runtime.ListVectorDBs(ctx)
	if err != nil {
		i.logger.Warn("list vector dbs failed, assuming index is absent", "error", err)
	}
	for _, db := range dbs {
		if db.Name() == i.index.VectorDBID || db.Identifier == i.index.VectorDBID {
			i.logger.Info("vector db already exists")
			return false, nil
		}
	}

	if err := i.runtime.RegisterVectorDB(ctx, ai.RegisterVectorDBRequest{
		VectorDBID:         i.index.VectorDBID,
		EmbeddingModel:     i.index.EmbeddingModel,
		EmbeddingDimension: i.index.EmbeddingDimension,
		ProviderID:         i.index.ProviderID,
	}); err != nil {
		return false, fmt.Errorf("register vector db failed: %w", err)
	}
	i.logger.Info("registered vector db", "embedding_model", i.index.EmbeddingModel, "dimension", i.index.EmbeddingDimension)
	return true, nil
}

// IndexEmpty runs a minimal query; an empty or unrecognised payload is empty.
func (i *Ingestor) IndexEmpty(ctx context.Context) (bool, error) {
	res, err := i.searcher.Search(ctx, ai.SearchRequest{
		Query:        emptyCheckQuery,
		TopK:         1,
		Instructions: emptyCheckInstructions,
		SessionName:  "index-check",
	})
	if err != nil {
		return true, fmt.Errorf("check vector db failed: %w", err)
	}

	switch res.Kind {
	case ai.ToolResultPresent:
		return len(res.Items) == 0, nil
	case ai.ToolResultAbsent, ai.ToolResultMalformed:
		return true, nil
	default:
		return true, fmt.Errorf("%w: kind %s", ErrUnexpectedPayload, res.Kind)
	}
}

// ExistingIDs lists the document ids the index reports for a broad query.
func (i *Ingestor) ExistingIDs(ctx context.Context) (map[string]struct{}, error) {
	res, err := i.searcher.Search(ctx, ai.SearchRequest{
		Query:        listingQuery,
		TopK:         i.index.ListingTopK,
		Instructions: listingInstructions,
		SessionName:  "fetch-docs",
	})
	if err != nil {
		return nil, fmt.Errorf("list existing documents failed: %w", err)
	}

	switch res.Kind {
	case ai.ToolResultPresent:
		return res.DocumentIDs(), nil
	case ai.ToolResultAbsent:
		return map[string]struct{}{}, nil
	case ai.ToolResultMalformed:
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedPayload, res.Reason)
	default:
		return nil, fmt.Errorf("%w: kind %s", ErrUnexpectedPayload, res.Kind)
	}
}

// Reconcile scans the corpus and inserts every document the index does not
// report yet, as a single batch.
func (i *Ingestor) Reconcile(ctx context.Context) (*Report, error) {
	existing, err := i.ExistingIDs(ctx)
	if err != nil {
		i.logger.Warn("could not fetch existing document ids, treating all as new", "error", err)
		existing = map[string]struct{}{}
	}

	candidates := 0
	counted := func(yield func(model.Document) bool) {
		for doc := range i.source.Scan(i.root) {
			candidates++
			if !yield(doc) {
				return
			}
		}
	}
	fresh := Reconcile(counted, existing)

	report := &Report{
		Candidates: candidates,
		Skipped:    candidates - len(fresh),
		Inserted:   make([]string, 0, len(fresh)),
	}
	if len(fresh) == 0 {
		i.logger.Info("no new documents to ingest", "candidates", candidates)
		return report, nil
	}

	res, err := i.runtime.InsertDocuments(ctx, ai.InsertRequest{
		Documents:         fresh,
		VectorDBID:        i.index.VectorDBID,
		ChunkSizeInTokens: i.index.ChunkSizeTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("insert documents failed: %w", err)
	}

	for _, doc := range fresh {
		report.Inserted = append(report.Inserted, doc.ID)
	}
	i.logger.Info("inserted documents", "count", len(fresh), "skipped", report.Skipped)

	if res != nil && len(res.ChunkCounts) > 0 {
		report.ChunkCounts = res.ChunkCounts
		for id, n := range res.ChunkCounts {
			i.logger.Info("document chunked", "document_id", id, "chunks", n)
		}
	} else {
		i.logger.Info("no chunk count metadata returned from insert")
	}
	return report, nil
}

// Bootstrap makes sure the index exists and is populated. Reconciliation runs
// when the index was just created or the empty check finds it empty.
func (i *Ingestor) Bootstrap(ctx context.Context) (*Report, error) {
	created, err := i.EnsureIndex(ctx)
	if err != nil {
		return nil, err
	}

	if !created {
		empty, err := i.IndexEmpty(ctx)
		if err != nil {
			i.logger.Warn("empty check failed, treating index as empty", "error", err)
		}
		if !empty {
			i.logger.Info("vector db already populated, skipping ingestion")
			return &Report{Inserted: []string{}}, nil
		}
	}
	return i.Reconcile(ctx)
}
