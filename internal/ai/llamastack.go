package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chai-assistant/internal/model"
)

// StatusError is returned when the runtime answers with a non 2xx status.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s status %d: %s", e.Op, e.Code, e.Body)
}

// LlamaStackClient talks to a Llama Stack compatible agent runtime.
type LlamaStackClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewLlamaStackClient(baseURL string, timeout time.Duration) *LlamaStackClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &LlamaStackClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type VectorDB struct {
	Identifier         string `json:"identifier"`
	ProviderResourceID string `json:"provider_resource_id"`
	ProviderID         string `json:"provider_id"`
	EmbeddingModel     string `json:"embedding_model"`
	EmbeddingDimension int    `json:"embedding_dimension"`
}

// Name is the id the index was registered under.
func (v VectorDB) Name() string {
	if v.ProviderResourceID != "" {
		return v.ProviderResourceID
	}
	return v.Identifier
}

type RegisterVectorDBRequest struct {
	VectorDBID         string `json:"vector_db_id"`
	EmbeddingModel     string `json:"embedding_model"`
	EmbeddingDimension int    `json:"embedding_dimension"`
	ProviderID         string `json:"provider_id,omitempty"`
}

type InsertRequest struct {
	Documents         []model.Document `json:"documents"`
	VectorDBID        string           `json:"vector_db_id"`
	ChunkSizeInTokens int              `json:"chunk_size_in_tokens"`
}

// InsertResult is empty unless the runtime reports per document chunk counts.
type InsertResult struct {
	ChunkCounts map[string]int `json:"chunk_counts,omitempty"`
}

func (c *LlamaStackClient) ListVectorDBs(ctx context.Context) ([]VectorDB, error) {
	raw, err := c.do(ctx, "list vector dbs", http.MethodGet, "/v1/vector-dbs", nil)
	if err != nil {
		return nil, err
	}

	// Older runtimes return a bare array, newer ones wrap it in {"data": [...]}.
	var wrapped struct {
		Data []VectorDB `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		return wrapped.Data, nil
	}
	var list []VectorDB
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("parse vector db list failed: %w", err)
	}
	return list, nil
}

func (c *LlamaStackClient) RegisterVectorDB(ctx context.Context, req RegisterVectorDBRequest) error {
	_, err := c.do(ctx, "register vector db", http.MethodPost, "/v1/vector-dbs", req)
	return err
}

func (c *LlamaStackClient) InsertDocuments(ctx context.Context, req InsertRequest) (*InsertResult, error) {
	raw, err := c.do(ctx, "rag insert", http.MethodPost, "/v1/tool-runtime/rag-tool/insert", req)
	if err != nil {
		return nil, err
	}

	result := &InsertResult{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return result, nil
	}
	// Anything that is not the chunk count object is ignored.
	_ = json.Unmarshal(raw, result)
	return result, nil
}

// Ping checks that the runtime answers at all.
func (c *LlamaStackClient) Ping(ctx context.Context) error {
	_, err := c.do(ctx, "runtime health", http.MethodGet, "/v1/health", nil)
	return err
}

func (c *LlamaStackClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal runtime request failed: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build runtime request failed: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *LlamaStackClient) do(ctx context.Context, op, method, path string, body any) ([]byte, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response failed: %w", op, err)
	}
	if resp.StatusCode >= 300 {
		return nil, &StatusError{Op: op, Code: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}
