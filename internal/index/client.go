// Package index pushes emitted chunks to a retrieval service over HTTP.
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgallion1/docblocks/internal/chunker"
	"github.com/dgallion1/docblocks/internal/doctree"
)

// Client communicates with the retrieval index HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	maxTokens  int
	httpClient *http.Client
}

// NewClient returns a client that sends at most maxTokens estimated tokens
// of chunk content per request. Zero selects chunker.DefaultBatchTokens.
func NewClient(baseURL, apiKey string, maxTokens int) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		maxTokens: maxTokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ChunkBatch is the body for POST /documents/{id}/chunks.
type ChunkBatch struct {
	Title  string          `json:"title,omitempty"`
	Batch  int             `json:"batch"`
	Total  int             `json:"total_batches"`
	Chunks []doctree.Chunk `json:"chunks"`
}

// RetryableError indicates a transient failure (429 or 5xx) that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	msg := e.Message
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return fmt.Sprintf("retryable index error (status %d): %s", e.StatusCode, msg)
}

// PutChunks sends chunks in token-bounded batches and returns how many were
// accepted. A failed batch stops the upload; earlier batches stay indexed.
func (c *Client) PutChunks(ctx context.Context, docID, title string, chunks []doctree.Chunk) (int, error) {
	batches := chunker.Batch(chunks, c.maxTokens)
	sent := 0
	for i, batch := range batches {
		body, err := json.Marshal(ChunkBatch{Title: title, Batch: i + 1, Total: len(batches), Chunks: batch})
		if err != nil {
			return sent, fmt.Errorf("marshal batch: %w", err)
		}
		u := c.baseURL + "/documents/" + url.PathEscape(docID) + "/chunks"
		if err := c.do(ctx, http.MethodPost, u, body, http.StatusOK, http.StatusCreated, http.StatusAccepted); err != nil {
			return sent, fmt.Errorf("put chunks batch %d/%d: %w", i+1, len(batches), err)
		}
		sent += len(batch)
	}
	return sent, nil
}

// DeleteDocument removes every chunk stored for a document. A missing
// document is not an error.
func (c *Client) DeleteDocument(ctx context.Context, docID string) error {
	u := c.baseURL + "/documents/" + url.PathEscape(docID)
	if err := c.do(ctx, http.MethodDelete, u, nil, http.StatusOK, http.StatusNoContent, http.StatusNotFound); err != nil {
		return fmt.Errorf("delete document %s: %w", docID, err)
	}
	return nil
}

// Ping checks that the index is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/health", nil, http.StatusOK); err != nil {
		return fmt.Errorf("ping index: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, u string, body []byte, ok ...int) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	for _, code := range ok {
		if resp.StatusCode == code {
			return nil
		}
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &RetryableError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
