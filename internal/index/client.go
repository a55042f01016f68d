// Package index pushes extracted labels and their passages to the downstream
// search indexer over its HTTP JSON API.
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

	"github.com/dgallion1/splgest/internal/doctree"
)

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	msg := e.Message
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, msg)
}

func (e *RetryableError) Retryable() bool { return true }

// Client communicates with the index HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Document is the body for PUT /documents/{key}.
type Document struct {
	Key         string            `json:"key,omitempty"`
	SetID       string            `json:"set_id,omitempty"`
	Title       string            `json:"title,omitempty"`
	Fields      map[string]string `json:"fields"`
	SectionKeys []string          `json:"section_keys,omitempty"`
	ContentHash string            `json:"content_hash,omitempty"`
	Source      string            `json:"source,omitempty"`
}

// PassageBatch is the body for PUT /documents/{key}/passages.
type PassageBatch struct {
	Passages []doctree.Passage `json:"passages"`
}

func (c *Client) url(key string, suffix string) string {
	return c.baseURL + "/documents/" + url.PathEscape(key) + suffix
}

func (c *Client) do(ctx context.Context, method, target string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return c.httpClient.Do(req)
}

// statusError classifies a failed response. 429 and 5xx are retryable.
func statusError(op string, resp *http.Response) error {
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &RetryableError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, string(respBody))
}

// PutDocument stores or replaces a label document.
func (c *Client) PutDocument(ctx context.Context, key string, doc Document) error {
	resp, err := c.do(ctx, http.MethodPut, c.url(key, ""), doc)
	if err != nil {
		return fmt.Errorf("put document: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return statusError("put document "+key, resp)
	}
	return nil
}

// GetDocument retrieves a document by key. A missing key returns nil, nil.
func (c *Client) GetDocument(ctx context.Context, key string) (*Document, error) {
	resp, err := c.do(ctx, http.MethodGet, c.url(key, ""), nil)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("get document "+key, resp)
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &doc, nil
}

// DeleteDocument deletes a document and its passages. Missing keys are not
// an error.
func (c *Client) DeleteDocument(ctx context.Context, key string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.url(key, ""), nil)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	}
	return statusError("delete document "+key, resp)
}

// PutPassages replaces the passages stored under a document.
func (c *Client) PutPassages(ctx context.Context, key string, passages []doctree.Passage) error {
	resp, err := c.do(ctx, http.MethodPut, c.url(key, "/passages"), PassageBatch{Passages: passages})
	if err != nil {
		return fmt.Errorf("put passages: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return statusError("put passages "+key, resp)
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
