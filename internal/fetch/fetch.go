// Package fetch downloads bulk label archives from openFDA and DailyMed.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dgallion1/splgest/internal/archive"
	"github.com/dgallion1/splgest/internal/retry"
)

// downloadPolicy paces retries of one download; the limiter still gates
// every attempt.
var downloadPolicy = retry.Policy{Attempts: 3, Base: 500 * time.Millisecond, Max: 10 * time.Second}

// StatusError is a non-2xx response from a download server.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download %s: status %d: %s", e.URL, e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Options configures a Client.
type Options struct {
	APIKey         string
	RequestsPerSec float64
	Timeout        time.Duration
	MaxEntryBytes  int64
	Logger         *slog.Logger
}

// Client downloads with a shared request budget.
type Client struct {
	http     *http.Client
	limiter  *rate.Limiter
	apiKey   string
	maxEntry int64
	log      *slog.Logger
}

func NewClient(opts Options) *Client {
	if opts.RequestsPerSec <= 0 {
		opts.RequestsPerSec = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		http:     &http.Client{Timeout: opts.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1),
		apiKey:   opts.APIKey,
		maxEntry: opts.MaxEntryBytes,
		log:      opts.Logger,
	}
}

// WithAPIKey adds the api_key query parameter when key is set.
func WithAPIKey(rawURL, key string) (string, error) {
	if key == "" {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("api_key", key)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Download fetches rawURL, waiting on the rate limiter before each attempt.
// 429 and 5xx answers and transport failures are retried with backoff.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, error) {
	target, err := WithAPIKey(rawURL, c.apiKey)
	if err != nil {
		return nil, err
	}

	var data []byte
	err = downloadPolicy.Do(ctx, c.log.With("url", rawURL), "download", func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		data, err = c.get(ctx, target, rawURL)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// TransportError is a download that failed before any response arrived.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("download %s: %s", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Retryable is false once the caller's context is done.
func (e *TransportError) Retryable() bool {
	return !errors.Is(e.Err, context.Canceled) && !errors.Is(e.Err, context.DeadlineExceeded)
}

// get performs one request. display is the URL without credentials.
func (c *Client) get(ctx context.Context, target, display string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{URL: display, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &StatusError{URL: display, StatusCode: resp.StatusCode, Body: string(body)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body %s: %w", display, err)
	}
	return data, nil
}

// SplitOpenFDA splits an openFDA drug-label download into one indented JSON
// record per result. Records without an "id" are passed with an empty id.
func SplitOpenFDA(data []byte, fn func(id string, record []byte) error) error {
	var payload struct {
		Meta    json.RawMessage   `json:"meta"`
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("decode openfda payload: %w", err)
	}

	for i, raw := range payload.Results {
		var head struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return fmt.Errorf("decode result %d: %w", i, err)
		}
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "    "); err != nil {
			return fmt.Errorf("indent result %d: %w", i, err)
		}
		if err := fn(head.ID, buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// Summary counts what FetchAll wrote.
type Summary struct {
	URLs    int `json:"urls"`
	Failed  int `json:"failed"`
	Members int `json:"members"`
	Records int `json:"records"`
	Skipped int `json:"skipped"`
}

// FetchAll downloads each URL (a ZIP), writes its JSON and XML members to
// dir and splits openFDA JSON members into <id>.json files. A failing URL is
// logged and skipped.
func (c *Client) FetchAll(ctx context.Context, urls []string, dir string) (Summary, error) {
	var sum Summary
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return sum, fmt.Errorf("create output dir: %w", err)
	}

	for _, u := range urls {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		sum.URLs++
		if err := c.fetchOne(ctx, u, dir, &sum); err != nil {
			sum.Failed++
			c.log.Error("fetch failed", "url", u, "error", err)
			continue
		}
		c.log.Info("fetched", "url", u, "members", sum.Members, "records", sum.Records)
	}
	return sum, nil
}

func (c *Client) fetchOne(ctx context.Context, u, dir string, sum *Summary) error {
	data, err := c.Download(ctx, u)
	if err != nil {
		return err
	}

	opts := []archive.Option{archive.WithExtensions(".json", ".xml")}
	if c.maxEntry > 0 {
		opts = append(opts, archive.WithMaxEntryBytes(c.maxEntry))
	}

	return archive.Walk(bytes.NewReader(data), int64(len(data)), func(e archive.Entry) error {
		name := path.Base(e.Name)
		if err := os.WriteFile(filepath.Join(dir, name), e.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		sum.Members++

		if !strings.EqualFold(path.Ext(name), ".json") {
			return nil
		}
		return SplitOpenFDA(e.Data, func(id string, record []byte) error {
			if !safeName(id) {
				sum.Skipped++
				c.log.Warn("skipping record with unusable id", "member", e.Name, "id", id)
				return nil
			}
			if err := os.WriteFile(filepath.Join(dir, id+".json"), record, 0o644); err != nil {
				return fmt.Errorf("write record %s: %w", id, err)
			}
			sum.Records++
			return nil
		})
	}, opts...)
}

func safeName(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}
