// Package aigateway calls the external similarity-scoring service.
package aigateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/pliu/simquery/internal/models"
)

const maxResponseBytes = 64 << 10

var (
	ErrNotConfigured     = errors.New("ai gateway: base url not configured")
	ErrMalformedResponse = errors.New("ai gateway: malformed response")
)

// StatusError is returned when the gateway answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ai gateway: status %d: %s", e.StatusCode, e.Body)
}

type Options struct {
	BaseURL string
	// Timeout bounds each attempt, including reading the body.
	Timeout time.Duration
	// TotalTimeout bounds a whole Score call across all attempts and
	// backoff waits. Defaults to Timeout * (MaxRetries + 1).
	TotalTimeout time.Duration
	MaxRetries   uint64
	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration
}

type Client struct {
	httpClient *http.Client
	opts       Options
}

func New(httpClient *http.Client, opts Options) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.TotalTimeout <= 0 {
		opts.TotalTimeout = opts.Timeout * time.Duration(opts.MaxRetries+1)
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 200 * time.Millisecond
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Client{httpClient: httpClient, opts: opts}
}

type scoreRequest struct {
	Prompt string `json:"prompt"`
}

type scoreResponse struct {
	SimilarityScore json.RawMessage `json:"similarity_score"`
}

// Score posts the prompt to /get-similarity and returns the score as text.
// Transport errors and 5xx responses are retried within TotalTimeout;
// everything else fails on the first attempt.
func (c *Client) Score(ctx context.Context, prompt string) (string, error) {
	if c.opts.BaseURL == "" {
		return "", ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.TotalTimeout)
	defer cancel()

	body, err := json.Marshal(scoreRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("ai gateway: marshaling request: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.opts.InitialBackoff
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, c.opts.MaxRetries), ctx)

	var score string
	err = backoff.Retry(func() error {
		s, err := c.attempt(ctx, body)
		if err != nil {
			return err
		}
		score = s
		return nil
	}, retry)
	if err != nil {
		return "", err
	}
	return score, nil
}

func (c *Client) attempt(ctx context.Context, body []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.opts.BaseURL+"/get-similarity", bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("ai gateway: creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ai gateway: sending request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return "", fmt.Errorf("ai gateway: reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 512)}
		if resp.StatusCode >= 500 {
			return "", statusErr
		}
		return "", backoff.Permanent(statusErr)
	}
	if len(raw) > maxResponseBytes {
		return "", backoff.Permanent(fmt.Errorf("%w: body exceeds %d bytes", ErrMalformedResponse, maxResponseBytes))
	}

	score, err := parseScore(raw)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	return score, nil
}

// parseScore accepts the score as a JSON string or number. Numbers keep
// their literal text so no precision is lost.
func parseScore(raw []byte) (string, error) {
	var wire scoreResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	field := bytes.TrimSpace(wire.SimilarityScore)
	if len(field) == 0 || bytes.Equal(field, []byte("null")) {
		return "", fmt.Errorf("%w: missing similarity_score", ErrMalformedResponse)
	}

	if field[0] == '"' {
		var s string
		if err := json.Unmarshal(field, &s); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if strings.TrimSpace(s) == "" {
			return "", fmt.Errorf("%w: empty similarity_score", ErrMalformedResponse)
		}
		if utf8.RuneCountInString(s) > models.MaxMessageLength {
			return "", fmt.Errorf("%w: similarity_score longer than %d characters", ErrMalformedResponse, models.MaxMessageLength)
		}
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(field, &n); err != nil {
		return "", fmt.Errorf("%w: similarity_score is not a string or number", ErrMalformedResponse)
	}
	if len(n) > models.MaxMessageLength {
		return "", fmt.Errorf("%w: similarity_score longer than %d characters", ErrMalformedResponse, models.MaxMessageLength)
	}
	return n.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
