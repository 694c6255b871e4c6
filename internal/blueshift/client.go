// Package blueshift is the typed REST client for the scoring service. It
// enforces the exact wire contracts and nothing else: request shaping,
// response parsing, and the error taxonomy mapping. It never signs and
// never retries a submission.
package blueshift

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"shiftbot/internal/config"
	"shiftbot/internal/fault"
	"shiftbot/internal/logging"
)

// ErrChallengeNotFound is returned by GetChallenge for unknown slugs.
var ErrChallengeNotFound = errors.New("challenge not found")

// Client talks to the scoring service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    int
	backoff    time.Duration
	userAgent  string
	log        *zap.SugaredLogger
}

// New builds a client from configuration. The base URL is expected to be
// normalized (no trailing slash); config.Load guarantees that.
func New(cfg *config.Config) *Client {
	return &Client{
		baseURL:    cfg.API.BaseURL,
		httpClient: &http.Client{Timeout: cfg.GetAPITimeout()},
		retries:    cfg.API.Retries,
		backoff:    time.Second,
		userAgent:  cfg.Name + "/1.0",
		log:        logging.L("blueshift"),
	}
}

// ListChallenges fetches the full challenge catalog.
func (c *Client) ListChallenges(ctx context.Context) ([]Challenge, error) {
	resp, err := c.get(ctx, "/v1/challenges")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.serviceError(resp)
	}

	var challenges []Challenge
	if err := json.NewDecoder(resp.Body).Decode(&challenges); err != nil {
		return nil, fmt.Errorf("decoding challenge list: %w", err)
	}
	return challenges, nil
}

// GetChallenge fetches a single challenge by slug. Unknown slugs map the
// service's 404 to ErrChallengeNotFound.
func (c *Client) GetChallenge(ctx context.Context, slug string) (*Challenge, error) {
	resp, err := c.get(ctx, "/v1/challenges/"+url.PathEscape(slug))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var ch Challenge
		if err := json.NewDecoder(resp.Body).Decode(&ch); err != nil {
			return nil, fmt.Errorf("decoding challenge %s: %w", slug, err)
		}
		return &ch, nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrChallengeNotFound, slug)
	default:
		return nil, c.serviceError(resp)
	}
}

// GetProgress fetches the progress record for an address. A 404 means the
// address has no attempts yet and yields an empty record, not an error.
func (c *Client) GetProgress(ctx context.Context, address string) ([]ProgressEntry, error) {
	resp, err := c.get(ctx, "/v1/progress?address="+url.QueryEscape(address))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var entries []ProgressEntry
		if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
			return nil, fmt.Errorf("decoding progress: %w", err)
		}
		return entries, nil
	case http.StatusNotFound:
		return []ProgressEntry{}, nil
	default:
		return nil, c.serviceError(resp)
	}
}

// SubmitClient submits a client-kind attempt: a base64 transaction already
// signed by address. Sent exactly once; never retried.
func (c *Client) SubmitClient(ctx context.Context, slug, txBase64, address string) (*SubmissionResult, error) {
	body, err := json.Marshal(map[string]string{
		"transaction": txBase64,
		"address":     address,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding client submission: %w", err)
	}

	path := "/v1/challenges/client/" + url.PathEscape(slug)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building client submission: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.log.Infow("submitting client attempt", "slug", slug, "address", address)
	return c.doSubmission(req, "POST "+path)
}

// SubmitProgram submits a program-kind attempt: the compiled binary, the
// wallet's base58 signature over exactly those bytes, and the address.
// Sent exactly once; never retried.
func (c *Client) SubmitProgram(ctx context.Context, slug string, program []byte, signature, address string) (*SubmissionResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("program", slug+"-submission.so")
	if err != nil {
		return nil, fmt.Errorf("building program part: %w", err)
	}
	if _, err := part.Write(program); err != nil {
		return nil, fmt.Errorf("writing program part: %w", err)
	}
	if err := mw.WriteField("signature", signature); err != nil {
		return nil, fmt.Errorf("writing signature field: %w", err)
	}
	if err := mw.WriteField("address", address); err != nil {
		return nil, fmt.Errorf("writing address field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing multipart body: %w", err)
	}

	path := "/v1/challenges/program/" + url.PathEscape(slug)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("building program submission: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	c.log.Infow("submitting program attempt",
		"slug", slug, "address", address, "binary_bytes", len(program))
	return c.doSubmission(req, "POST "+path)
}

// get performs an idempotent GET with bounded transport retries. Only
// transport failures are retried; any HTTP status is a final answer.
func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	op := "GET " + path

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			wait := c.backoff * time.Duration(1<<uint(attempt-1))
			c.log.Debugw("retrying after transport failure", "op", op, "attempt", attempt, "wait", wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, fault.Transport(op, ctx.Err())
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, fault.Transport(op, lastErr)
}

// doSubmission sends a prepared POST exactly once and maps the response.
func (c *Client) doSubmission(req *http.Request, op string) (*SubmissionResult, error) {
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fault.Transport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.serviceError(resp)
	}

	var wire submissionWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decoding submission response: %w", err)
	}

	result := newSubmissionResult(wire)
	c.log.Infow("submission judged", "op", op, "success", result.Success)
	return result, nil
}

// serviceError maps a non-200 status with an {"error","message"} body to
// the submission error type. Surfaced verbatim, never retried.
func (c *Client) serviceError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var wire struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &wire); err != nil || (wire.Error == "" && wire.Message == "") {
		return &fault.SubmissionError{
			Kind:    http.StatusText(resp.StatusCode),
			Message: string(bytes.TrimSpace(body)),
		}
	}
	if wire.Error == "" {
		wire.Error = http.StatusText(resp.StatusCode)
	}
	return &fault.SubmissionError{Kind: wire.Error, Message: wire.Message}
}
