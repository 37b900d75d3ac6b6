// Package detector talks to the external AI-audio detection service.
package detector

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

	"github.com/stagepass/audioscan/internal/domain/scans"
)

const (
	DefaultTimeout = 30 * time.Second
	UserAgent      = "audioscan/1.0"

	maxErrorBody = 512
)

// StatusError is returned for non-2xx detector responses.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("detector %s: status %d: %s", e.Op, e.Status, e.Body)
}

// Retryable is false for credential problems; retrying will not help.
func (e *StatusError) Retryable() bool {
	return e.Status != http.StatusUnauthorized && e.Status != http.StatusForbidden
}

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Ping checks the detector answers at all. Any response below 500 counts,
// since the base URL itself is not an API route.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.BaseURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("detector ping: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return &StatusError{Op: "ping", Status: resp.StatusCode}
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP == nil {
		return &http.Client{Timeout: DefaultTimeout}
	}
	return c.HTTP
}

type submitRequest struct {
	AudioURL string        `json:"audio_url"`
	Metadata trackMetadata `json:"metadata"`
}

type trackMetadata struct {
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
	ISRC   string `json:"isrc,omitempty"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

// Submit implements scans.Gateway.
func (c *Client) Submit(ctx context.Context, audioURL string, meta scans.TrackMetadata) (string, error) {
	body, err := json.Marshal(submitRequest{
		AudioURL: audioURL,
		Metadata: trackMetadata{Title: meta.Title, Artist: meta.Artist, ISRC: meta.ISRC},
	})
	if err != nil {
		return "", fmt.Errorf("encoding submit request: %w", err)
	}

	raw, err := c.do(ctx, "submit", http.MethodPost, c.BaseURL+"/analyze", body)
	if err != nil {
		return "", err
	}
	var out submitResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decoding submit response: %w", err)
	}
	if strings.TrimSpace(out.JobID) == "" {
		return "", fmt.Errorf("detector submit: response carried no job_id")
	}
	return out.JobID, nil
}

// FetchResult implements scans.Gateway. The raw body is returned verbatim
// for auditing next to the decoded result.
func (c *Client) FetchResult(ctx context.Context, jobID string) (scans.AnalysisResult, json.RawMessage, error) {
	var res scans.AnalysisResult
	raw, err := c.do(ctx, "fetch", http.MethodGet, c.BaseURL+"/analyze/"+url.PathEscape(jobID), nil)
	if err != nil {
		return res, nil, err
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return res, nil, fmt.Errorf("decoding detector result: %w", err)
	}
	if !res.Status.Valid() {
		return res, nil, fmt.Errorf("detector returned unknown status %q", res.Status)
	}
	return res, json.RawMessage(raw), nil
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte) ([]byte, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("detector %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody] + "..."
		}
		return nil, &StatusError{Op: op, Status: resp.StatusCode, Body: msg}
	}
	return raw, nil
}
