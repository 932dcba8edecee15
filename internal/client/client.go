// Package client is the terminal-side HTTP client for the tracker
// backend. It implements the engine collaborator ports over the REST
// API so the session engine never talks to the network directly.
package client

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

	"github.com/prodline/tracker/internal/engine"
	"github.com/prodline/tracker/internal/models"
	"github.com/prodline/tracker/internal/storage"
)

// Client talks to the tracker backend REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var (
	_ engine.Submitter  = (*Client)(nil)
	_ engine.LockClient = (*Client)(nil)
)

// New creates a client for the backend at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// apiError mirrors the backend's structured error body.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != "" {
		return &apiErr
	}
	return fmt.Errorf("unexpected status %d", resp.StatusCode)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp, decodeError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp, fmt.Errorf("decoding response: %w", err)
		}
	}
	return resp, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return resp, nil
}

// ValidateBuild looks up a build number on the backend. Unknown builds
// map to models.ErrBuildNotFound so login treats server and local
// rejection the same way.
func (c *Client) ValidateBuild(ctx context.Context, buildNumber string) (*models.Build, error) {
	var build models.Build
	resp, err := c.getJSON(ctx, "/api/builds/validate/"+buildNumber, &build)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, models.ErrBuildNotFound
		}
		return nil, err
	}
	return &build, nil
}

// ListBuilds returns the backend build catalog.
func (c *Client) ListBuilds(ctx context.Context) ([]models.Build, error) {
	var builds []models.Build
	if _, err := c.getJSON(ctx, "/api/builds", &builds); err != nil {
		return nil, err
	}
	return builds, nil
}

// Submit sends a finalized session to the backend. Implements
// engine.Submitter.
func (c *Client) Submit(ctx context.Context, sub *models.SessionSubmission) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/sessions", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return decodeError(resp)
	}
	return nil
}

// BuildStats fetches the aggregated statistics for one build.
func (c *Client) BuildStats(ctx context.Context, buildNumber string) (*storage.BuildStats, error) {
	var stats storage.BuildStats
	if _, err := c.getJSON(ctx, "/api/sessions/stats?buildNumber="+buildNumber, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Acquire takes the backend session lock for loginID. A 409 means
// another terminal holds it; that is a rejection, not an error.
// Implements engine.LockClient. A zero ttl defers to the
// server-configured lifetime.
func (c *Client) Acquire(ctx context.Context, loginID string, ttl time.Duration) (bool, error) {
	payload := map[string]interface{}{"loginId": loginID}
	if ttl > 0 {
		payload["ttlMinutes"] = int(ttl.Minutes())
	}
	resp, err := c.postJSON(ctx, "/api/session-locks/acquire", payload)
	if err != nil {
		return false, err
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return true, nil
	case http.StatusConflict:
		return false, nil
	default:
		return false, fmt.Errorf("acquiring lock: unexpected status %d", resp.StatusCode)
	}
}

// Release frees the backend session lock for loginID. Implements
// engine.LockClient.
func (c *Client) Release(ctx context.Context, loginID string) error {
	resp, err := c.postJSON(ctx, "/api/session-locks/release", map[string]string{"loginId": loginID})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("releasing lock: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Health checks that the backend is reachable.
func (c *Client) Health(ctx context.Context) error {
	var status struct {
		Status string `json:"status"`
	}
	if _, err := c.getJSON(ctx, "/api/health", &status); err != nil {
		return err
	}
	if status.Status != "ok" {
		return errors.New("backend reported unhealthy status")
	}
	return nil
}
