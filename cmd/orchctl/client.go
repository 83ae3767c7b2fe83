package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	orchhttp "github.com/fyrsmithlabs/orchestratord/internal/http"
	"github.com/fyrsmithlabs/orchestratord/internal/pipeline"
)

// client talks to the orchestratord HTTP API.
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Runs execute one container per task, so allow for slow pipelines.
		http: &http.Client{Timeout: 5 * time.Minute},
	}
}

// run submits req and returns the decoded response and the run id header.
// Run failures come back as a Response with Error set, not as an error.
func (c *client) run(ctx context.Context, req orchhttp.RunRequest) (pipeline.Response, string, error) {
	var resp pipeline.Response

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return resp, "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/api/v1/runs"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqJSON))
	if err != nil {
		return resp, "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return resp, "", fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer httpResp.Body.Close()

	// 400s carry {"error": ...} too.
	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusBadRequest {
		return resp, "", statusError(httpResp)
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return resp, "", fmt.Errorf("failed to decode response: %w", err)
	}
	if httpResp.StatusCode == http.StatusBadRequest && resp.Error == "" {
		resp.Error = "bad request"
	}
	return resp, httpResp.Header.Get(orchhttp.HeaderRunID), nil
}

func (c *client) tasks(ctx context.Context) (orchhttp.TasksResponse, error) {
	var resp orchhttp.TasksResponse
	err := c.getJSON(ctx, "/api/v1/tasks", 30*time.Second, &resp)
	return resp, err
}

func (c *client) health(ctx context.Context) (orchhttp.HealthResponse, error) {
	var resp orchhttp.HealthResponse
	err := c.getJSON(ctx, "/health", 5*time.Second, &resp)
	return resp, err
}

func (c *client) getJSON(ctx context.Context, path string, timeout time.Duration, v any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := c.baseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return statusError(httpResp)
	}
	if err := json.NewDecoder(httpResp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if readErr != nil {
		return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
	}
	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
