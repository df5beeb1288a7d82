package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"docket/internal/api"
)

// apiClient is a thin HTTP client for the daemon status API.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(addr, token string) *apiClient {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &apiClient{
		baseURL: strings.TrimRight(base, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) Status() (api.StatusResponse, error) {
	var out api.StatusResponse
	err := c.do(http.MethodGet, "/api/status", nil, &out)
	return out, err
}

func (c *apiClient) Health() (api.HealthResponse, error) {
	var out api.HealthResponse
	err := c.do(http.MethodGet, "/api/health", nil, &out)
	return out, err
}

func (c *apiClient) Submit(payload api.SubmitPayload) (api.JobView, error) {
	var out api.JobResponse
	err := c.do(http.MethodPost, "/api/jobs", payload, &out)
	return out.Job, err
}

func (c *apiClient) ListJobs(statuses []string) ([]api.JobView, error) {
	path := "/api/jobs"
	if len(statuses) > 0 {
		values := url.Values{}
		for _, status := range statuses {
			values.Add("status", status)
		}
		path += "?" + values.Encode()
	}
	var out api.JobListResponse
	err := c.do(http.MethodGet, path, nil, &out)
	return out.Jobs, err
}

func (c *apiClient) Snapshot(jobID string) (api.SnapshotView, error) {
	var out api.SnapshotResponse
	err := c.do(http.MethodGet, "/api/jobs/"+url.PathEscape(jobID), nil, &out)
	return out.Snapshot, err
}

func (c *apiClient) History(jobID string) ([]api.AuditEventView, error) {
	var out api.HistoryResponse
	err := c.do(http.MethodGet, "/api/jobs/"+url.PathEscape(jobID)+"/history", nil, &out)
	return out.Events, err
}

func (c *apiClient) Cancel(jobID string) (api.JobView, error) {
	var out api.JobResponse
	err := c.do(http.MethodPost, "/api/jobs/"+url.PathEscape(jobID)+"/cancel", nil, &out)
	return out.Job, err
}

func (c *apiClient) Metrics(window string) (api.MetricsResponse, error) {
	path := "/api/metrics"
	if window != "" {
		path += "?window=" + url.QueryEscape(window)
	}
	var out api.MetricsResponse
	err := c.do(http.MethodGet, path, nil, &out)
	return out, err
}

func (c *apiClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return wrapDialError(err, c.baseURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeAPIError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
		return fmt.Errorf("daemon: %s", payload.Error)
	}
	return fmt.Errorf("daemon returned %s", resp.Status)
}
