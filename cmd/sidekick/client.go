package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// APIClient provides HTTP client functionality to communicate with a running
// sidekick daemon.
type APIClient struct {
	baseURL string
	client  *http.Client
}

// NewAPIClient creates a new API client
func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if baseURL == "" {
		baseURL = "http://localhost:8850/api"
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *APIClient) IsReachable() bool {
	resp, err := c.client.Get(c.baseURL + "/sidecar/status")
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode != http.StatusNotFound
}

// StartSidecar starts the sidecar via API
func (c *APIClient) StartSidecar() error {
	return c.post("/sidecar/start")
}

// StopSidecar stops the sidecar via API
func (c *APIClient) StopSidecar() error {
	return c.post("/sidecar/stop")
}

// RestartSidecar restarts the sidecar via API
func (c *APIClient) RestartSidecar() error {
	return c.post("/sidecar/restart")
}

// GetStatus returns the sidecar status via API
func (c *APIClient) GetStatus() (map[string]interface{}, error) {
	var result map[string]interface{}
	if err := c.get("/sidecar/status", &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetLogs returns the last n lines of one captured stream via API
func (c *APIClient) GetLogs(stream string, lines int) ([]string, error) {
	path := "/sidecar/logs?stream=" + url.QueryEscape(stream) + "&lines=" + strconv.Itoa(lines)
	var result struct {
		Stream string   `json:"stream"`
		Lines  []string `json:"lines"`
	}
	if err := c.get(path, &result); err != nil {
		return nil, err
	}
	return result.Lines, nil
}

// ListLogFiles returns all captured log files via API
func (c *APIClient) ListLogFiles() ([]map[string]interface{}, error) {
	var result []map[string]interface{}
	if err := c.get("/sidecar/logfiles", &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ClearLogs truncates the active logs and removes archives via API
func (c *APIClient) ClearLogs() error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+"/sidecar/logs", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return checkResponse(resp)
}

func (c *APIClient) post(path string) error {
	resp, err := c.client.Post(c.baseURL+path, "application/json", nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return checkResponse(resp)
}

func (c *APIClient) get(path string, out any) error {
	resp, err := c.client.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if err := checkResponse(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	var errorResp struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
		return fmt.Errorf("API error: status %d", resp.StatusCode)
	}
	return fmt.Errorf("API error: %s", errorResp.Error)
}
