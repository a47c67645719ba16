package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"agenthub/pkg/api"
)

// HubClient handles API calls to the agenthub hub.
type HubClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewHubClient creates a new client with the given base URL.
func NewHubClient(baseURL string) *HubClient {
	return &HubClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

func (c *HubClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// SubmitTask sends POST /task.
func (c *HubClient) SubmitTask(text string) (*api.CreateTaskResponse, error) {
	var result api.CreateTaskResponse
	if err := c.do(http.MethodPost, "/task", api.CreateTaskRequest{Text: text}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTask sends GET /task/{id}.
func (c *HubClient) GetTask(taskID int64) (*api.GetTaskResponse, error) {
	var result api.GetTaskResponse
	if err := c.do(http.MethodGet, fmt.Sprintf("/task/%d", taskID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListTasks sends GET /tasks.
func (c *HubClient) ListTasks(status, agentID string, limit int) (*api.ListTasksResponse, error) {
	path := fmt.Sprintf("/tasks?limit=%d", limit)
	if status != "" {
		path += "&status=" + status
	}
	if agentID != "" {
		path += "&agent_id=" + agentID
	}
	var result api.ListTasksResponse
	if err := c.do(http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelTask sends POST /admin/tasks/{id}/cancel.
func (c *HubClient) CancelTask(taskID int64) (*api.CancelTaskResponse, error) {
	var result api.CancelTaskResponse
	if err := c.do(http.MethodPost, fmt.Sprintf("/admin/tasks/%d/cancel", taskID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AgentsLive sends GET /agents/live.
func (c *HubClient) AgentsLive(limitPerAgent int) (*api.AgentsLiveResponse, error) {
	var result api.AgentsLiveResponse
	if err := c.do(http.MethodGet, fmt.Sprintf("/agents/live?limit_per_agent=%d", limitPerAgent), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetLogs sends GET /logs.
func (c *HubClient) GetLogs(limit int) (*api.GetLogsResponse, error) {
	var result api.GetLogsResponse
	if err := c.do(http.MethodGet, fmt.Sprintf("/logs?limit=%d", limit), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
