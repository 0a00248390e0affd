// Package sdk is the Go client for the hatchery daemon's HTTP API.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hatchery-io/hatchery/internals/env"
	"github.com/hatchery-io/hatchery/internals/schemas"
	"github.com/hatchery-io/hatchery/internals/task"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

var ErrShutdownUnsupported = errors.New("shutdown unsupported")

type ErrorResponse struct {
	Status  string              `json:"status"`
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" && e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("unexpected status: %d", e.StatusCode)
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewClient(opts ...Option) *Client {
	envs := env.Get()
	client := &Client{
		baseURL: strings.TrimRight(envs.BASE_URL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *Client) Version(ctx context.Context) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/version", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", responseError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

func (c *Client) Shutdown(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/shutdown", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrShutdownUnsupported
	}
	return responseError(resp)
}

func (c *Client) CreateTask(ctx context.Context, request schemas.TaskCreateRequest) (*schemas.TaskResponse, error) {
	return c.taskRequest(ctx, http.MethodPost, "/tasks", request)
}

func (c *Client) GetTask(ctx context.Context, taskID string) (*schemas.TaskResponse, error) {
	return c.taskRequest(ctx, http.MethodGet, "/tasks/"+url.PathEscape(taskID), nil)
}

func (c *Client) CancelTask(ctx context.Context, taskID string) (*schemas.TaskResponse, error) {
	return c.taskRequest(ctx, http.MethodPost, "/tasks/"+url.PathEscape(taskID)+"/cancel", nil)
}

func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(taskID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return responseError(resp)
	}
	return nil
}

// ListTasks filters by user and optionally by status; limit <= 0 means the
// server default.
func (c *Client) ListTasks(ctx context.Context, userID string, status *task.Status, limit int) (*schemas.TaskListResponse, error) {
	query := url.Values{}
	if userID != "" {
		query.Set("user_id", userID)
	}
	if status != nil {
		query.Set("status", string(*status))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	resp, err := c.doRequest(ctx, http.MethodGet, "/tasks?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var payload schemas.TaskListResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *Client) TaskHistory(ctx context.Context, taskID string) (*schemas.TaskHistoryResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/tasks/"+url.PathEscape(taskID)+"/history", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var payload schemas.TaskHistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *Client) RegisterTrigger(ctx context.Context, request schemas.TriggerRegisterRequest) (*schemas.TriggerResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/triggers", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, responseError(resp)
	}

	var payload schemas.TriggerResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *Client) UnregisterTrigger(ctx context.Context, taskID string) (*schemas.TriggerDeleteResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodDelete, "/triggers/"+url.PathEscape(taskID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var payload schemas.TriggerDeleteResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *Client) UpdateTrigger(ctx context.Context, taskID string, request schemas.TriggerUpdateRequest) (*schemas.TriggerResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, http.MethodPatch, "/triggers/"+url.PathEscape(taskID), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var payload schemas.TriggerResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *Client) ListTriggers(ctx context.Context, organizationID string) (*schemas.TriggerListResponse, error) {
	query := url.Values{}
	query.Set("organization_id", organizationID)

	resp, err := c.doRequest(ctx, http.MethodGet, "/triggers?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var payload schemas.TriggerListResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *Client) TriggerHistory(ctx context.Context, taskID string, limit int) (*schemas.TriggerHistoryResponse, error) {
	path := "/triggers/" + url.PathEscape(taskID) + "/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var payload schemas.TriggerHistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *Client) IngestEvent(ctx context.Context, request schemas.EventIngestRequest) (*schemas.EventIngestResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/events", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, responseError(resp)
	}

	var payload schemas.EventIngestResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *Client) taskRequest(ctx context.Context, method, path string, request any) (*schemas.TaskResponse, error) {
	var body io.Reader
	if request != nil {
		encoded, err := json.Marshal(request)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
	}

	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, responseError(resp)
	}

	var payload schemas.TaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

func responseError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	var payload ErrorResponse
	if err := json.Unmarshal(body, &payload); err == nil {
		return &APIError{StatusCode: resp.StatusCode, Code: payload.Code, Message: payload.Message}
	}
	return fmt.Errorf("unexpected status: %s", resp.Status)
}
