package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hatchery-io/hatchery/internals/coordinator"
	"github.com/hatchery-io/hatchery/internals/task"
	"github.com/hatchery-io/hatchery/internals/timeouts"
)

// HTTPExecutor hands a step to an external agent runner over HTTP. The runner
// routes on agent_type and returns outputs plus findings. Network failures
// and 5xx responses are retryable; a 4xx means the request itself is bad and
// retrying cannot help.
type HTTPExecutor struct {
	baseURL string
	client  *http.Client
}

func NewHTTPExecutor(baseURL string) *HTTPExecutor {
	return &HTTPExecutor{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeouts.AgentExecution},
	}
}

func (e *HTTPExecutor) Execute(ctx context.Context, req coordinator.ExecRequest) (coordinator.StepResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return coordinator.StepResult{}, &task.ExecutionError{Err: fmt.Errorf("marshal exec request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return coordinator.StepResult{}, &task.ExecutionError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return coordinator.StepResult{}, &task.ExecutionError{Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return coordinator.StepResult{}, &task.ExecutionError{Retryable: true, Err: fmt.Errorf("agent runner returned %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return coordinator.StepResult{}, &task.ExecutionError{Err: fmt.Errorf("agent runner rejected request with %d", resp.StatusCode)}
	}

	var result coordinator.StepResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return coordinator.StepResult{}, &task.ExecutionError{Err: fmt.Errorf("decode agent response: %w", err)}
	}
	return result, nil
}
