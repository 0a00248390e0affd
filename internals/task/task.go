package task

import "time"

// Task is a goal-directed unit of work composed of ordered steps. The durable
// store holds the authoritative copy; any cached copy is derived and may be
// stale. Version increments on every mutation and is the optimistic
// concurrency guard for all writes.
type Task struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	OrganizationID string         `json:"organization_id"`
	Goal           string         `json:"goal"`
	Status         Status         `json:"status"`
	Steps          []Step         `json:"steps"`
	Findings       []Finding      `json:"accumulated_findings"`
	ParentTaskID   string         `json:"parent_task_id,omitempty"`
	TreeID         string         `json:"tree_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Version        int64          `json:"version"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Step is one unit of execution within a Task, bound to an agent_type
// executor. Its status only advances through the state machine.
type Step struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	AgentType    string         `json:"agent_type"`
	Status       StepStatus     `json:"status"`
	Inputs       map[string]any `json:"inputs,omitempty"`
	Outputs      map[string]any `json:"outputs,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	RetryCount   int            `json:"retry_count"`
}

// Finding is an accumulated observation produced during execution.
// Findings are append-only within a task's lifetime.
type Finding struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// StepByID returns a pointer into t.Steps, or nil when absent.
func (t *Task) StepByID(stepID string) *Step {
	for i := range t.Steps {
		if t.Steps[i].ID == stepID {
			return &t.Steps[i]
		}
	}
	return nil
}

// AllStepsTerminal reports whether every step reached done, failed or skipped.
// False for a task with no steps.
func (t *Task) AllStepsTerminal() bool {
	if len(t.Steps) == 0 {
		return false
	}
	for i := range t.Steps {
		if !t.Steps[i].Status.IsTerminal() {
			return false
		}
	}
	return true
}

// HasFailedStep reports whether any step ended in failed.
func (t *Task) HasFailedStep() bool {
	for i := range t.Steps {
		if t.Steps[i].Status == StepStatusFailed {
			return true
		}
	}
	return false
}

// StepReady reports whether every dependency of the step reached done or
// skipped. Steps with no dependencies are always ready.
func (t *Task) StepReady(step *Step) bool {
	for _, dep := range step.Dependencies {
		other := t.StepByID(dep)
		if other == nil {
			return false
		}
		if other.Status != StepStatusDone && other.Status != StepStatusSkipped {
			return false
		}
	}
	return true
}

// NextReadyStep returns the first pending step whose dependencies are all
// satisfied, in declaration order. Nil when nothing is eligible.
func (t *Task) NextReadyStep() *Step {
	for i := range t.Steps {
		step := &t.Steps[i]
		if step.Status != StepStatusPending {
			continue
		}
		if t.StepReady(step) {
			return step
		}
	}
	return nil
}

// Clone deep-copies the task so cached copies never alias store state.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	out := *t
	out.Steps = make([]Step, len(t.Steps))
	for i, step := range t.Steps {
		out.Steps[i] = step
		out.Steps[i].Inputs = cloneMap(step.Inputs)
		out.Steps[i].Outputs = cloneMap(step.Outputs)
		out.Steps[i].Dependencies = append([]string(nil), step.Dependencies...)
	}
	out.Findings = make([]Finding, len(t.Findings))
	for i, f := range t.Findings {
		out.Findings[i] = f
		out.Findings[i].Payload = cloneMap(f.Payload)
	}
	out.Metadata = cloneMap(t.Metadata)
	return &out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
