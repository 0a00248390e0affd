package task

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseStatusRejectsUnknown(t *testing.T) {
	if _, err := ParseStatus("pending"); err != nil {
		t.Fatalf("ParseStatus(PENDING): %v", err)
	}
	_, err := ParseStatus("sleeping")
	if err == nil {
		t.Fatal("expected error for unknown status")
	}
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

func TestParseStepStatusRejectsUnknown(t *testing.T) {
	for _, valid := range []string{"pending", "running", "done", "failed", "skipped"} {
		if _, err := ParseStepStatus(valid); err != nil {
			t.Fatalf("ParseStepStatus(%s): %v", valid, err)
		}
	}
	if _, err := ParseStepStatus("DONE"); err == nil {
		t.Fatal("expected error for unknown casing")
	}
}

func TestStatusIsTerminal(t *testing.T) {
	terminal := map[Status]bool{
		StatusPending:    false,
		StatusExecuting:  false,
		StatusCheckpoint: false,
		StatusCompleted:  true,
		StatusFailed:     true,
		StatusCancelled:  true,
	}
	for status, want := range terminal {
		if got := status.IsTerminal(); got != want {
			t.Fatalf("%s.IsTerminal() = %v, want %v", status, got, want)
		}
	}
}

func TestTaskJSONRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	original := Task{
		ID:     "t1",
		UserID: "u1",
		Goal:   "do the thing",
		Status: StatusExecuting,
		Steps: []Step{
			{ID: "s1", Name: "first", AgentType: "research", Status: StepStatusDone, Outputs: map[string]any{"k": "v"}},
			{ID: "s2", Name: "second", Status: StepStatusPending, Dependencies: []string{"s1"}},
		},
		Findings:  []Finding{{ID: "f1", Type: "note", Payload: map[string]any{"text": "hi"}}},
		Version:   3,
		CreatedAt: now,
		UpdatedAt: now,
	}

	raw, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Task
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Status != StatusExecuting {
		t.Fatalf("status = %s", decoded.Status)
	}
	if len(decoded.Steps) != 2 || decoded.Steps[0].Status != StepStatusDone {
		t.Fatalf("steps did not survive: %+v", decoded.Steps)
	}
	if len(decoded.Findings) != 1 || decoded.Findings[0].Type != "note" {
		t.Fatalf("findings did not survive: %+v", decoded.Findings)
	}
}

func TestFindingsWireName(t *testing.T) {
	raw, err := json.Marshal(Task{Findings: []Finding{{ID: "f1"}}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := payload["accumulated_findings"]; !ok {
		t.Fatalf("expected accumulated_findings key, got %s", raw)
	}
}

func TestStepReadyAndNextReadyStep(t *testing.T) {
	tk := &Task{Steps: []Step{
		{ID: "a", Status: StepStatusDone},
		{ID: "b", Status: StepStatusPending, Dependencies: []string{"a"}},
		{ID: "c", Status: StepStatusPending, Dependencies: []string{"b"}},
	}}

	if !tk.StepReady(&tk.Steps[1]) {
		t.Fatal("step b should be ready, dependency a is done")
	}
	if tk.StepReady(&tk.Steps[2]) {
		t.Fatal("step c should not be ready, b is pending")
	}

	next := tk.NextReadyStep()
	if next == nil || next.ID != "b" {
		t.Fatalf("NextReadyStep = %+v, want b", next)
	}
}

func TestSkippedDependencySatisfies(t *testing.T) {
	tk := &Task{Steps: []Step{
		{ID: "a", Status: StepStatusSkipped},
		{ID: "b", Status: StepStatusPending, Dependencies: []string{"a"}},
	}}
	if !tk.StepReady(&tk.Steps[1]) {
		t.Fatal("skipped dependency should satisfy readiness")
	}
}

func TestAllStepsTerminal(t *testing.T) {
	if (&Task{}).AllStepsTerminal() {
		t.Fatal("task with no steps is never step-terminal")
	}
	tk := &Task{Steps: []Step{
		{ID: "a", Status: StepStatusDone},
		{ID: "b", Status: StepStatusFailed},
		{ID: "c", Status: StepStatusSkipped},
	}}
	if !tk.AllStepsTerminal() {
		t.Fatal("all steps terminal")
	}
	tk.Steps[1].Status = StepStatusRunning
	if tk.AllStepsTerminal() {
		t.Fatal("running step should block terminality")
	}
}

func TestCloneIsDeep(t *testing.T) {
	original := &Task{
		ID:       "t1",
		Steps:    []Step{{ID: "s1", Inputs: map[string]any{"k": "v"}}},
		Metadata: map[string]any{"m": 1},
	}
	clone := original.Clone()
	clone.Steps[0].Inputs["k"] = "changed"
	clone.Metadata["m"] = 2

	if original.Steps[0].Inputs["k"] != "v" {
		t.Fatal("clone shares step inputs with original")
	}
	if original.Metadata["m"] != 1 {
		t.Fatal("clone shares metadata with original")
	}
}

func TestClassifyError(t *testing.T) {
	retryable := ClassifyError(&ExecutionError{Retryable: true, Err: errors.New("boom")})
	if retryable.Kind != OutcomeRetryableFailure {
		t.Fatalf("kind = %v", retryable.Kind)
	}
	fatal := ClassifyError(&ExecutionError{Err: errors.New("boom")})
	if fatal.Kind != OutcomeFatalFailure {
		t.Fatalf("kind = %v", fatal.Kind)
	}
	plain := ClassifyError(errors.New("boom"))
	if plain.Kind != OutcomeFatalFailure {
		t.Fatalf("plain errors default to fatal, got %v", plain.Kind)
	}
}
