package triggers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hatchery-io/hatchery/internals/events"
	"github.com/hatchery-io/hatchery/internals/task"
)

type memHistory struct {
	entries map[string][]json.RawMessage
	fail    bool
}

func newMemHistory() *memHistory {
	return &memHistory{entries: map[string][]json.RawMessage{}}
}

func (h *memHistory) AddTriggerExecution(ctx context.Context, taskID string, exec any, max int) error {
	if h.fail {
		return errors.New("history down")
	}
	raw, err := json.Marshal(exec)
	if err != nil {
		return err
	}
	ring := append([]json.RawMessage{raw}, h.entries[taskID]...)
	if len(ring) > max {
		ring = ring[:max]
	}
	h.entries[taskID] = ring
	return nil
}

func (h *memHistory) TriggerHistory(ctx context.Context, taskID string, limit int) ([]json.RawMessage, error) {
	ring := h.entries[taskID]
	if limit > 0 && len(ring) > limit {
		ring = ring[:limit]
	}
	return ring, nil
}

func registryForTest() *Registry {
	return NewRegistry(NewMemoryStore(), newMemHistory(), nil)
}

func webhookEvent(eventType, org string) events.Event {
	ev := events.New("stripe-webhook", eventType, nil)
	if org != "" {
		ev.Metadata = map[string]any{"organization_id": org}
	}
	return ev
}

func TestRegisterAndMatchWithinOrg(t *testing.T) {
	registry := registryForTest()
	ctx := context.Background()

	registered, err := registry.Register(ctx, Config{
		TaskID:         "t1",
		OrganizationID: "acme",
		EventPattern:   "external.webhook.*",
		Enabled:        true,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !registered {
		t.Fatal("expected registration")
	}

	matched, err := registry.FindMatchingTasks(ctx, webhookEvent("external.webhook.stripe", "acme"), "")
	if err != nil {
		t.Fatalf("FindMatchingTasks: %v", err)
	}
	if len(matched) != 1 || matched[0] != "t1" {
		t.Fatalf("matched = %v, want [t1]", matched)
	}

	other, err := registry.FindMatchingTasks(ctx, webhookEvent("external.webhook.stripe", "other-org"), "")
	if err != nil {
		t.Fatalf("FindMatchingTasks: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("cross-org matched = %v, want none", other)
	}
}

func TestUnregisterStopsMatching(t *testing.T) {
	registry := registryForTest()
	ctx := context.Background()

	if _, err := registry.Register(ctx, Config{TaskID: "t1", OrganizationID: "acme", EventPattern: "external.webhook.*", Enabled: true}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	removed, err := registry.Unregister(ctx, "t1")
	if err != nil || !removed {
		t.Fatalf("Unregister = %v, %v", removed, err)
	}

	matched, err := registry.FindMatchingTasks(ctx, webhookEvent("external.webhook.stripe", "acme"), "")
	if err != nil {
		t.Fatalf("FindMatchingTasks: %v", err)
	}
	if len(matched) != 0 {
		t.Fatalf("matched after unregister = %v", matched)
	}

	// Unregistering again stays a success.
	removed, err = registry.Unregister(ctx, "t1")
	if err != nil || !removed {
		t.Fatalf("repeat Unregister = %v, %v", removed, err)
	}
}

func TestRegisterWithoutPatternOrDisabled(t *testing.T) {
	registry := registryForTest()
	ctx := context.Background()

	registered, err := registry.Register(ctx, Config{TaskID: "t1", OrganizationID: "acme", Enabled: true})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if registered {
		t.Fatal("empty pattern must not register")
	}

	registered, err = registry.Register(ctx, Config{TaskID: "t1", OrganizationID: "acme", EventPattern: "a.b", Enabled: false})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if registered {
		t.Fatal("disabled config must not register")
	}

	matched, err := registry.FindMatchingTasks(ctx, webhookEvent("a.b", "acme"), "")
	if err != nil {
		t.Fatalf("FindMatchingTasks: %v", err)
	}
	if len(matched) != 0 {
		t.Fatalf("matched = %v", matched)
	}
}

func TestRegisterRejectsMalformedPattern(t *testing.T) {
	registry := registryForTest()

	_, err := registry.Register(context.Background(), Config{TaskID: "t1", OrganizationID: "acme", EventPattern: "a.[", Enabled: true})
	var vErr *task.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestUpdateRekeysPattern(t *testing.T) {
	registry := registryForTest()
	ctx := context.Background()

	if _, err := registry.Register(ctx, Config{TaskID: "t1", OrganizationID: "acme", EventPattern: "alerts.*", Enabled: true}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	pattern := "billing.*"
	updated, err := registry.Update(ctx, "t1", Updates{EventPattern: &pattern})
	if err != nil || !updated {
		t.Fatalf("Update = %v, %v", updated, err)
	}

	if matched, _ := registry.FindMatchingTasks(ctx, webhookEvent("alerts.cpu", "acme"), ""); len(matched) != 0 {
		t.Fatalf("old pattern still matches: %v", matched)
	}
	if matched, _ := registry.FindMatchingTasks(ctx, webhookEvent("billing.invoice", "acme"), ""); len(matched) != 1 {
		t.Fatalf("new pattern does not match: %v", matched)
	}
}

func TestUpdateDisableStopsMatching(t *testing.T) {
	registry := registryForTest()
	ctx := context.Background()

	if _, err := registry.Register(ctx, Config{TaskID: "t1", OrganizationID: "acme", EventPattern: "alerts.*", Enabled: true}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	disabled := false
	if _, err := registry.Update(ctx, "t1", Updates{Enabled: &disabled}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if matched, _ := registry.FindMatchingTasks(ctx, webhookEvent("alerts.cpu", "acme"), ""); len(matched) != 0 {
		t.Fatalf("disabled trigger matched: %v", matched)
	}
}

func TestUpdateUnknownTrigger(t *testing.T) {
	registry := registryForTest()
	enabled := true
	_, err := registry.Update(context.Background(), "ghost", Updates{Enabled: &enabled})
	if !errors.Is(err, task.ErrTriggerNotFound) {
		t.Fatalf("expected ErrTriggerNotFound, got %v", err)
	}
}

func TestSourceFilterIsPrefixMatch(t *testing.T) {
	registry := registryForTest()
	ctx := context.Background()

	if _, err := registry.Register(ctx, Config{
		TaskID:         "t1",
		OrganizationID: "acme",
		EventPattern:   "external.**",
		SourceFilter:   "stripe",
		Enabled:        true,
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ev := webhookEvent("external.webhook.charge", "acme")
	ev.Source = "stripe-webhook"
	if matched, _ := registry.FindMatchingTasks(ctx, ev, ""); len(matched) != 1 {
		t.Fatalf("prefix source should match: %v", matched)
	}

	ev.Source = "github"
	if matched, _ := registry.FindMatchingTasks(ctx, ev, ""); len(matched) != 0 {
		t.Fatalf("non-matching source matched: %v", matched)
	}
}

func TestExplicitOrgParameterWins(t *testing.T) {
	registry := registryForTest()
	ctx := context.Background()

	if _, err := registry.Register(ctx, Config{TaskID: "t1", OrganizationID: "acme", EventPattern: "a.*", Enabled: true}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Metadata says another org, explicit parameter says acme.
	matched, err := registry.FindMatchingTasks(ctx, webhookEvent("a.b", "other"), "acme")
	if err != nil {
		t.Fatalf("FindMatchingTasks: %v", err)
	}
	if len(matched) != 1 {
		t.Fatalf("matched = %v", matched)
	}

	// No org anywhere: never match.
	matched, err = registry.FindMatchingTasks(ctx, webhookEvent("a.b", ""), "")
	if err != nil {
		t.Fatalf("FindMatchingTasks: %v", err)
	}
	if len(matched) != 0 {
		t.Fatalf("org-less event matched: %v", matched)
	}
}

func TestRecordExecutionAndHistory(t *testing.T) {
	history := newMemHistory()
	registry := NewRegistry(NewMemoryStore(), history, nil)
	ctx := context.Background()

	registry.RecordExecution(ctx, Execution{TaskID: "t1", EventID: "e1", EventType: "a.b", Source: "s", FiredAt: time.Now().UTC()})
	registry.RecordExecution(ctx, Execution{TaskID: "t1", EventID: "e2", EventType: "a.c", Source: "s", FiredAt: time.Now().UTC()})

	execs, err := registry.History(ctx, "t1", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(execs) != 2 {
		t.Fatalf("history length = %d", len(execs))
	}
	if execs[0].EventID != "e2" {
		t.Fatalf("newest first, got %+v", execs[0])
	}
}

func TestRecordExecutionSwallowsHistoryFailure(t *testing.T) {
	history := newMemHistory()
	history.fail = true
	registry := NewRegistry(NewMemoryStore(), history, nil)

	// Must not panic or error out.
	registry.RecordExecution(context.Background(), Execution{TaskID: "t1", EventID: "e1"})
}

func TestMatchEventTypeSegments(t *testing.T) {
	cases := []struct {
		pattern   string
		eventType string
		want      bool
	}{
		{"external.webhook.*", "external.webhook.stripe", true},
		{"external.webhook.*", "external.webhook.stripe.charge", false},
		{"external.webhook.**", "external.webhook.stripe.charge", true},
		{"external.*.stripe", "external.webhook.stripe", true},
		{"external.webhook.stripe", "external.webhook.stripe", true},
		{"external.webhook.stripe", "external.webhook.github", false},
		{"*", "external", true},
		{"*", "external.webhook", false},
		{"**", "external.webhook.stripe", true},
	}
	for _, tc := range cases {
		if got := MatchEventType(tc.pattern, tc.eventType); got != tc.want {
			t.Fatalf("MatchEventType(%q, %q) = %v, want %v", tc.pattern, tc.eventType, got, tc.want)
		}
	}
}

func TestValidPattern(t *testing.T) {
	if !ValidPattern("a.*.c") {
		t.Fatal("a.*.c should be valid")
	}
	if ValidPattern("a.[") {
		t.Fatal("unterminated class should be invalid")
	}
}
