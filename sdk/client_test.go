package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hatchery-io/hatchery/internals/schemas"
	"github.com/hatchery-io/hatchery/internals/task"
)

func TestClientVersion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/version" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("  0.1.0+abc  "))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	version, err := client.Version(ctx)
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if version != "0.1.0+abc" {
		t.Fatalf("expected trimmed version, got %q", version)
	}
}

func TestClientTaskFlows(t *testing.T) {
	pending := &task.Task{ID: "t1", UserID: "u1", Goal: "g", Status: task.StatusPending}
	cancelled := &task.Task{ID: "t1", UserID: "u1", Goal: "g", Status: task.StatusCancelled}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case http.MethodPost + " /tasks":
			var req schemas.TaskCreateRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Goal == "" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(&schemas.TaskResponse{Task: pending})
		case http.MethodGet + " /tasks/t1":
			_ = json.NewEncoder(w).Encode(&schemas.TaskResponse{Task: pending})
		case http.MethodPost + " /tasks/t1/cancel":
			_ = json.NewEncoder(w).Encode(&schemas.TaskResponse{Task: cancelled})
		case http.MethodDelete + " /tasks/t1":
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(map[string]bool{"deleted": true})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	created, err := client.CreateTask(ctx, schemas.TaskCreateRequest{UserID: "u1", Goal: "g"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if created.Task.ID != "t1" {
		t.Fatalf("created = %+v", created.Task)
	}

	got, err := client.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Task.Status != task.StatusPending {
		t.Fatalf("status = %s", got.Task.Status)
	}

	stopped, err := client.CancelTask(ctx, "t1")
	if err != nil {
		t.Fatalf("CancelTask: %v", err)
	}
	if stopped.Task.Status != task.StatusCancelled {
		t.Fatalf("status = %s", stopped.Task.Status)
	}

	if err := client.DeleteTask(ctx, "t1"); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
}

func TestClientListTasksQuery(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(&schemas.TaskListResponse{Tasks: []*task.Task{}})
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	status := task.StatusExecuting
	if _, err := client.ListTasks(context.Background(), "u1", &status, 5); err != nil {
		t.Fatalf("ListTasks: %v", err)
	}

	want := "limit=5&status=executing&user_id=u1"
	if gotQuery != want {
		t.Fatalf("query = %q, want %q", gotQuery, want)
	}
}

func TestClientTriggerAndEventFlows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case http.MethodPost + " /triggers":
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(&schemas.TriggerResponse{Registered: true})
		case http.MethodDelete + " /triggers/t1":
			_ = json.NewEncoder(w).Encode(&schemas.TriggerDeleteResponse{Removed: true})
		case http.MethodPost + " /events":
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(&schemas.EventIngestResponse{EventID: "e1", TasksFired: 1})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	ctx := context.Background()

	reg, err := client.RegisterTrigger(ctx, schemas.TriggerRegisterRequest{
		TaskID: "t1", OrganizationID: "acme", EventPattern: "external.webhook.*",
	})
	if err != nil {
		t.Fatalf("RegisterTrigger: %v", err)
	}
	if !reg.Registered {
		t.Fatal("expected registered")
	}

	removed, err := client.UnregisterTrigger(ctx, "t1")
	if err != nil {
		t.Fatalf("UnregisterTrigger: %v", err)
	}
	if !removed.Removed {
		t.Fatal("expected removed")
	}

	ingested, err := client.IngestEvent(ctx, schemas.EventIngestRequest{
		Source: "webhook", EventType: "external.webhook.stripe",
	})
	if err != nil {
		t.Fatalf("IngestEvent: %v", err)
	}
	if ingested.EventID != "e1" || ingested.TasksFired != 1 {
		t.Fatalf("ingested = %+v", ingested)
	}
}

func TestClientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(&ErrorResponse{Status: "error", Code: "not_found", Message: "task not found"})
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	_, err := client.GetTask(context.Background(), "ghost")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "not_found" {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}

func TestIsRunning(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0.1.0"))
	}))
	defer server.Close()

	if !IsRunningWithTimeout(server.URL, time.Second) {
		t.Fatal("expected running")
	}
	server.Close()
	if IsRunningWithTimeout(server.URL, 200*time.Millisecond) {
		t.Fatal("expected not running after close")
	}
	if IsRunning("") {
		t.Fatal("empty base url can never be running")
	}
}
