package logbuf

import (
	"log/slog"
	"testing"
)

func flattened(group slog.Attr) map[string]any {
	out := map[string]any{}
	for _, attr := range group.Value.Group() {
		out[attr.Key] = attr.Value.Any()
	}
	return out
}

func TestFlushCarriesBaseAttrsAndEntries(t *testing.T) {
	logger := New(slog.String("request_id", "r1"))
	logger.Info("started", slog.String("path", "/tasks"))
	logger.Warn("slow query")

	got := flattened(logger.Flush())
	if got["request_id"] != "r1" {
		t.Fatalf("request_id = %v", got["request_id"])
	}

	entries, ok := got["entries"].([]map[string]any)
	if !ok {
		t.Fatalf("entries = %T", got["entries"])
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0]["message"] != "started" || entries[0]["level"] != "info" {
		t.Fatalf("first entry = %+v", entries[0])
	}
	if entries[0]["path"] != "/tasks" {
		t.Fatalf("first entry = %+v", entries[0])
	}
	if entries[1]["level"] != "warn" {
		t.Fatalf("second entry = %+v", entries[1])
	}
}

func TestFlushDrainsBuffer(t *testing.T) {
	logger := New()
	logger.Info("once")
	logger.Flush()

	got := flattened(logger.Flush())
	entries := got["entries"].([]map[string]any)
	if len(entries) != 0 {
		t.Fatalf("entries after drain = %d", len(entries))
	}
}

func TestWithIsolatesChildBuffer(t *testing.T) {
	parent := New(slog.String("request_id", "r1"))
	parent.Info("parent entry")

	child := parent.With(slog.String("handler", "create_task"))
	child.Info("child entry")

	got := flattened(child.Flush())
	if got["request_id"] != "r1" || got["handler"] != "create_task" {
		t.Fatalf("child attrs = %+v", got)
	}
	entries := got["entries"].([]map[string]any)
	if len(entries) != 1 || entries[0]["message"] != "child entry" {
		t.Fatalf("child entries = %+v", entries)
	}

	parentEntries := flattened(parent.Flush())["entries"].([]map[string]any)
	if len(parentEntries) != 1 || parentEntries[0]["message"] != "parent entry" {
		t.Fatalf("parent entries = %+v", parentEntries)
	}
}

func TestAddExtendsFlushedRecord(t *testing.T) {
	logger := New()
	logger.Add(slog.Int("status", 201))

	got := flattened(logger.Flush())
	if got["status"] != int64(201) {
		t.Fatalf("status = %v (%T)", got["status"], got["status"])
	}
}

func TestEntryAttrsDoNotShadowCoreFields(t *testing.T) {
	logger := New()
	logger.Error("boom", slog.String("message", "injected"))

	entries := flattened(logger.Flush())["entries"].([]map[string]any)
	if entries[0]["message"] != "boom" {
		t.Fatalf("message = %v", entries[0]["message"])
	}
}
