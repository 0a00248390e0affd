package env

import "testing"

func TestEnvDefaults(t *testing.T) {
	env = nil
	t.Cleanup(func() { env = nil })

	got := Get()
	if got.PORT != 58120 {
		t.Fatalf("expected default port 58120, got %d", got.PORT)
	}
	if got.LISTEN_ADDR != "localhost:58120" {
		t.Fatalf("expected listen addr localhost:58120, got %s", got.LISTEN_ADDR)
	}
	if got.BASE_URL != "http://localhost:58120" {
		t.Fatalf("expected base url http://localhost:58120, got %s", got.BASE_URL)
	}
}

func TestEnvOverridesPort(t *testing.T) {
	t.Setenv("HATCHERY_ENV_PORT", "1234")
	env = nil
	t.Cleanup(func() { env = nil })

	got := Get()
	if got.PORT != 1234 {
		t.Fatalf("expected port 1234, got %d", got.PORT)
	}
	if got.LISTEN_ADDR != "localhost:1234" {
		t.Fatalf("expected listen addr localhost:1234, got %s", got.LISTEN_ADDR)
	}
	if got.BASE_URL != "http://localhost:1234" {
		t.Fatalf("expected base url http://localhost:1234, got %s", got.BASE_URL)
	}
}

func TestEnvOverridesConnections(t *testing.T) {
	t.Setenv("HATCHERY_DATABASE_URL", "postgres://db.internal:5432/hatchery")
	t.Setenv("HATCHERY_REDIS_ADDR", "cache.internal:6379")
	env = nil
	t.Cleanup(func() { env = nil })

	got := Get()
	if got.DATABASE_URL != "postgres://db.internal:5432/hatchery" {
		t.Fatalf("database url = %q", got.DATABASE_URL)
	}
	if got.REDIS_ADDR != "cache.internal:6379" {
		t.Fatalf("redis addr = %q", got.REDIS_ADDR)
	}
}
