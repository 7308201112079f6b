package instance

import "testing"

func TestGetIDPrefersEnv(t *testing.T) {
	t.Setenv("MEDICART_INSTANCE_ID", "cron-7")
	if got := GetID(); got != "cron-7" {
		t.Fatalf("expected cron-7, got %q", got)
	}
}

func TestGetIDFallsBack(t *testing.T) {
	t.Setenv("MEDICART_INSTANCE_ID", "  ")
	if got := GetID(); got == "" {
		t.Fatalf("expected non-empty fallback id")
	}
}
