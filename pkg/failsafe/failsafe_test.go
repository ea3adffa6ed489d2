package failsafe

import (
	"errors"
	"log/slog"
	"testing"
)

func TestValue_Healthy(t *testing.T) {
	v, degraded := Value(slog.Default(), "test", -1, func() (int, error) {
		return 42, nil
	})
	if degraded {
		t.Error("expected healthy result")
	}
	if v != 42 {
		t.Errorf("expected 42, got %d", v)
	}
}

func TestValue_FailsOpen(t *testing.T) {
	v, degraded := Value(slog.Default(), "test", -1, func() (int, error) {
		return 0, errors.New("storage down")
	})
	if !degraded {
		t.Error("expected degraded result")
	}
	if v != -1 {
		t.Errorf("expected fallback -1, got %d", v)
	}
}

func TestValue_NilLogger(t *testing.T) {
	// Must not panic without a logger
	v, degraded := Value(nil, "test", "fallback", func() (string, error) {
		return "", errors.New("boom")
	})
	if !degraded || v != "fallback" {
		t.Errorf("expected degraded fallback, got %q degraded=%v", v, degraded)
	}
}

func TestDo(t *testing.T) {
	if Do(slog.Default(), "test", func() error { return nil }) {
		t.Error("expected healthy")
	}
	if !Do(slog.Default(), "test", func() error { return errors.New("boom") }) {
		t.Error("expected degraded")
	}
}
