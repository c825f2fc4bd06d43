package app

import (
	"context"
	"testing"

	"github.com/MrSnakeDoc/ipwatch/internal/telemetry"
)

func stubTracing(t *testing.T) *int {
	t.Helper()
	shutdowns := 0
	orig := initTracing
	initTracing = func(context.Context, telemetry.Config) (func(context.Context) error, error) {
		return func(context.Context) error {
			shutdowns++
			return nil
		}, nil
	}
	t.Cleanup(func() { initTracing = orig })
	return &shutdowns
}

func TestNewShutsDownTracingOnError(t *testing.T) {
	shutdowns := stubTracing(t)
	t.Setenv("IPWATCH_PRETTY_LOG", "false")
	t.Setenv("IPWATCH_LOG_LEVEL", "error")
	// rejected by the redis connector before any dial
	t.Setenv("IPWATCH_REDIS_ADDR", "127.0.0.1:6379")
	t.Setenv("IPWATCH_REDIS_MAX_WAIT", "-1s")

	a, err := New()
	if err == nil {
		t.Fatal("New() should fail with invalid redis options")
	}
	if a != nil {
		t.Errorf("New() app = %v, want nil", a)
	}
	if *shutdowns != 1 {
		t.Errorf("tracing shutdowns = %d, want 1", *shutdowns)
	}
}

func TestNewKeepsTracingOnSuccess(t *testing.T) {
	shutdowns := stubTracing(t)
	t.Setenv("IPWATCH_PRETTY_LOG", "false")
	t.Setenv("IPWATCH_LOG_LEVEL", "error")
	t.Setenv("IPWATCH_SMTP_HOST", "smtp.example.com")
	t.Setenv("IPWATCH_SMTP_FROM", "ipwatch@example.com")

	a, err := New()
	if err != nil {
		t.Fatalf("New() err = %v", err)
	}
	if *shutdowns != 0 {
		t.Errorf("tracing shutdowns = %d, want 0", *shutdowns)
	}
	if sinks := a.dispatcher.Stats().Sinks; len(sinks) != 2 || sinks[1] != "email" {
		t.Errorf("sinks = %v, want [log email]", sinks)
	}
	a.sampler.Stop()
}
