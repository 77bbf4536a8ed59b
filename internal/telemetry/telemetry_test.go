package telemetry

import (
	"context"
	"testing"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNew_EnabledLazyConnection(t *testing.T) {
	// The exporter dials lazily, so construction succeeds without a
	// collector listening.
	tel, err := New(context.Background(), Config{
		Enabled:  true,
		Endpoint: "localhost:1",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if tel.tracerProvider == nil {
		t.Fatal("tracer provider not installed")
	}
	_ = tel.Shutdown(context.Background())
}
