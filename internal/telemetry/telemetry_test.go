package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/nextlevelbuilder/govoice/internal/config"
)

// A disabled config must not touch the global provider; the returned
// shutdown hook is a harmless noop.
func TestSetup_Disabled(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := Setup(context.Background(), config.TelemetryConfig{}, "test", nil)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Error("disabled setup must not replace the global provider")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("noop shutdown: %v", err)
	}
}

func TestSetup_UnknownProtocol(t *testing.T) {
	_, err := Setup(context.Background(), config.TelemetryConfig{
		Enabled:  true,
		Protocol: "carrier-pigeon",
	}, "test", nil)
	if err == nil {
		t.Fatal("want error for unknown protocol")
	}
}

// Enabled setup installs a real provider. Shutdown flushes cleanly even
// without a collector listening because no spans were recorded.
func TestSetup_InstallsProvider(t *testing.T) {
	beforeTP := otel.GetTracerProvider()
	beforeProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(beforeTP)
		otel.SetTextMapPropagator(beforeProp)
	})

	shutdown, err := Setup(context.Background(), config.TelemetryConfig{
		Enabled:  true,
		Protocol: "http",
		Endpoint: "127.0.0.1:4318",
		Insecure: true,
	}, "test", nil)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if otel.GetTracerProvider() == beforeTP {
		t.Error("enabled setup must replace the global provider")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
