package bootstrap

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"meetcap/internal/config"
	"meetcap/internal/domain"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	for _, key := range []string{
		"DEEPGRAM_API_KEY",
		"MEETCAP_PATTERNS_FILE",
		"MEETCAP_HTTP_ENABLED",
		"MEETCAP_MQTT_BROKER",
		"MEETCAP_OUTPUT_DIR",
	} {
		t.Setenv(key, "")
	}
	return home
}

func TestBuildSuccess(t *testing.T) {
	isolate(t)
	t.Setenv("DEEPGRAM_API_KEY", "test-key")

	services, err := Build(noopEventSink{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer services.Close(context.Background())

	if services.Controller == nil || services.Engine == nil || services.Catalog == nil {
		t.Fatalf("expected controller, engine and catalog")
	}
	if services.API != nil {
		t.Fatalf("expected no HTTP API by default")
	}
	if got := services.Events.Len(); got != 1 {
		t.Fatalf("expected only the caller's sink, got %d sinks", got)
	}
	if state := services.Controller.State(); state != domain.RecordingStateIdle {
		t.Fatalf("unexpected initial state %q", state)
	}
}

func TestBuildFailsOnInvalidPatterns(t *testing.T) {
	home := isolate(t)
	patterns := filepath.Join(home, "bad.patterns")
	if err := os.WriteFile(patterns, []byte("not a valid pattern\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Setenv("MEETCAP_PATTERNS_FILE", patterns)

	if _, err := Build(noopEventSink{}); err == nil {
		t.Fatalf("expected build error due to invalid patterns")
	}
}

func TestAssembleWithHTTPAPI(t *testing.T) {
	home := isolate(t)
	t.Setenv("MEETCAP_HTTP_ENABLED", "true")
	t.Setenv("MEETCAP_OUTPUT_DIR", filepath.Join(home, "recordings"))

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	services, err := Assemble(cfg, nil, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	defer services.Close(context.Background())

	if services.API == nil {
		t.Fatalf("expected HTTP API")
	}
	if got := services.Events.Len(); got != 1 {
		t.Fatalf("expected the websocket hub as the only sink, got %d", got)
	}

	rc := services.NewConfiguration(domain.SystemWideSource(), true)
	if rc.OutputDir != filepath.Join(home, "recordings") {
		t.Fatalf("unexpected output dir %q", rc.OutputDir)
	}
	if rc.SessionID == "" || !rc.EnableMicrophone {
		t.Fatalf("unexpected configuration %+v", rc)
	}
}

func TestCloseIsSafeWhenIdle(t *testing.T) {
	isolate(t)
	services, err := Assemble(config.Config{}, nil, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	if err := services.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := services.Close(context.Background()); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
}

type noopEventSink struct{}

func (noopEventSink) RecordingStateChanged(domain.RecordingStatus) {}
func (noopEventSink) MeetingStateChanged(domain.MeetingEvent)      {}
func (noopEventSink) SessionError(domain.ErrorCode, string)        {}
