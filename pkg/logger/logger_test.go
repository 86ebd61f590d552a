package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
)

func TestSetupWriterJSON(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	SetupWriter(&buf, config.LoggingConfig{Level: "warn", Format: "json"})
	slog.Info("dropped")
	WithComponent("indexer").Warn("kept", "doc_id", 7)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["component"] != "indexer" || rec["msg"] != "kept" {
		t.Errorf("record = %v", rec)
	}
}

func TestContextAttrs(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	SetupWriter(&buf, config.LoggingConfig{Level: "debug", Format: "text"})
	ctx := WithAttrs(context.Background(), "run_id", "r1")
	ctx = WithAttrs(ctx, "source", "json")
	FromContext(ctx).Debug("batch")
	out := buf.String()
	if !strings.Contains(out, "run_id=r1") || !strings.Contains(out, "source=json") {
		t.Errorf("attributes missing from %q", out)
	}
	if FromContext(context.Background()) != slog.Default() {
		t.Error("empty context does not yield the default logger")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "error": slog.LevelError, "": slog.LevelInfo, "verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
