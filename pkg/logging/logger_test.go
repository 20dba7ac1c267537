package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestContextLoggerCarriesAttributes(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter("info", &buf)
	scoped := base.With("request_id", "req-1")

	ctx := WithContext(context.Background(), scoped)
	FromContext(ctx, base).Info("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["request_id"] != "req-1" {
		t.Fatalf("expected request_id attribute, got %v", line)
	}
}

func TestFromContextFallback(t *testing.T) {
	base := Default()
	if got := FromContext(context.Background(), base); got != base {
		t.Fatalf("expected fallback logger")
	}
	if got := FromContext(context.Background(), nil); got == nil {
		t.Fatalf("expected default logger when fallback is nil")
	}
}
