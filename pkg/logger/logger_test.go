package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize text logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	if err := Init(WithFormat(FormatJSON)); err != nil {
		t.Fatalf("failed to initialize json logger: %v", err)
	}
	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	if err := Init(WithFormat("xml")); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithFormat(FormatJSON), WithWriter(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	Named("ranking").Info(context.Background(), "orphan removed",
		String("leaderboard", "weekly"),
		Float64("score", 10),
		Int64("attempts", 2),
		Bool("removed", true),
		Duration("took", time.Millisecond),
	)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not json: %v (%q)", err, buf.String())
	}
	if line["msg"] != "orphan removed" {
		t.Errorf("unexpected msg: %v", line["msg"])
	}
	if line["component"] != "ranking" {
		t.Errorf("unexpected component: %v", line["component"])
	}
	if line["leaderboard"] != "weekly" {
		t.Errorf("unexpected leaderboard: %v", line["leaderboard"])
	}
	source, _ := line["source"].(string)
	if !strings.Contains(source, "logger_test.go") {
		t.Errorf("source should point at the caller, got %q", source)
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithWriter(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	ctx := context.Background()

	Get().Debug(ctx, "hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info level, got %q", buf.String())
	}

	if err := SetLevelString("DEBUG"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Get().Debug(ctx, "visible", Error(errors.New("boom")))
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("debug should be emitted, got %q", buf.String())
	}

	if err := SetLevelString("verbose"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if err := SetLevelString("warning"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoggerNop(t *testing.T) {
	l := Nop()
	ctx := context.Background()
	l.Error(ctx, "dropped")
	l.Named("x").Info(ctx, "dropped")
}
