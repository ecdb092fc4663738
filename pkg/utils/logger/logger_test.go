package logger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"koodecode/pkg/utils/contextkey"

	"go.uber.org/zap"
)

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger(Config{Level: "loud"}); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestLoggerWritesContextFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "judge.log")
	l, err := NewLogger(Config{Level: "debug", Format: "json", OutputPath: path})
	if err != nil {
		t.Fatalf("new logger failed: %v", err)
	}

	ctx := context.WithValue(context.Background(), contextkey.TraceID, "trace-1")
	ctx = context.WithValue(ctx, contextkey.SubmissionID, "sub-9")
	l.WithContext(ctx).Info("case finished", zap.Int("case", 2))
	_ = l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log failed: %v", err)
	}
	line := string(data)
	for _, want := range []string{`"trace_id":"trace-1"`, `"submission_id":"sub-9"`, `"case":2`, `"msg":"case finished"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line %q missing %s", line, want)
		}
	}
}

func TestGlobalHelpersAreNoopBeforeInit(t *testing.T) {
	prev := globalLogger
	globalLogger = nil
	defer func() { globalLogger = prev }()

	Info(context.Background(), "ignored")
	if err := Sync(); err != nil {
		t.Fatalf("sync without logger should be nil, got %v", err)
	}
}
