package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/shubham/filerecovery/internal/logging"
)

func TestMultiHandlerFansOut(t *testing.T) {
	var textBuf, jsonBuf bytes.Buffer
	textH := slog.NewTextHandler(&textBuf, &slog.HandlerOptions{Level: slog.LevelInfo})
	jsonH := slog.NewJSONHandler(&jsonBuf, &slog.HandlerOptions{Level: slog.LevelInfo})

	logger := slog.New(logging.NewMultiHandler(textH, jsonH))
	logger.Info("chunk scanned", "chunk", 4)

	if !strings.Contains(textBuf.String(), "chunk scanned") {
		t.Errorf("text handler missing message: %q", textBuf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal(jsonBuf.Bytes(), &rec); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if rec["msg"] != "chunk scanned" {
		t.Errorf("json msg = %v, want chunk scanned", rec["msg"])
	}
}

func TestMultiHandlerLevelFiltering(t *testing.T) {
	var debugBuf, warnBuf bytes.Buffer
	debugH := slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})
	warnH := slog.NewTextHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn})

	logger := slog.New(logging.NewMultiHandler(debugH, warnH))
	logger.Info("info msg")
	logger.Warn("warn msg")

	if !strings.Contains(debugBuf.String(), "info msg") {
		t.Errorf("debug handler should see info-level records")
	}
	if strings.Contains(warnBuf.String(), "info msg") {
		t.Errorf("warn handler should not see info-level records")
	}
}

func TestMultiHandlerEnabled(t *testing.T) {
	warnH := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	errH := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError})
	m := logging.NewMultiHandler(warnH, errH)

	if !m.Enabled(context.Background(), slog.LevelWarn) {
		t.Errorf("expected Enabled(Warn) true")
	}
	if m.Enabled(context.Background(), slog.LevelInfo) {
		t.Errorf("expected Enabled(Info) false")
	}
}
