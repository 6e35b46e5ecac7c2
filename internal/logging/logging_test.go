package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_ConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Options{Level: slog.LevelWarn, Stderr: &buf})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("shown", "id", 7)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "id=7") {
		t.Errorf("warn record missing: %q", out)
	}
}

func TestNew_FileReceivesDebug(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "emtodo.log")

	logger, closer, err := New(Options{
		Level:      slog.LevelError,
		Stderr:     &buf,
		File:       path,
		MaxSizeMB:  1,
		MaxBackups: 1,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	logger.With("component", "seed").Debug("seed complete", "count", 3)
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	if buf.Len() != 0 {
		t.Errorf("console got a debug record: %q", buf.String())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(data)
	for _, want := range []string{`"msg":"seed complete"`, `"component":"seed"`, `"count":3`} {
		if !strings.Contains(line, want) {
			t.Errorf("log file missing %s: %q", want, line)
		}
	}
}

func TestDiscard(t *testing.T) {
	Discard().Error("nothing happens")
}
