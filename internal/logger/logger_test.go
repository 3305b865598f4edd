package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogger_WritesPerLevelFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	l, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer l.Close()

	l.Info("model %s loaded", "yolo11n.onnx")
	l.Warning("frame %d skipped", 3)
	l.Error("camera %d lost", 0)

	tests := map[string]string{
		LevelInfo:    "model yolo11n.onnx loaded",
		LevelWarning: "frame 3 skipped",
		LevelError:   "camera 0 lost",
	}
	for level, want := range tests {
		data, err := os.ReadFile(l.FilePath(level))
		if err != nil {
			t.Fatalf("Failed to read %s log: %v", level, err)
		}
		if !strings.Contains(string(data), want) {
			t.Errorf("%s log = %q, want it to contain %q", level, data, want)
		}
		if !strings.Contains(string(data), "logger_test.go") {
			t.Errorf("%s log should reference the calling file: %q", level, data)
		}
	}
}

func TestLogger_CleanLogs(t *testing.T) {
	l, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer l.Close()

	l.Warning("something odd")
	if err := l.CleanLogs(LevelWarning); err != nil {
		t.Fatalf("CleanLogs failed: %v", err)
	}

	info, err := os.Stat(l.FilePath(LevelWarning))
	if err != nil {
		t.Fatalf("Log file should still exist: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("Log file size = %d after clean, want 0", info.Size())
	}

	// Writes after a clean still land in the file.
	l.Warning("after clean")
	data, _ := os.ReadFile(l.FilePath(LevelWarning))
	if !strings.Contains(string(data), "after clean") {
		t.Errorf("Expected new entry after clean, got %q", data)
	}
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	l.Info("ignored")
	l.Error("ignored")
	if err := l.CleanLogs(LevelInfo); err != nil {
		t.Errorf("CleanLogs on nop logger: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close on nop logger: %v", err)
	}
}
