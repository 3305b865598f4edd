package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// unsetEnv clears keys for the duration of the test so that defaults and
// .env values are visible.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		if old, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, old) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	unsetEnv(t, "PORT", "DETECTOR", "MODE", "CONFIDENCE", "CASCADE_SCALE_FACTOR",
		"CASCADE_MIN_NEIGHBORS", "UPLOAD_LIMIT_MB", "PREFERENCE_RETENTION", "TEMP_DIR")

	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Detector != DetectorYOLO {
		t.Errorf("Detector = %q, want yolo", cfg.Detector)
	}
	if cfg.Mode != ModeImage {
		t.Errorf("Mode = %q, want image", cfg.Mode)
	}
	if cfg.Confidence != 0.3 || cfg.CascadeScaleFactor != 1.1 || cfg.CascadeMinNeighbors != 3 {
		t.Errorf("Unexpected detection defaults: %+v", cfg)
	}
	if cfg.UploadLimitMB != 200 {
		t.Errorf("UploadLimitMB = %d, want 200", cfg.UploadLimitMB)
	}
	// The startup sweep clears this directory, so it must not be the shared temp dir.
	if want := filepath.Join(os.TempDir(), "detectsuite"); cfg.TempDirectory != want {
		t.Errorf("TempDirectory = %q, want %q", cfg.TempDirectory, want)
	}
	if cfg.PreferenceRetention != 30*24*time.Hour {
		t.Errorf("PreferenceRetention = %v", cfg.PreferenceRetention)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults should validate: %v", err)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DETECTOR", "Cascade")
	t.Setenv("MODE", "webcam")
	t.Setenv("CONFIDENCE", "0.55")
	t.Setenv("CAMERA_DEVICE", "2")
	t.Setenv("PREFERENCE_RETENTION", "2h")

	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))

	if cfg.Port != 9090 || cfg.Detector != DetectorCascade || cfg.Mode != ModeWebcam {
		t.Errorf("Overrides not applied: port=%d detector=%q mode=%q", cfg.Port, cfg.Detector, cfg.Mode)
	}
	if cfg.Confidence != 0.55 || cfg.CameraDevice != 2 || cfg.PreferenceRetention != 2*time.Hour {
		t.Errorf("Overrides not applied: %+v", cfg)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("PORT", "eighty")
	t.Setenv("MODE", "radio")
	t.Setenv("CONFIDENCE", "high")

	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))

	if cfg.Port != 8080 || cfg.Mode != ModeImage || cfg.Confidence != 0.3 {
		t.Errorf("Invalid values should fall back to defaults: %+v", cfg)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	unsetEnv(t, "DETECTOR", "CASCADE_PATH")

	path := filepath.Join(t.TempDir(), ".env")
	content := "DETECTOR=cascade\nCASCADE_PATH=/opt/plates.xml\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}

	cfg := Load(path)
	if cfg.Detector != DetectorCascade || cfg.CascadePath != "/opt/plates.xml" {
		t.Errorf(".env not applied: detector=%q cascade=%q", cfg.Detector, cfg.CascadePath)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{Detector: DetectorYOLO, Confidence: 0.3, CascadeScaleFactor: 1.1, CascadeMinNeighbors: 3, UploadLimitMB: 10}

	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"unknown detector", func(c *Config) { c.Detector = "rcnn" }},
		{"confidence too high", func(c *Config) { c.Confidence = 1.5 }},
		{"negative confidence", func(c *Config) { c.Confidence = -0.1 }},
		{"scale factor", func(c *Config) { c.CascadeScaleFactor = 1.0 }},
		{"neighbors", func(c *Config) { c.CascadeMinNeighbors = -1 }},
		{"upload limit", func(c *Config) { c.UploadLimitMB = 0 }},
	}

	if err := valid.Validate(); err != nil {
		t.Fatalf("Valid config rejected: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.modify(&c)
			if err := c.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	for _, in := range []string{"image", " Video ", "WEBCAM"} {
		if _, err := ParseMode(in); err != nil {
			t.Errorf("ParseMode(%q) failed: %v", in, err)
		}
	}
	if _, err := ParseMode("audio"); err == nil {
		t.Error("Expected error for unknown mode")
	}
}
