package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Mode selects where frames come from.
type Mode string

const (
	ModeImage  Mode = "image"
	ModeVideo  Mode = "video"
	ModeWebcam Mode = "webcam"
)

// ParseMode validates a detection mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeImage, ModeVideo, ModeWebcam:
		return m, nil
	}
	return "", fmt.Errorf("unknown detection mode %q (want image, video or webcam)", s)
}

// Detector kinds.
const (
	DetectorYOLO    = "yolo"
	DetectorSSD     = "ssd"
	DetectorCascade = "cascade"
)

type Config struct {
	Port     int
	Detector string // yolo, ssd or cascade
	Mode     Mode   // Default mode offered to new sessions

	ModelPath       string
	ModelConfigPath string // Only used by TensorFlow graphs (ssd)
	LabelsPath      string // One class name per line; empty uses the built-in catalog
	CascadePath     string

	Confidence          float64
	CascadeScaleFactor  float64
	CascadeMinNeighbors int
	CameraDevice        int

	UploadLimitMB int64
	TempDirectory string
	DatabasePath  string
	LogDirectory  string

	StaticDirectory     string
	PreferenceRetention time.Duration // Preferences untouched for longer are pruned
}

// Load reads an optional .env file and then the process environment.
func Load(envFiles ...string) *Config {
	// A missing .env is normal outside development.
	_ = godotenv.Load(envFiles...)

	mode, err := ParseMode(getEnv("MODE", string(ModeImage)))
	if err != nil {
		mode = ModeImage
	}

	return &Config{
		Port:                getEnvAsInt("PORT", 8080),
		Detector:            strings.ToLower(getEnv("DETECTOR", DetectorYOLO)),
		Mode:                mode,
		ModelPath:           getEnv("MODEL_PATH", filepath.Join(".", "models", "yolo11n.onnx")),
		ModelConfigPath:     getEnv("MODEL_CONFIG_PATH", ""),
		LabelsPath:          getEnv("LABELS_PATH", ""),
		CascadePath:         getEnv("CASCADE_PATH", filepath.Join(".", "models", "haarcascade_russian_plate_number.xml")),
		Confidence:          getEnvAsFloat("CONFIDENCE", 0.3),
		CascadeScaleFactor:  getEnvAsFloat("CASCADE_SCALE_FACTOR", 1.1),
		CascadeMinNeighbors: getEnvAsInt("CASCADE_MIN_NEIGHBORS", 3),
		CameraDevice:        getEnvAsInt("CAMERA_DEVICE", 0),
		UploadLimitMB:       getEnvAsInt64("UPLOAD_LIMIT_MB", 200),
		TempDirectory:       getEnv("TEMP_DIR", filepath.Join(os.TempDir(), "detectsuite")),
		DatabasePath:        getEnv("DATABASE_PATH", filepath.Join(".", "data", "detectsuite.db")),
		LogDirectory:        getEnv("LOG_DIR", filepath.Join(".", "logs")),
		StaticDirectory:     getEnv("STATIC_DIR", "static"),
		PreferenceRetention: getEnvAsDuration("PREFERENCE_RETENTION", 30*24*time.Hour),
	}
}

// Validate checks value ranges that would otherwise fail deep inside the pipeline.
func (c *Config) Validate() error {
	switch c.Detector {
	case DetectorYOLO, DetectorSSD, DetectorCascade:
	default:
		return fmt.Errorf("unknown detector %q", c.Detector)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("confidence must be within [0,1], got %v", c.Confidence)
	}
	if c.CascadeScaleFactor <= 1 {
		return fmt.Errorf("cascade scale factor must be greater than 1, got %v", c.CascadeScaleFactor)
	}
	if c.UploadLimitMB <= 0 {
		return fmt.Errorf("upload limit must be positive, got %d MB", c.UploadLimitMB)
	}
	if c.CascadeMinNeighbors < 0 {
		return fmt.Errorf("cascade min neighbors must not be negative, got %d", c.CascadeMinNeighbors)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
