package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"detectsuite/internal/config"
	"detectsuite/internal/logger"
)

// tempPrefix marks files created by this service so leftovers can be swept.
const tempPrefix = "detectsuite-"

// StagingService hands out temporary files scoped to one upload or export.
// Every staged file is removed when its session ends, on every exit path.
type StagingService struct {
	dir    string
	active int
	mu     sync.Mutex
	logger *logger.Logger
}

// NewStagingService creates a StagingService rooted in the configured temp directory.
func NewStagingService(config *config.Config, logger *logger.Logger) *StagingService {
	return &StagingService{
		dir:    config.TempDirectory,
		logger: logger,
	}
}

// StagedFile is a temporary file that must be released by its owner.
type StagedFile struct {
	Path    string
	Size    int64
	service *StagingService
	once    sync.Once
}

// Stage copies r into a new temporary file. The caller must call Release.
// On failure nothing is left on disk.
func (s *StagingService) Stage(r io.Reader, suffix string) (*StagedFile, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	f, err := os.CreateTemp(s.dir, tempPrefix+"*"+sanitizeSuffix(suffix))
	if err != nil {
		return nil, fmt.Errorf("failed to create staging file: %w", err)
	}

	size, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(f.Name())
		if copyErr != nil {
			return nil, fmt.Errorf("failed to stage upload: %w", copyErr)
		}
		return nil, fmt.Errorf("failed to stage upload: %w", closeErr)
	}

	s.mu.Lock()
	s.active++
	s.mu.Unlock()

	return &StagedFile{Path: f.Name(), Size: size, service: s}, nil
}

// With stages r, hands its path to fn and removes the file when fn returns,
// whether it succeeded, failed or panicked.
func (s *StagingService) With(r io.Reader, suffix string, fn func(path string) error) error {
	staged, err := s.Stage(r, suffix)
	if err != nil {
		return err
	}
	defer staged.Release()
	return fn(staged.Path)
}

// Export writes data to path via a temporary file in the same directory
// that is renamed into place, so readers never see a partial file.
func (s *StagingService) Export(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.CreateTemp(dir, tempPrefix+"*"+filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	tmp := f.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write export file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close export file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to move export into place: %w", err)
	}
	committed = true
	return nil
}

// Sweep removes staged files left behind by a previous process.
func (s *StagingService) Sweep() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read staging directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			s.logger.Warning("Could not remove stale staging file %s: %v", entry.Name(), err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("Removed %d stale staging files", removed)
	}
	return removed, nil
}

// Active returns how many staged files have not been released yet.
func (s *StagingService) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Release deletes the staged file. It is safe to call more than once.
func (f *StagedFile) Release() error {
	var err error
	f.once.Do(func() {
		if rmErr := os.Remove(f.Path); rmErr != nil && !os.IsNotExist(rmErr) {
			err = fmt.Errorf("failed to remove staged file: %w", rmErr)
			f.service.logger.Error("Error removing staged file %s: %v", f.Path, rmErr)
		}
		f.service.mu.Lock()
		f.service.active--
		f.service.mu.Unlock()
	})
	return err
}

// sanitizeSuffix keeps only a short extension from a client supplied name.
func sanitizeSuffix(suffix string) string {
	ext := strings.ToLower(filepath.Ext(suffix))
	if len(ext) > 8 || strings.ContainsAny(ext, `/\`) {
		return ""
	}
	return ext
}
