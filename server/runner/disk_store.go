package runner

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// DiskStore persists run history to disk as one JSON file per run.
type DiskStore struct {
	dir      string
	logger   *slog.Logger
	maxCount int
	runs     []RunStatus // protected by mu, most recent first
	mu       sync.Mutex
}

// NewDiskStore creates a new disk-backed store keeping up to maxCount runs.
// The directory is created if it doesn't exist, and existing runs are loaded.
func NewDiskStore(dir string, maxCount int, logger *slog.Logger) (*DiskStore, error) {
	if maxCount <= 0 {
		return nil, fmt.Errorf("max count must be positive, got %d", maxCount)
	}

	s := &DiskStore{
		dir:      dir,
		logger:   logger.With("component", "disk_store", "dir", dir),
		maxCount: maxCount,
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DiskStore) History() []RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]RunSummary, len(s.runs))
	for i, run := range s.runs {
		result[i] = run.RunSummary
	}
	return result
}

func (s *DiskStore) Get(id string) (RunStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, run := range s.runs {
		if run.ID == id {
			return cloneRun(run), true
		}
	}
	return RunStatus{}, false
}

// Save writes the run to disk and drops the oldest run beyond the limit,
// removing its file too.
func (s *DiskStore) Save(run RunStatus) error {
	if run.StartedAt == nil {
		return fmt.Errorf("cannot save run without start time")
	}
	if run.ID == "" {
		run.ID = run.CalculateID()
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(run.ID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run file: %w", err)
	}

	s.runs = append([]RunStatus{cloneRun(run)}, s.runs...)
	for len(s.runs) > s.maxCount {
		oldest := s.runs[len(s.runs)-1]
		s.runs = s.runs[:len(s.runs)-1]
		if err := os.Remove(s.path(oldest.ID)); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove old run file", "id", oldest.ID, "error", err)
		}
	}

	s.logger.Debug("saved run to disk", "path", path)
	return nil
}

// Reload re-reads all runs from disk. Unreadable files are skipped.
func (s *DiskStore) Reload() error {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read state directory: %w", err)
	}

	runs := make([]RunStatus, 0, len(files))
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}

		path := filepath.Join(s.dir, file.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("failed to read run file", "file", path, "error", err)
			continue
		}

		var run RunStatus
		if err := json.Unmarshal(data, &run); err != nil {
			s.logger.Warn("failed to parse run file", "file", path, "error", err)
			continue
		}
		if run.ID == "" {
			run.ID = strings.TrimSuffix(file.Name(), ".json")
		}
		runs = append(runs, run)
	}

	// Most recent first; runs without a start time go last.
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].StartedAt == nil {
			return false
		}
		if runs[j].StartedAt == nil {
			return true
		}
		return runs[i].StartedAt.After(*runs[j].StartedAt)
	})
	if len(runs) > s.maxCount {
		runs = runs[:s.maxCount]
	}

	s.mu.Lock()
	s.runs = runs
	s.mu.Unlock()

	s.logger.Info("loaded run history from disk", "count", len(runs))
	return nil
}

func (s *DiskStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}
