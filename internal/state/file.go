package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"cadence/internal/models"
	"cadence/pkg/logging"
)

const DefaultPath = "bot_state.json"

// FileStore keeps state in a JSON file, replaced atomically on each save.
type FileStore struct {
	path   string
	logger logging.Logger
}

func NewFileStore(path string, logger logging.Logger) *FileStore {
	if path == "" {
		path = DefaultPath
	}
	return &FileStore{path: path, logger: logger}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(_ context.Context) *models.BotState {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.WithField("path", s.path).Info("No state file found, starting fresh")
		return models.NewBotState()
	}
	if err != nil {
		s.logger.WithError(err).WithField("path", s.path).Warn("Failed to read state file, using defaults")
		return models.NewBotState()
	}

	var st models.BotState
	if err := json.Unmarshal(raw, &st); err != nil {
		s.logger.WithError(err).WithField("path", s.path).Warn("Malformed state file, using defaults")
		return models.NewBotState()
	}
	st.Normalize()
	return &st
}

func (s *FileStore) Save(_ context.Context, st *models.BotState) error {
	if err := s.writeAtomic(st); err != nil {
		return &models.PersistenceError{Path: s.path, Err: err}
	}
	return nil
}

func (s *FileStore) writeAtomic(st *models.BotState) (err error) {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(st); err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return os.Rename(tmpPath, s.path)
}
