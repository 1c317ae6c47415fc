// Package series persists balance readings as monthly JSON files and keeps
// the derived period index and recent window next to them.
package series

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"DormWatch/internal/model"
)

// WindowSize is the number of readings kept in the recent window.
const WindowSize = 30

const (
	indexFile  = "time.json"
	windowFile = "last_30_records.json"
	lockFile   = ".lock"
)

// Store reads and writes the series under one base directory.
type Store struct {
	dir string
	log zerolog.Logger
}

// NewStore creates a store rooted at dir. The directory is created on first
// write.
func NewStore(dir string, log zerolog.Logger) *Store {
	return &Store{dir: dir, log: log.With().Str("component", "series").Logger()}
}

// Dir returns the base directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) periodPath(period string) string {
	return filepath.Join(s.dir, period+".json")
}

// Load returns the readings of one period. A missing or corrupt file yields
// an empty series together with the *StorageError describing it.
func (s *Store) Load(period string) ([]model.Reading, error) {
	var out []model.Reading
	if err := readJSON(s.periodPath(period), &out); err != nil {
		return []model.Reading{}, err
	}
	if out == nil {
		out = []model.Reading{}
	}
	return out, nil
}

// Append adds r to the file of its period and returns the updated series.
// The series is returned even when writing fails.
func (s *Store) Append(r model.Reading) ([]model.Reading, error) {
	period := r.Period()
	path := s.periodPath(period)

	series, err := s.Load(period)
	if err != nil {
		if errors.Is(err, errNotExist) {
			s.log.Info().Str("period", period).Msg("starting new period file")
		} else {
			s.log.Warn().Err(err).Str("period", period).Msg("period file unreadable, starting empty")
		}
	}

	series = append(series, r)
	if err := s.ensureDir(); err != nil {
		return series, err
	}
	if err := writeJSON(path, series); err != nil {
		return series, err
	}
	s.log.Info().Str("file", path).Int("entries", len(series)).Msg("reading appended")
	return series, nil
}

// RebuildWindow refreshes the period index and rewrites the recent window
// from current (the series of period) backfilled with the tail of the
// preceding period.
func (s *Store) RebuildWindow(period string, current []model.Reading) error {
	index, err := s.RebuildIndex()
	if err != nil {
		return err
	}

	window := make([]model.Reading, 0, WindowSize)
	if len(current) < WindowSize {
		if prev, ok := precedingPeriod(index, period); ok {
			older, err := s.Load(prev)
			if err != nil {
				s.log.Warn().Err(err).Str("period", prev).Msg("preceding period unreadable, skipping backfill")
			}
			need := WindowSize - len(current)
			if need > len(older) {
				need = len(older)
			}
			window = append(window, older[len(older)-need:]...)
		}
	}
	window = append(window, current...)
	if len(window) > WindowSize {
		window = window[len(window)-WindowSize:]
	}

	if err := writeJSON(filepath.Join(s.dir, windowFile), window); err != nil {
		return err
	}
	s.log.Info().Int("entries", len(window)).Msg("recent window rebuilt")
	return nil
}

// RebuildIndex rescans the directory and rewrites the period index.
func (s *Store) RebuildIndex() ([]string, error) {
	if err := s.ensureDir(); err != nil {
		return nil, err
	}
	periods, skipped, err := scanPeriods(s.dir)
	if err != nil {
		return nil, &StorageError{Op: "scan", Path: s.dir, Err: err}
	}
	for _, name := range skipped {
		s.log.Warn().Str("file", name).Msg("ignoring file with invalid period name")
	}
	if err := writeJSON(filepath.Join(s.dir, indexFile), periods); err != nil {
		return periods, err
	}
	s.log.Debug().Strs("periods", periods).Msg("period index updated")
	return periods, nil
}

// Window returns the stored recent window.
func (s *Store) Window() ([]model.Reading, error) {
	var out []model.Reading
	if err := readJSON(filepath.Join(s.dir, windowFile), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Index returns the stored period index.
func (s *Store) Index() ([]string, error) {
	var out []string
	if err := readJSON(filepath.Join(s.dir, indexFile), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Lock takes the exclusive run lock for the store directory, blocking until
// it is available or ctx is done. The returned func releases it.
func (s *Store) Lock(ctx context.Context) (func(), error) {
	if err := s.ensureDir(); err != nil {
		return nil, err
	}
	path := filepath.Join(s.dir, lockFile)
	unlock, err := lockPath(ctx, path)
	if err != nil {
		return nil, &StorageError{Op: "lock", Path: path, Err: err}
	}
	return unlock, nil
}

func (s *Store) ensureDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return &StorageError{Op: "mkdir", Path: s.dir, Err: fmt.Errorf("create data dir: %w", err)}
	}
	return nil
}
