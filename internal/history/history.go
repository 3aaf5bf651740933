// Package history keeps a YAML record of past deployments on the host.
//
// Recording is optional. Each run appends one [Record]; the file is rewritten
// atomically and trimmed to a fixed number of entries.
package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Outcome is the final state of a recorded deployment.
type Outcome string

// Outcome values.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// Record is a single deployment entry.
type Record struct {
	ID          string    `yaml:"id"`
	Service     string    `yaml:"service"`
	Revision    string    `yaml:"revision,omitempty"`
	StartedAt   time.Time `yaml:"started_at"`
	FinishedAt  time.Time `yaml:"finished_at"`
	Outcome     Outcome   `yaml:"outcome"`
	FailedStage string    `yaml:"failed_stage,omitempty"`
	ExitCode    int       `yaml:"exit_code"`
	Error       string    `yaml:"error,omitempty"`
}

// File is the on-disk layout of the history file.
type File struct {
	Deployments []Record `yaml:"deployments"`
}

// Store reads and appends deployment records.
type Store struct {
	path string
	keep int
}

// NewStore creates a [Store] for path retaining at most keep records.
// A keep of zero retains everything.
func NewStore(path string, keep int) *Store {
	return &Store{path: path, keep: keep}
}

// Path returns the history file location.
func (s *Store) Path() string {
	return s.path
}

// Read returns all records, oldest first. A missing file yields no records.
func (s *Store) Read() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read deployment history: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse deployment history: %w", err)
	}
	return f.Deployments, nil
}

// Last returns up to n of the most recent records, newest first.
func (s *Store) Last(n int) ([]Record, error) {
	records, err := s.Read()
	if err != nil {
		return nil, err
	}
	if n > 0 && len(records) > n {
		records = records[len(records)-n:]
	}
	out := make([]Record, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		out = append(out, records[i])
	}
	return out, nil
}

// Append adds rec to the history file, creating it and its directory if needed.
func (s *Store) Append(rec Record) error {
	records, err := s.Read()
	if err != nil {
		return err
	}

	records = append(records, rec)
	if s.keep > 0 && len(records) > s.keep {
		records = records[len(records)-s.keep:]
	}

	data, err := yaml.Marshal(&File{Deployments: records})
	if err != nil {
		return fmt.Errorf("failed to marshal deployment history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to write deployment history: %w", err)
	}

	// Write to a temp file, then rename over the original
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write deployment history: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write deployment history: %w", err)
	}

	return nil
}
