package store

import (
	"errors"
	"os"

	"markd/types"
)

// WriteRunMarker records the outcome of a daily pipeline run.
func (s *Store) WriteRunMarker(m *types.RunMarker) error {
	return writeJSONAtomic(s.path(lastRunFile), m)
}

// WriteEmailRunMarker records the completion of an email dispatch pass.
func (s *Store) WriteEmailRunMarker(m *types.RunMarker) error {
	return writeJSONAtomic(s.path(lastEmailFile), m)
}

// ReadRunMarker returns the last daily-run marker, or nil if none exists.
func (s *Store) ReadRunMarker() (*types.RunMarker, error) {
	return s.readMarker(lastRunFile)
}

// ReadEmailRunMarker returns the last email-run marker, or nil if none
// exists.
func (s *Store) ReadEmailRunMarker() (*types.RunMarker, error) {
	return s.readMarker(lastEmailFile)
}

func (s *Store) readMarker(name string) (*types.RunMarker, error) {
	var m types.RunMarker
	err := readJSON(s.path(name), &m)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
