// Package store persists all shared pipeline state as flat files under a
// single data directory. Writes are whole-file replacements through a
// temp-file rename, so a crash mid-write never leaves a corrupt store.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	tokensFile      = "true_api_tokens.json"
	certsFile       = "certificates.json"
	thumbprintsFile = "cert_thumbprints.txt"
	certINNsFile    = "cert_inns.json"
	mchdFile        = "mchd_settings.json"
	regionsFile     = "regions.json"
	emailFile       = "email_config.json"
	productsFile    = "products.txt"
	lastRunFile     = "last_run.json"
	lastEmailFile   = "last_email_run.json"
	outputDir       = "output"
)

// Store reads and writes the on-disk state shared between pipeline stages.
// One Store is constructed at process start and passed to every component.
type Store struct {
	dir string
}

// New creates a Store rooted at dir.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the data directory root.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// OutputDir returns the per-certificate output directory, creating it if
// needed.
func (s *Store) OutputDir(certName string) (string, error) {
	dir := filepath.Join(s.dir, outputDir, certName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	return dir, nil
}

// ReportsDir returns the per-certificate downloaded-reports directory,
// creating it if needed.
func (s *Store) ReportsDir(certName string) (string, error) {
	base, err := s.OutputDir(certName)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, "reports")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}
	return dir, nil
}

// writeFileAtomic replaces path with data via a same-directory temp file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	return writeFileAtomic(path, append(data, '\n'))
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
