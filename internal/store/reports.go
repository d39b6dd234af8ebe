package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"markd/types"
)

// WriteViolationReport writes the consolidated per-certificate document for
// its date, overwriting any previous report for that date.
func (s *Store) WriteViolationReport(certName string, report *types.ViolationReport) error {
	dir, err := s.OutputDir(certName)
	if err != nil {
		return err
	}
	return writeJSONAtomic(filepath.Join(dir, fmt.Sprintf("violations_%s.json", report.Date)), report)
}

// ReadViolationReport loads a certificate's report for the given date, or
// nil when the certificate has nothing for that day.
func (s *Store) ReadViolationReport(certName, date string) (*types.ViolationReport, error) {
	path := filepath.Join(s.dir, outputDir, certName, fmt.Sprintf("violations_%s.json", date))
	var report types.ViolationReport
	err := readJSON(path, &report)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// LoadAllReports collects every certificate's violation document for the
// given date, keyed by certificate directory name. Counts stay untyped for
// the aggregator's coercion rules.
func (s *Store) LoadAllReports(date string) (map[string]*types.ViolationDocument, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, outputDir))
	if errors.Is(err, os.ErrNotExist) {
		return map[string]*types.ViolationDocument{}, nil
	}
	if err != nil {
		return nil, err
	}
	reports := map[string]*types.ViolationDocument{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(s.dir, outputDir, e.Name(), fmt.Sprintf("violations_%s.json", date))
		var doc types.ViolationDocument
		err := readJSON(path, &doc)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("report for %s: %w", e.Name(), err)
		}
		reports[e.Name()] = &doc
	}
	return reports, nil
}

// ListReportFiles returns the downloaded CSV/Excel files awaiting
// ingestion for a certificate, in directory order.
func (s *Store) ListReportFiles(certName string) ([]string, error) {
	dir := filepath.Join(s.dir, outputDir, certName, "reports")
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".csv", ".xlsx", ".xls":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}
