package tasks

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"markd/internal/store"
	"markd/types"
)

// groupCodePattern extracts the product-group code embedded in downloaded
// filenames, e.g. violations_group2_2025-01-10_to_2025-01-10_20250111_040210.csv.
var groupCodePattern = regexp.MustCompile(`group(\d+)`)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// IngestReports scans a certificate's downloaded CSV/Excel files, counts
// violation rows per product group, and writes the consolidated
// violations_{date}.json for yesterday. Source files are retained for
// manual analysis. Returns nil when no violations were recorded.
func IngestReports(st *store.Store, certName string) (*types.ViolationReport, error) {
	logger := zap.L().With(zap.String("task", "ingest_reports"), zap.String("certificate", certName))

	files, err := st.ListReportFiles(certName)
	if err != nil {
		return nil, fmt.Errorf("list report files: %w", err)
	}
	logger.Info("ingest_reports started", zap.Int("files", len(files)))

	report := &types.ViolationReport{
		Date:       types.Yesterday(time.Now()),
		Violations: map[string]int{},
	}

	for _, path := range files {
		name := filepath.Base(path)
		match := groupCodePattern.FindStringSubmatch(name)
		if match == nil {
			logger.Warn("no group code in filename", zap.String("file", name))
			continue
		}
		code, _ := strconv.Atoi(match[1])
		groupName, ok := types.ProductGroupName(code)
		if !ok {
			logger.Warn("unknown product group code", zap.Int("code", code), zap.String("file", name))
			continue
		}

		var count int
		switch strings.ToLower(filepath.Ext(name)) {
		case ".xlsx", ".xls":
			count, err = countExcelRows(path)
		default:
			count, err = countCSVRows(path)
		}
		if err != nil {
			logger.Error("file unreadable", zap.String("file", name), zap.Error(err))
			continue
		}

		report.Violations[groupName] = count
		logger.Info("file ingested",
			zap.String("file", name),
			zap.String("group", groupName),
			zap.Int("violations", count))
	}

	if len(report.Violations) == 0 {
		logger.Info("ingest_reports complete, nothing recorded")
		return nil, nil
	}
	if err := st.WriteViolationReport(certName, report); err != nil {
		return nil, fmt.Errorf("write violation report: %w", err)
	}
	logger.Info("ingest_reports complete",
		zap.String("date", report.Date),
		zap.Int("groups", len(report.Violations)))
	return report, nil
}

// csvDecoders is the prioritized encoding ladder for result files. The API
// serves Cyrillic CSV in either windows-1251 or UTF-8 depending on the
// product group backend.
var csvDecoders = []struct {
	name   string
	decode func([]byte) (string, bool)
}{
	{"cp1251", decodeCharmapFunc(charmap.Windows1251)},
	{"utf-8-sig", decodeUTF8SIG},
	{"utf-8", decodeUTF8},
	{"windows-1251", decodeCharmapFunc(charmap.Windows1251)},
	{"latin1", decodeCharmapFunc(charmap.ISO8859_1)},
}

// countCSVRows counts non-empty data lines, excluding the header, trying
// each encoding in the ladder until one decodes cleanly.
func countCSVRows(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	for _, enc := range csvDecoders {
		text, ok := enc.decode(raw)
		if !ok {
			continue
		}
		return countDataLines(text), nil
	}
	return 0, fmt.Errorf("no encoding in ladder can decode %s", filepath.Base(path))
}

func countDataLines(text string) int {
	lines := strings.Split(text, "\n")
	header := ""
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			header = line
			break
		}
	}
	if header == "" {
		return 0
	}
	count := 0
	for _, line := range lines {
		if strings.TrimSpace(line) != "" && line != header {
			count++
		}
	}
	return count
}

func countExcelRows(path string) (int, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return 0, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return 0, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return 0, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	// First row is the header.
	return len(rows) - 1, nil
}

func decodeUTF8(raw []byte) (string, bool) {
	if !utf8.Valid(raw) {
		return "", false
	}
	return string(raw), true
}

func decodeUTF8SIG(raw []byte) (string, bool) {
	if !bytes.HasPrefix(raw, utf8BOM) {
		return "", false
	}
	return decodeUTF8(bytes.TrimPrefix(raw, utf8BOM))
}

func decodeCharmapFunc(cm *charmap.Charmap) func([]byte) (string, bool) {
	return func(raw []byte) (string, bool) {
		decoded, err := cm.NewDecoder().Bytes(raw)
		if err != nil {
			return "", false
		}
		return string(decoded), true
	}
}
