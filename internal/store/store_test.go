package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"markd/types"
)

func init() {
	logger, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(logger)
}

func TestMergeTokens_PreservesOtherEntries(t *testing.T) {
	st := New(t.TempDir())

	first := map[string]string{
		"Магазин А - ТЦ-1": "token-a",
		"Магазин Б":        "token-b",
	}
	t0 := time.Date(2025, 1, 10, 3, 0, 0, 0, time.UTC)
	if err := st.MergeTokens(first, t0); err != nil {
		t.Fatalf("MergeTokens() error = %v", err)
	}

	second := map[string]string{"Магазин А - ТЦ-1": "token-a2"}
	t1 := t0.Add(24 * time.Hour)
	if err := st.MergeTokens(second, t1); err != nil {
		t.Fatalf("MergeTokens() error = %v", err)
	}

	ts, err := st.LoadTokens()
	if err != nil {
		t.Fatalf("LoadTokens() error = %v", err)
	}
	if got := ts.Tokens["Магазин А - ТЦ-1"]; got != "token-a2" {
		t.Errorf("merged token = %q, want %q", got, "token-a2")
	}
	if got := ts.Tokens["Магазин Б"]; got != "token-b" {
		t.Errorf("untouched token = %q, want %q", got, "token-b")
	}
	if !ts.GeneratedAt.Equal(t1) {
		t.Errorf("GeneratedAt = %v, want %v", ts.GeneratedAt, t1)
	}
}

func TestMergeTokens_EmptyInput(t *testing.T) {
	st := New(t.TempDir())
	if err := st.MergeTokens(map[string]string{}, time.Now()); err == nil {
		t.Error("MergeTokens() expected error for empty input")
	}
	if _, err := os.Stat(filepath.Join(st.Dir(), tokensFile)); !os.IsNotExist(err) {
		t.Error("token store file should not exist after rejected merge")
	}
}

func TestLoadTokens_MissingFile(t *testing.T) {
	st := New(t.TempDir())
	ts, err := st.LoadTokens()
	if err != nil {
		t.Fatalf("LoadTokens() error = %v", err)
	}
	if len(ts.Tokens) != 0 {
		t.Errorf("tokens = %v, want empty", ts.Tokens)
	}
}

func TestSaveCertificates_RejectsDuplicateThumbprint(t *testing.T) {
	st := New(t.TempDir())
	certs := []types.Certificate{
		{Name: "ООО Ромашка", Thumbprint: "AABBCC"},
		{Name: "ООО Лютик", Thumbprint: "aabbcc"},
	}
	if err := st.SaveCertificates(certs); err == nil {
		t.Error("SaveCertificates() expected error for duplicate thumbprint")
	}
}

func TestSaveCertificates_SyncsThumbprintFile(t *testing.T) {
	st := New(t.TempDir())
	certs := []types.Certificate{
		{Name: "ООО Ромашка", Thumbprint: "AABBCC"},
		{Name: "ООО Лютик", Thumbprint: "DDEEFF"},
	}
	if err := st.SaveCertificates(certs); err != nil {
		t.Fatalf("SaveCertificates() error = %v", err)
	}

	loaded, err := st.LoadCertificates()
	if err != nil {
		t.Fatalf("LoadCertificates() error = %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("certificates = %d, want 2", len(loaded))
	}

	raw, err := os.ReadFile(filepath.Join(st.Dir(), thumbprintsFile))
	if err != nil {
		t.Fatalf("read thumbprint file: %v", err)
	}
	want := "aabbcc\nddeeff\n"
	if string(raw) != want {
		t.Errorf("thumbprint file = %q, want %q", string(raw), want)
	}
}

func TestOutletPairs_RoundTrip(t *testing.T) {
	st := New(t.TempDir())
	if err := st.SaveOutletPair("ООО Ромашка", types.OutletPair{Outlet: "ТЦ-1", INN: "7701234567"}); err != nil {
		t.Fatalf("SaveOutletPair() error = %v", err)
	}
	if err := st.SaveOutletPair("ООО Ромашка", types.OutletPair{Outlet: "ТЦ-2", INN: ""}); err != nil {
		t.Fatalf("SaveOutletPair() error = %v", err)
	}

	pairs, err := st.LoadOutletPairs("ООО Ромашка")
	if err != nil {
		t.Fatalf("LoadOutletPairs() error = %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("pairs = %d, want 2", len(pairs))
	}
	if pairs[0].Outlet != "ТЦ-1" || pairs[0].INN != "7701234567" {
		t.Errorf("first pair = %+v", pairs[0])
	}
	if pairs[1].Outlet != "ТЦ-2" || pairs[1].INN != "" {
		t.Errorf("second pair = %+v", pairs[1])
	}
}

func TestMCHDFlag(t *testing.T) {
	st := New(t.TempDir())
	if st.UseMCHD("ООО Ромашка") {
		t.Error("UseMCHD() = true with no settings file")
	}
	if err := st.SetMCHD("ООО Ромашка", true); err != nil {
		t.Fatalf("SetMCHD() error = %v", err)
	}
	if !st.UseMCHD("ООО Ромашка") {
		t.Error("UseMCHD() = false after enabling")
	}
	if st.UseMCHD("ООО Лютик") {
		t.Error("UseMCHD() = true for unrelated certificate")
	}
	if err := st.SetMCHD("ООО Ромашка", false); err != nil {
		t.Fatalf("SetMCHD(false) error = %v", err)
	}
	if st.UseMCHD("ООО Ромашка") {
		t.Error("UseMCHD() = true after disabling")
	}
}

func TestPending_RoundTripAndDrain(t *testing.T) {
	st := New(t.TempDir())
	cert := "ООО Ромашка - ТЦ-1"

	tasks := []types.PendingTask{
		{TaskID: "task-1", GroupCode: 2},
		{TaskID: "task-2", GroupCode: 5},
	}
	if err := st.WritePending(cert, tasks); err != nil {
		t.Fatalf("WritePending() error = %v", err)
	}

	got, err := st.ReadPending(cert)
	if err != nil {
		t.Fatalf("ReadPending() error = %v", err)
	}
	if len(got) != 2 || got[0].TaskID != "task-1" || got[1].GroupCode != 5 {
		t.Errorf("pending = %+v, want %+v", got, tasks)
	}

	// Draining the queue removes the file entirely.
	if err := st.WritePending(cert, nil); err != nil {
		t.Fatalf("WritePending(nil) error = %v", err)
	}
	if _, err := os.Stat(st.pendingPath(cert)); !os.IsNotExist(err) {
		t.Error("pending file should be removed when queue drains")
	}
	got, err = st.ReadPending(cert)
	if err != nil {
		t.Fatalf("ReadPending() after drain error = %v", err)
	}
	if got != nil {
		t.Errorf("pending after drain = %+v, want nil", got)
	}
}

func TestReadPending_MalformedLine(t *testing.T) {
	st := New(t.TempDir())
	cert := "cert"
	if _, err := st.OutputDir(cert); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(st.pendingPath(cert), []byte("no-comma-here\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := st.ReadPending(cert); err == nil {
		t.Error("ReadPending() expected error for malformed line")
	}
}

func TestViolationReport_RoundTrip(t *testing.T) {
	st := New(t.TempDir())
	report := &types.ViolationReport{
		Date:       "2025-01-10",
		Violations: map[string]int{"Табачная продукция": 5, "Молочная продукция": 3},
	}
	if err := st.WriteViolationReport("ООО Ромашка", report); err != nil {
		t.Fatalf("WriteViolationReport() error = %v", err)
	}

	got, err := st.ReadViolationReport("ООО Ромашка", "2025-01-10")
	if err != nil {
		t.Fatalf("ReadViolationReport() error = %v", err)
	}
	if got == nil || got.Violations["Табачная продукция"] != 5 {
		t.Errorf("report = %+v", got)
	}

	missing, err := st.ReadViolationReport("ООО Ромашка", "2025-01-11")
	if err != nil {
		t.Fatalf("ReadViolationReport() missing date error = %v", err)
	}
	if missing != nil {
		t.Errorf("report for missing date = %+v, want nil", missing)
	}
}

func TestLoadProductGroups_FallsBackToTaxonomy(t *testing.T) {
	st := New(t.TempDir())
	codes := st.LoadProductGroups()
	if len(codes) != len(types.ProductGroups) {
		t.Errorf("codes = %d, want full taxonomy of %d", len(codes), len(types.ProductGroups))
	}
}

func TestLoadProductGroups_ReadsFile(t *testing.T) {
	st := New(t.TempDir())
	content := "2\n\n5\nnot-a-number\n8\n"
	if err := os.WriteFile(filepath.Join(st.Dir(), productsFile), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	codes := st.LoadProductGroups()
	want := []int{2, 5, 8}
	if len(codes) != len(want) {
		t.Fatalf("codes = %v, want %v", codes, want)
	}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("codes[%d] = %d, want %d", i, codes[i], want[i])
		}
	}
}

func TestWriteFileAtomic_NoPartialContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "target.json")
	if err := writeFileAtomic(path, []byte("first")); err != nil {
		t.Fatal(err)
	}
	if err := writeFileAtomic(path, []byte("second")); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "second" {
		t.Errorf("content = %q, want %q", string(raw), "second")
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".target.json.") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}
