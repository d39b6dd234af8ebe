package tasks

import (
	"encoding/json"
	"fmt"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"markd/internal/store"
	"markd/types"
)

type sentMessage struct {
	addr string
	from string
	to   []string
	msg  string
}

func captureSMTP(t *testing.T) *[]sentMessage {
	t.Helper()
	var sent []sentMessage
	orig := smtpSendMail
	smtpSendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		sent = append(sent, sentMessage{addr: addr, from: from, to: to, msg: string(msg)})
		return nil
	}
	t.Cleanup(func() { smtpSendMail = orig })
	return &sent
}

func writeEmailConfig(t *testing.T, st *store.Store, cfg types.EmailConfig) {
	t.Helper()
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(st.Dir(), "email_config.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func testRegionReport() *types.RegionReport {
	return &types.RegionReport{
		Date:         "2025-01-10",
		Certificates: []string{"ООО Ромашка - ТЦ-1"},
		CertReports: map[string]map[string]int{
			"ООО Ромашка - ТЦ-1": {"Пиво": 3, "Молочная продукция": 2},
		},
		Violations: map[string]int{"Пиво": 3, "Молочная продукция": 2},
		Total:      5,
	}
}

func TestSendRegionalReports_UsesRegionRecipients(t *testing.T) {
	sent := captureSMTP(t)
	st := store.New(t.TempDir())
	writeEmailConfig(t, st, types.EmailConfig{
		SMTPServer:      "smtp.example.com",
		SMTPPort:        587,
		SenderEmail:     "bot@example.com",
		SenderPassword:  "secret",
		RecipientEmails: []string{"fallback@example.com"},
	})
	if err := st.SaveRegions(map[string]*types.Region{
		"r1": {Name: "Центральный", Emails: []string{"region@example.com"}, TCList: []string{"ТЦ-1"}},
	}); err != nil {
		t.Fatal(err)
	}

	ok, err := SendRegionalReports(st, map[string]*types.RegionReport{"r1": testRegionReport()})
	if err != nil {
		t.Fatalf("SendRegionalReports() error = %v", err)
	}
	if !ok {
		t.Error("SendRegionalReports() = false, want true")
	}
	if len(*sent) != 1 {
		t.Fatalf("sent = %d messages, want 1", len(*sent))
	}

	m := (*sent)[0]
	if m.addr != "smtp.example.com:587" {
		t.Errorf("addr = %q", m.addr)
	}
	if len(m.to) != 1 || m.to[0] != "region@example.com" {
		t.Errorf("to = %v, want region list, not fallback", m.to)
	}
	if !strings.Contains(m.msg, "Центральный") {
		t.Error("message body missing region name")
	}
	if !strings.Contains(m.msg, "Всего нарушений:") {
		t.Error("message body missing total row")
	}

	// The email run marker is written after dispatch.
	marker, err := st.ReadEmailRunMarker()
	if err != nil {
		t.Fatal(err)
	}
	if marker == nil || marker.LastRun.IsZero() {
		t.Errorf("email run marker = %+v", marker)
	}
}

func TestSendRegionalReports_FallbackRecipients(t *testing.T) {
	sent := captureSMTP(t)
	st := store.New(t.TempDir())
	writeEmailConfig(t, st, types.EmailConfig{
		SMTPServer:      "smtp.example.com",
		SMTPPort:        587,
		SenderEmail:     "bot@example.com",
		RecipientEmails: []string{"fallback@example.com"},
	})

	// Undefined bucket has no region entry, so the global list applies.
	ok, err := SendRegionalReports(st, map[string]*types.RegionReport{
		types.UndefinedRegion: testRegionReport(),
	})
	if err != nil {
		t.Fatalf("SendRegionalReports() error = %v", err)
	}
	if !ok {
		t.Error("SendRegionalReports() = false, want true")
	}
	if len(*sent) != 1 || (*sent)[0].to[0] != "fallback@example.com" {
		t.Errorf("sent = %+v, want fallback recipient", *sent)
	}
	if !strings.Contains((*sent)[0].msg, "Undefined") {
		t.Error("subject should carry the Undefined bucket name")
	}
}

func TestSendRegionalReports_OneFailureFlipsResult(t *testing.T) {
	calls := 0
	orig := smtpSendMail
	smtpSendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("connection refused")
		}
		return nil
	}
	t.Cleanup(func() { smtpSendMail = orig })

	st := store.New(t.TempDir())
	writeEmailConfig(t, st, types.EmailConfig{
		SMTPServer:      "smtp.example.com",
		SMTPPort:        587,
		SenderEmail:     "bot@example.com",
		RecipientEmails: []string{"fallback@example.com"},
	})

	reports := map[string]*types.RegionReport{
		"a": testRegionReport(),
		"b": testRegionReport(),
	}
	ok, err := SendRegionalReports(st, reports)
	if err != nil {
		t.Fatalf("SendRegionalReports() error = %v", err)
	}
	if ok {
		t.Error("SendRegionalReports() = true, want false after one failure")
	}
	if calls != 2 {
		t.Errorf("send attempts = %d, want 2 (failure must not stop the rest)", calls)
	}

	marker, err := st.ReadEmailRunMarker()
	if err != nil {
		t.Fatal(err)
	}
	if marker == nil {
		t.Error("email run marker missing despite partial failure")
	}
}

func TestSendRegionalReports_MissingConfigSkips(t *testing.T) {
	sent := captureSMTP(t)
	st := store.New(t.TempDir())

	ok, err := SendRegionalReports(st, map[string]*types.RegionReport{"r1": testRegionReport()})
	if err != nil {
		t.Fatalf("SendRegionalReports() error = %v", err)
	}
	if ok {
		t.Error("SendRegionalReports() = true, want false without config")
	}
	if len(*sent) != 0 {
		t.Errorf("sent = %+v, want none", *sent)
	}
}

func TestRenderRegionHTML(t *testing.T) {
	body := renderRegionHTML("Центральный", testRegionReport())

	for _, want := range []string{
		"Отчет о нарушениях маркировки по региону Центральный",
		"2025-01-10",
		"данные за вчерашний день",
		"Торговая точка: ООО Ромашка - ТЦ-1",
		"Товарная группа",
		"Количество нарушений",
		"Всего нарушений:",
		">5<",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestCollectRecipients(t *testing.T) {
	tests := []struct {
		name     string
		region   []string
		fallback []string
		want     []string
	}{
		{"region wins", []string{"a@x.com"}, []string{"b@x.com"}, []string{"a@x.com"}},
		{"fallback when empty", nil, []string{"b@x.com"}, []string{"b@x.com"}},
		{"dedup and trim", []string{" a@x.com ", "a@x.com", ""}, nil, []string{"a@x.com"}},
		{"both empty", nil, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collectRecipients(tt.region, tt.fallback)
			if len(got) != len(tt.want) {
				t.Fatalf("collectRecipients() = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("recipient[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
