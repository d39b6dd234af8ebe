package types

import "time"

// Certificate identifies a cryptographic signing identity registered with
// the marking system. Thumbprints are lowercase hex and unique across the
// registry.
type Certificate struct {
	Name       string `json:"name"`
	Thumbprint string `json:"thumbprint"`
	MultiINN   bool   `json:"multi_inn,omitempty"`
}

// OutletPair associates an outlet (ТС) with the tax identifier (ИНН) used
// to disambiguate sign-in for that outlet. INN may be empty, meaning the
// outlet authenticates without tax-identifier disambiguation.
type OutletPair struct {
	Outlet string
	INN    string
}

// TokenStore is the persisted shape of true_api_tokens.json. Keys are
// either "{certificate name} - {outlet}" or the plain certificate name.
// GeneratedAt is shared across the whole store, not per token.
type TokenStore struct {
	Tokens      map[string]string `json:"tokens"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// PendingTask is one outstanding remote export request, persisted as a
// "task_id,group_code" line in a certificate's pending_tasks.txt.
type PendingTask struct {
	TaskID    string
	GroupCode int
}

// ViolationReport is the consolidated per-certificate document written to
// output/{certificate}/violations_{date}.json. Violations maps product
// group names to row counts.
type ViolationReport struct {
	Date       string         `json:"date"`
	Violations map[string]int `json:"violations"`
}

// ViolationDocument is the tolerant read-side view of a violation report.
// Counts are kept untyped so the aggregator can coerce and warn on
// malformed values instead of failing the whole load.
type ViolationDocument struct {
	Date       string         `json:"date"`
	Violations map[string]any `json:"violations"`
}

// Region groups outlets for report routing. TCList membership is exclusive:
// an outlet belongs to at most one region at a time.
type Region struct {
	Name   string   `json:"name"`
	Emails []string `json:"emails"`
	TCList []string `json:"tc_list"`
}

// RegionReport is the derived per-region aggregate for one business date.
// CertReports keeps each certificate's breakdown untouched for rendering;
// Violations is the summed-by-group roll-up across the region.
type RegionReport struct {
	Date         string
	Certificates []string
	CertReports  map[string]map[string]int
	Violations   map[string]int
	Total        int
}

// UndefinedRegion is the synthesized bucket for outlets that belong to no
// configured region. They are reported, not dropped.
const UndefinedRegion = "Undefined"

// EmailConfig is the persisted shape of email_config.json. RecipientEmails
// is the global fallback list used when a region has no recipients of its
// own.
type EmailConfig struct {
	SMTPServer      string   `json:"smtp_server"`
	SMTPPort        int      `json:"smtp_port"`
	SenderEmail     string   `json:"sender_email"`
	SenderPassword  string   `json:"sender_password"`
	RecipientEmails []string `json:"recipient_emails"`
}

// RunMarker records the outcome of a scheduled or manual run. Markers are
// diagnostic only; the scheduler's own time-window check decides re-runs.
type RunMarker struct {
	LastRun               time.Time `json:"last_run"`
	RunID                 string    `json:"run_id,omitempty"`
	DataDate              string    `json:"data_date,omitempty"`
	CertificatesProcessed int       `json:"certificates_processed,omitempty"`
	NextScheduledRun      time.Time `json:"next_scheduled_run,omitempty"`
	ManualRun             bool      `json:"manual_run"`
}

// Yesterday returns the business date the pipeline always operates on, as
// YYYY-MM-DD. Same-day data is never requested because it is incomplete.
func Yesterday(now time.Time) string {
	return now.AddDate(0, 0, -1).Format("2006-01-02")
}
