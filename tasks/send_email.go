package tasks

import (
	"fmt"
	"html"
	"mime"
	"net/mail"
	"net/smtp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"markd/internal/store"
	"markd/types"
)

// smtpSendMail is swapped out in tests.
var smtpSendMail = smtp.SendMail

// SendRegionalReports renders one HTML report per region and dispatches it
// to the region's recipients, falling back to the global list from the
// email config. A failure for one region never prevents the rest; the
// return value is the AND of per-region outcomes. The email run marker is
// written regardless of individual failures.
func SendRegionalReports(st *store.Store, reports map[string]*types.RegionReport) (bool, error) {
	logger := zap.L().With(zap.String("task", "send_email"))

	cfg, err := st.LoadEmailConfig()
	if err != nil {
		return false, fmt.Errorf("load email config: %w", err)
	}
	if cfg == nil {
		logger.Warn("email_config.json not found, skipping dispatch")
		return false, nil
	}
	regions, err := st.LoadRegions()
	if err != nil {
		return false, fmt.Errorf("load regions: %w", err)
	}
	logger.Info("send_email started", zap.Int("regions", len(reports)))

	success := true
	for regionID, report := range reports {
		displayName := regionID
		var regionEmails []string
		if region, ok := regions[regionID]; ok {
			if region.Name != "" {
				displayName = region.Name
			}
			regionEmails = region.Emails
		}

		if err := sendRegionReport(cfg, regionID, displayName, regionEmails, report); err != nil {
			logger.Error("region dispatch failed",
				zap.String("region", regionID),
				zap.Error(err))
			success = false
			continue
		}
		logger.Info("region report sent",
			zap.String("region", regionID),
			zap.Int("total_violations", report.Total))
	}

	if err := st.WriteEmailRunMarker(&types.RunMarker{LastRun: time.Now(), ManualRun: false}); err != nil {
		logger.Error("failed to write email run marker", zap.Error(err))
	}
	logger.Info("send_email complete", zap.Bool("success", success))
	return success, nil
}

func sendRegionReport(cfg *types.EmailConfig, regionID, displayName string, regionEmails []string, report *types.RegionReport) error {
	recipients := collectRecipients(regionEmails, cfg.RecipientEmails)
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients for region %s", regionID)
	}
	for _, addr := range recipients {
		if _, err := mail.ParseAddress(addr); err != nil {
			return fmt.Errorf("invalid email address %q: %w", addr, err)
		}
	}

	subject := fmt.Sprintf("Отчет о нарушениях маркировки - Регион %s - %s", displayName, report.Date)
	body := renderRegionHTML(displayName, report)
	msg := buildHTMLMessage(cfg.SenderEmail, recipients, subject, body)

	addr := fmt.Sprintf("%s:%d", cfg.SMTPServer, cfg.SMTPPort)
	auth := smtp.PlainAuth("", cfg.SenderEmail, cfg.SenderPassword, cfg.SMTPServer)
	if err := smtpSendMail(addr, auth, cfg.SenderEmail, recipients, []byte(msg)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// collectRecipients prefers the region's own list, falling back to the
// global one, deduplicating and trimming either way.
func collectRecipients(regionEmails, fallback []string) []string {
	source := regionEmails
	if len(source) == 0 {
		source = fallback
	}
	seen := make(map[string]bool)
	var result []string
	for _, addr := range source {
		addr = strings.TrimSpace(addr)
		if addr != "" && !seen[addr] {
			seen[addr] = true
			result = append(result, addr)
		}
	}
	return result
}

// renderRegionHTML builds the report body: a heading for the region and
// covered date, then one table per certificate with a bolded total row.
func renderRegionHTML(displayName string, report *types.RegionReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>Отчет о нарушениях маркировки по региону %s</h2>\n", html.EscapeString(displayName))
	fmt.Fprintf(&b, "<h3>Дата: %s (данные за вчерашний день)</h3>\n", html.EscapeString(report.Date))

	certs := make([]string, 0, len(report.CertReports))
	for cert := range report.CertReports {
		certs = append(certs, cert)
	}
	sort.Strings(certs)

	for _, cert := range certs {
		violations := report.CertReports[cert]
		fmt.Fprintf(&b, "<h4>Торговая точка: %s</h4>\n", html.EscapeString(cert))
		b.WriteString(`<table border="1" style="border-collapse: collapse; width: 100%; margin-bottom:20px;">` + "\n")
		b.WriteString(`<tr style="background-color: #f2f2f2;"><th style="padding: 8px;">Товарная группа</th><th style="padding: 8px;">Количество нарушений</th></tr>` + "\n")

		total := 0
		for _, group := range sortedByCountDesc(violations) {
			count := violations[group]
			total += count
			fmt.Fprintf(&b, `<tr><td style="padding: 8px;">%s</td><td style="padding: 8px; text-align: center;">%d</td></tr>`+"\n",
				html.EscapeString(group), count)
		}
		fmt.Fprintf(&b, `<tr style="background-color: #f2f2f2; font-weight: bold;"><td style="padding: 8px;">Всего нарушений:</td><td style="padding: 8px; text-align: center;">%d</td></tr>`+"\n", total)
		b.WriteString("</table>\n<br/>\n")
	}
	return b.String()
}

func sortedByCountDesc(violations map[string]int) []string {
	groups := make([]string, 0, len(violations))
	for group := range violations {
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool {
		if violations[groups[i]] != violations[groups[j]] {
			return violations[groups[i]] > violations[groups[j]]
		}
		return groups[i] < groups[j]
	})
	return groups
}

func buildHTMLMessage(from string, to []string, subject, body string) string {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", mimeEncodeHeader(subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	msg.WriteString("\r\n")
	return msg.String()
}

// mimeEncodeHeader wraps non-ASCII subjects in RFC 2047 UTF-8 B-encoding.
// Pure-ASCII subjects pass through untouched.
func mimeEncodeHeader(s string) string {
	return mime.BEncoding.Encode("utf-8", s)
}
