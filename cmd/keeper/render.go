package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"archival-hq/keeper/pkg/archive"
	"archival-hq/keeper/pkg/archive/retention"
	"archival-hq/keeper/pkg/archive/retrieval"
	"archival-hq/keeper/pkg/archive/stats"
	"archival-hq/keeper/pkg/archive/verify"
	"archival-hq/keeper/pkg/cli"
	"archival-hq/keeper/pkg/engine"
)

func archivesTable(page *engine.ArchivePage) *cli.Table {
	t := &cli.Table{
		Header: []string{"ID", "ENTITY", "RECORDS", "SIZE", "CREATED", "RETAIN UNTIL", "HOLD"},
		Data:   page,
	}
	for _, rec := range page.Archives {
		t.Rows = append(t.Rows, archiveRow(rec))
	}
	return t
}

func archiveTable(rec *archive.ArchiveRecord) *cli.Table {
	t := &cli.Table{Header: []string{"FIELD", "VALUE"}, Data: rec}
	add := func(k, v string) { t.Rows = append(t.Rows, []string{k, v}) }

	add("id", rec.ID)
	add("entity_type", rec.EntityType)
	add("status", string(rec.Status))
	add("filters", rec.Filters.String())
	add("records", strconv.Itoa(rec.RecordCount))
	add("size", formatBytes(rec.SizeBytes))
	add("uncompressed", formatBytes(rec.UncompressedBytes))
	add("compression", rec.Compression)
	add("checksum", rec.Checksum)
	if rec.Encrypted {
		add("encryption", rec.EncryptionScheme)
	}
	if rec.Signature != "" {
		add("signing_key", rec.SigningKeyID)
	}
	add("retention_until", formatDeadline(rec.RetentionUntil))
	if rec.LegalHold {
		add("legal_hold", fmt.Sprintf("held by %s: %s", rec.LegalHoldBy, rec.LegalHoldReason))
	}
	add("created", formatTime(rec.CreatedAt))
	add("created_by", rec.CreatedBy)
	add("job", rec.JobID)
	return t
}

func archiveRow(rec *archive.ArchiveRecord) []string {
	hold := ""
	if rec.LegalHold {
		hold = "held"
	}
	return []string{
		rec.ID,
		rec.EntityType,
		strconv.Itoa(rec.RecordCount),
		formatBytes(rec.SizeBytes),
		formatTime(rec.CreatedAt),
		formatDeadline(rec.RetentionUntil),
		hold,
	}
}

func jobsTable(jobs []*archive.Job) *cli.Table {
	t := &cli.Table{
		Header: []string{"ID", "ENTITY", "STATUS", "RECORDS", "ARCHIVE", "REQUESTED BY", "CREATED", "ERROR"},
		Data:   jobs,
	}
	for _, j := range jobs {
		t.Rows = append(t.Rows, []string{
			j.ID,
			j.EntityType,
			string(j.Status),
			strconv.Itoa(j.RecordCount),
			j.ResultArchiveID,
			j.RequestedBy,
			formatTime(j.CreatedAt),
			j.ErrorDetail,
		})
	}
	return t
}

func recordsTable(res *retrieval.Result) *cli.Table {
	t := &cli.Table{
		Header: []string{"ID", "CREATED", "SIZE", "ATTRIBUTES"},
		Data:   res,
	}
	for _, r := range res.Records {
		t.Rows = append(t.Rows, []string{r.ID, formatTime(r.CreatedAt), formatBytes(r.SizeBytes), formatAttrs(r.Attributes)})
	}
	return t
}

func verifyTable(report *verify.Report) *cli.Table {
	t := &cli.Table{Header: []string{"CHECK", "RESULT"}, Data: report}
	t.Rows = append(t.Rows, []string{"checksum", passFail(report.ChecksumValid)})
	if report.SignatureValid != nil {
		t.Rows = append(t.Rows, []string{"signature", passFail(*report.SignatureValid)})
	}
	if report.Decryptable != nil {
		t.Rows = append(t.Rows, []string{"decryptable", passFail(*report.Decryptable)})
	}
	for _, issue := range report.Issues {
		t.Rows = append(t.Rows, []string{"issue", issue})
	}
	return t
}

func policiesTable(policies []archive.RetentionPolicy) *cli.Table {
	t := &cli.Table{
		Header: []string{"ENTITY", "RETENTION", "ARCHIVE AFTER", "HOLD OVERRIDABLE"},
		Data:   policies,
	}
	for _, p := range policies {
		t.Rows = append(t.Rows, []string{
			p.EntityType,
			formatPeriod(p.RetentionPeriod),
			formatPeriod(p.ArchiveAfter),
			strconv.FormatBool(p.LegalHoldOverridable),
		})
	}
	return t
}

func enforceTable(res *retention.EnforceResult) *cli.Table {
	t := &cli.Table{Header: []string{"METRIC", "VALUE"}, Data: res}
	add := func(k string, v int) { t.Rows = append(t.Rows, []string{k, strconv.Itoa(v)}) }
	add("evaluated", res.Evaluated)
	add("eligible", res.EligibleForDeletion)
	add("deleted", res.Deleted)
	add("blocked_by_legal_hold", res.LegalHoldsBlocking)
	add("failures", len(res.Failures))
	if res.DryRun {
		t.Rows = append(t.Rows, []string{"mode", "dry run"})
	}
	return t
}

func metricsTable(m *stats.Metrics) *cli.Table {
	t := &cli.Table{Header: []string{"METRIC", "VALUE"}, Data: m}
	add := func(k, v string) { t.Rows = append(t.Rows, []string{k, v}) }
	add("archives", strconv.FormatInt(m.Storage.TotalArchives, 10))
	add("stored", formatBytes(m.Storage.TotalSizeBytes))
	add("uncompressed", formatBytes(m.Storage.TotalUncompressedBytes))
	add("records_archived", strconv.FormatInt(m.Archival.TotalRecordsArchived, 10))
	add("compression_ratio", strconv.FormatFloat(m.Archival.AvgCompressionRatio, 'f', 2, 64))
	add("jobs_completed", strconv.Itoa(m.Archival.CompletedJobs))
	add("jobs_failed", strconv.Itoa(m.Archival.FailedJobs))
	add("jobs_active", strconv.Itoa(m.Archival.ActiveJobs))
	add("job_success_rate", strconv.FormatFloat(m.Archival.JobSuccessRate*100, 'f', 1, 64)+"%")
	add("policies_enforced", strconv.Itoa(m.Retention.PoliciesEnforced))
	add("legal_holds", strconv.Itoa(m.Retention.LegalHoldsActive))
	add("expired", strconv.Itoa(m.Retention.ExpiredArchives))
	return t
}

func storageTable(rows []stats.EntityStorage) *cli.Table {
	t := &cli.Table{
		Header: []string{"ENTITY", "ARCHIVES", "RECORDS", "SIZE", "UNCOMPRESSED", "RATIO", "HOLDS"},
		Data:   rows,
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{
			r.EntityType,
			strconv.FormatInt(r.Archives, 10),
			strconv.FormatInt(r.Records, 10),
			formatBytes(r.SizeBytes),
			formatBytes(r.UncompressedBytes),
			strconv.FormatFloat(r.AvgCompressionRatio, 'f', 2, 64),
			strconv.Itoa(r.LegalHolds),
		})
	}
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatDeadline(t *time.Time) string {
	if t == nil {
		return "indefinite"
	}
	return formatTime(*t)
}

func formatPeriod(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	}
	return d.String()
}

func formatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

func formatAttrs(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+attrs[k])
	}
	return strings.Join(parts, " ")
}

func passFail(ok bool) string {
	if ok {
		return "pass"
	}
	return "FAIL"
}
