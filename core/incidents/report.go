package incidents

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"campus-alert/core/store"
)

const descriptionDisplayLimit = 140

// NextResolutionID derives the next resolved id from the most recently
// created report: prefix + zero-padded 5-digit counter. A missing or
// non-numeric predecessor falls back to the first id. The read-then-insert
// window is racy; the caller handles duplicates with a one-time retry.
func (s *Service) NextResolutionID(ctx context.Context) string {
	last, err := s.reports.LatestResolvedID(ctx)
	if err != nil {
		s.log.Errorf("latest resolved id lookup: %v", err)
		return fmt.Sprintf("%s%05d", s.resolvedIDPrefix, 1)
	}
	return nextResolutionID(s.resolvedIDPrefix, last)
}

func nextResolutionID(prefix, last string) string {
	last = strings.TrimSpace(last)
	if last == "" || !strings.HasPrefix(last, prefix) {
		return fmt.Sprintf("%s%05d", prefix, 1)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(last, prefix))
	if err != nil || n < 0 {
		return fmt.Sprintf("%s%05d", prefix, 1)
	}
	return fmt.Sprintf("%s%05d", prefix, n+1)
}

// buildAndStoreReport assembles and persists the closure record for a
// resolved incident. A duplicate resolved id is retried once with a fresh
// id; any remaining storage failure is returned as a warning string while
// the resolution itself stands.
func (s *Service) buildAndStoreReport(ctx context.Context, actor Actor, inc *store.Incident, statusBefore string, resolvedAt time.Time, summary string) (*store.ResolutionReport, string) {
	report := s.buildReport(ctx, actor, inc, statusBefore, resolvedAt, summary)

	if err := s.reports.Insert(ctx, report); err != nil {
		if store.IsUniqueViolation(err, "resolved") {
			report.ResolvedID = s.NextResolutionID(ctx)
			if err := s.reports.Insert(ctx, report); err != nil {
				s.log.Errorf("resolution report retry for %s: %v", inc.ICDID, err)
				return nil, fmt.Sprintf("resolution report could not be stored: %v", err)
			}
		} else {
			s.log.Errorf("resolution report for %s: %v", inc.ICDID, err)
			return nil, fmt.Sprintf("resolution report could not be stored: %v", err)
		}
	}
	return report, ""
}

func (s *Service) buildReport(ctx context.Context, actor Actor, inc *store.Incident, statusBefore string, resolvedAt time.Time, summary string) *store.ResolutionReport {
	studentName := ""
	if strings.TrimSpace(inc.ReporterID) != "" {
		if student, err := s.students.Get(ctx, inc.ReporterID); err == nil && student != nil {
			studentName = student.FullName
			if studentName == "" {
				studentName = student.Username
			}
		} else if err != nil {
			s.log.Errorf("student snapshot for %s: %v", inc.ICDID, err)
		}
	}
	adminName := actor.Name
	if adminName == "" {
		adminName = actor.Username
	}

	var minutes *float64
	if inc.ReportedAt != nil {
		m := resolvedAt.Sub(inc.ReportedAt.UTC()).Minutes()
		minutes = &m
	}

	return &store.ResolutionReport{
		ResolvedID:      s.NextResolutionID(ctx),
		IncidentID:      inc.ICDID,
		StatusBefore:    statusBefore,
		StatusAfter:     StatusResolved,
		StudentID:       inc.ReporterID,
		StudentName:     studentName,
		AdminID:         actor.AdminID,
		AdminName:       adminName,
		ReportedAt:      inc.ReportedAt,
		ResolvedAt:      resolvedAt,
		ResponseMinutes: minutes,
		Summary:         strings.TrimSpace(summary),
		SummaryDetails: store.SummaryDetails{
			Student:  studentName,
			Admin:    adminName,
			Location: FormatLocation(inc),
			Category: inc.Category,
		},
	}
}

// ReportView is the presentation shape for a single resolution report.
type ReportView struct {
	Report      store.ResolutionReport `json:"report"`
	Description string                 `json:"description"`
	Duration    string                 `json:"duration"`
	KeyPoints   []string               `json:"key_points"`
	Metrics     map[string]string      `json:"metrics"`
}

// BuildReportView renders a stored report for display: truncated description,
// friendly response-time label, fixed key points and metrics.
func BuildReportView(r store.ResolutionReport, description string) ReportView {
	duration := "unknown"
	if r.ResponseMinutes != nil {
		duration = FormatDuration(*r.ResponseMinutes)
	}
	keyPoints := []string{
		fmt.Sprintf("Status changed from %s to %s", r.StatusBefore, r.StatusAfter),
		fmt.Sprintf("Handled by %s", displayOr(r.AdminName, r.AdminID)),
		fmt.Sprintf("Reported by %s", displayOr(r.StudentName, r.StudentID)),
		fmt.Sprintf("Category: %s", displayOr(r.SummaryDetails.Category, "uncategorized")),
		fmt.Sprintf("Summary: %s", r.Summary),
	}
	metrics := map[string]string{
		"Reported":      formatInstant(r.ReportedAt),
		"Resolved":      r.ResolvedAt.UTC().Format(time.RFC3339),
		"Response Time": duration,
	}
	return ReportView{
		Report:      r,
		Description: TruncateDescription(description),
		Duration:    duration,
		KeyPoints:   keyPoints,
		Metrics:     metrics,
	}
}

// FormatDuration renders a minute count as a friendly label: seconds under a
// minute, "H hr M min" from an hour up, "M.D min" in between.
func FormatDuration(minutes float64) string {
	if minutes < 0 {
		minutes = 0
	}
	if minutes < 1 {
		return fmt.Sprintf("%d secs", int(minutes*60+0.5))
	}
	if minutes >= 60 {
		h := int(minutes) / 60
		m := int(minutes) % 60
		return fmt.Sprintf("%d hr %d min", h, m)
	}
	return fmt.Sprintf("%.1f min", minutes)
}

// TruncateDescription caps a description for display, appending an ellipsis
// when it had to cut.
func TruncateDescription(desc string) string {
	desc = strings.TrimSpace(desc)
	if utf8.RuneCountInString(desc) <= descriptionDisplayLimit {
		return desc
	}
	return string([]rune(desc)[:descriptionDisplayLimit]) + "..."
}

// FormatLocation renders the best available location description for an
// incident: building/floor/room when present, else raw coordinates.
func FormatLocation(inc *store.Incident) string {
	var parts []string
	if strings.TrimSpace(inc.Building) != "" {
		parts = append(parts, inc.Building)
	}
	if strings.TrimSpace(inc.Floor) != "" {
		parts = append(parts, "floor "+inc.Floor)
	}
	if strings.TrimSpace(inc.Room) != "" {
		parts = append(parts, "room "+inc.Room)
	}
	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}
	if inc.Latitude != nil && inc.Longitude != nil {
		return fmt.Sprintf("%.5f, %.5f", *inc.Latitude, *inc.Longitude)
	}
	return ""
}

func displayOr(primary, fallback string) string {
	if strings.TrimSpace(primary) != "" {
		return primary
	}
	if strings.TrimSpace(fallback) != "" {
		return fallback
	}
	return "unknown"
}

func formatInstant(t *time.Time) string {
	if t == nil {
		return "unknown"
	}
	return t.UTC().Format(time.RFC3339)
}
