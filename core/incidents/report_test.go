package incidents

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"campus-alert/core/store"
)

func TestNextResolutionIDSequence(t *testing.T) {
	cases := []struct {
		last string
		want string
	}{
		{"", "RSV00001"},
		{"RSV00001", "RSV00002"},
		{"RSV00042", "RSV00043"},
		{"RSV99999", "RSV100000"},
		{"XYZ00007", "RSV00001"},
		{"RSVabc", "RSV00001"},
		{"  RSV00009  ", "RSV00010"},
	}
	for _, tc := range cases {
		if got := nextResolutionID("RSV", tc.last); got != tc.want {
			t.Errorf("nextResolutionID(RSV, %q) = %q, want %q", tc.last, got, tc.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		minutes float64
		want    string
	}{
		{0, "0 secs"},
		{0.5, "30 secs"},
		{0.99, "59 secs"},
		{1.0, "1.0 min"},
		{12.34, "12.3 min"},
		{59.9, "59.9 min"},
		{60, "1 hr 0 min"},
		{61, "1 hr 1 min"},
		{90, "1 hr 30 min"},
		{150, "2 hr 30 min"},
		{-5, "0 secs"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.minutes); got != tc.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tc.minutes, got, tc.want)
		}
	}
}

func TestTruncateDescription(t *testing.T) {
	short := "small fire in the chemistry lab"
	if got := TruncateDescription(short); got != short {
		t.Fatalf("short description should pass through, got %q", got)
	}
	long := strings.Repeat("a", 200)
	got := TruncateDescription(long)
	if len(got) != 143 || !strings.HasSuffix(got, "...") {
		t.Fatalf("long description should cut at 140 chars plus ellipsis, got %d chars", len(got))
	}
	exact := strings.Repeat("b", 140)
	if TruncateDescription(exact) != exact {
		t.Fatalf("description at the limit must not be truncated")
	}
	// Multi-byte text must be cut on a rune boundary, never mid-sequence.
	wide := strings.Repeat("ñ", 200)
	got = TruncateDescription(wide)
	if !utf8.ValidString(got) {
		t.Fatalf("truncation split a multi-byte rune: %q", got)
	}
	if want := strings.Repeat("ñ", 140) + "..."; got != want {
		t.Fatalf("wide description should keep 140 runes plus ellipsis, got %d runes", utf8.RuneCountInString(got))
	}
	if narrow := strings.Repeat("ñ", 140); TruncateDescription(narrow) != narrow {
		t.Fatalf("wide description at the limit must not be truncated")
	}
}

func TestFormatLocation(t *testing.T) {
	inc := &store.Incident{Building: "Science Hall", Floor: "2", Room: "204"}
	if got := FormatLocation(inc); got != "Science Hall, floor 2, room 204" {
		t.Fatalf("unexpected location %q", got)
	}
	lat, lng := 14.59512, 120.97212
	coords := &store.Incident{Latitude: &lat, Longitude: &lng}
	if got := FormatLocation(coords); got != "14.59512, 120.97212" {
		t.Fatalf("unexpected coordinate location %q", got)
	}
	if got := FormatLocation(&store.Incident{}); got != "" {
		t.Fatalf("empty incident should yield empty location, got %q", got)
	}
}

func TestBuildReportView(t *testing.T) {
	reported := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	minutes := 90.0
	r := store.ResolutionReport{
		ResolvedID:      "RSV00007",
		IncidentID:      "ICD001",
		StatusBefore:    "pending",
		StatusAfter:     "resolved",
		StudentID:       "STU1",
		StudentName:     "Maria Cruz",
		AdminID:         "ADM0001",
		AdminName:       "Dana Reyes",
		ReportedAt:      &reported,
		ResolvedAt:      reported.Add(90 * time.Minute),
		ResponseMinutes: &minutes,
		Summary:         "Handled on site",
		SummaryDetails:  store.SummaryDetails{Category: "fire"},
	}
	view := BuildReportView(r, strings.Repeat("x", 300))
	if view.Duration != "1 hr 30 min" {
		t.Fatalf("duration = %q", view.Duration)
	}
	if len(view.Description) != 143 {
		t.Fatalf("description should be truncated, got %d chars", len(view.Description))
	}
	if view.Metrics["Response Time"] != "1 hr 30 min" {
		t.Fatalf("metrics missing response time: %v", view.Metrics)
	}
	if view.Metrics["Reported"] != "2025-05-01T10:00:00Z" {
		t.Fatalf("metrics reported = %q", view.Metrics["Reported"])
	}
	joined := strings.Join(view.KeyPoints, "\n")
	for _, want := range []string{"Status changed from pending to resolved", "Dana Reyes", "Maria Cruz", "Category: fire", "Handled on site"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("key points missing %q:\n%s", want, joined)
		}
	}
}

func TestBuildReportViewUnknownDuration(t *testing.T) {
	r := store.ResolutionReport{ResolvedID: "RSV00008", ResolvedAt: time.Now().UTC()}
	view := BuildReportView(r, "")
	if view.Duration != "unknown" {
		t.Fatalf("missing response minutes should render as unknown, got %q", view.Duration)
	}
	if view.Metrics["Reported"] != "unknown" {
		t.Fatalf("missing reported_at should render as unknown, got %q", view.Metrics["Reported"])
	}
}
