package utils

import (
	"os"
	"strings"
	"sync"
	"time"
)

// All timestamp comparison and feed ordering happens in a single reference
// zone. Values stored without zone information are taken as UTC before
// conversion, so audit rows and incident status timestamps sort together.

const defaultReferenceZone = "Asia/Manila"

var (
	refMu  sync.RWMutex
	refLoc *time.Location
)

func ReferenceZone() *time.Location {
	refMu.RLock()
	loc := refLoc
	refMu.RUnlock()
	if loc != nil {
		return loc
	}
	zone := strings.TrimSpace(os.Getenv("TZ"))
	if zone == "" {
		zone = defaultReferenceZone
	}
	loc = loadZone(zone)
	refMu.Lock()
	refLoc = loc
	refMu.Unlock()
	return loc
}

func SetReferenceZone(zone string) {
	loc := loadZone(zone)
	refMu.Lock()
	refLoc = loc
	refMu.Unlock()
}

func loadZone(zone string) *time.Location {
	if loc, err := time.LoadLocation(strings.TrimSpace(zone)); err == nil {
		return loc
	}
	if loc, err := time.LoadLocation(defaultReferenceZone); err == nil {
		return loc
	}
	return time.UTC
}

func NowUTC() time.Time {
	return time.Now().UTC()
}

func NowLocal() time.Time {
	return time.Now().In(ReferenceZone())
}

// naiveLayouts cover timestamps persisted without zone information.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
}

// ParseInstant normalizes any of the timestamp shapes the data store hands
// back (absent, time.Time, ISO string with or without offset, truncated
// "YYYY-MM-DD HH:MM:SS") into an instant in the reference zone. Unparseable
// or absent values yield nil, never an error.
func ParseInstant(v any) *time.Time {
	loc := ReferenceZone()
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		if t.IsZero() {
			return nil
		}
		out := t.In(loc)
		return &out
	case *time.Time:
		if t == nil || t.IsZero() {
			return nil
		}
		out := t.In(loc)
		return &out
	case string:
		return parseInstantString(t, loc)
	case *string:
		if t == nil {
			return nil
		}
		return parseInstantString(*t, loc)
	default:
		return nil
	}
}

func parseInstantString(raw string, loc *time.Location) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			out := t.In(loc)
			return &out
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			out := t.In(loc)
			return &out
		}
	}
	return nil
}

// InstantKey renders an instant the way feed deduplication keys expect it.
func InstantKey(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.In(ReferenceZone()).Format(time.RFC3339)
}
