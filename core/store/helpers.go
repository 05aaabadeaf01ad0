package store

import (
	"database/sql"
	"strings"
	"time"
)

func nullableTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// IsUniqueViolation reports whether err is a unique-constraint failure
// mentioning the given column or constraint token. Matches both the sqlite
// ("UNIQUE constraint failed: table.column") and postgres ("duplicate key
// value violates unique constraint") message shapes.
func IsUniqueViolation(err error, token string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "unique") && !strings.Contains(msg, "duplicate key") {
		return false
	}
	if strings.TrimSpace(token) == "" {
		return true
	}
	return strings.Contains(msg, strings.ToLower(token))
}

func chunkIDs(ids []string, size int) [][]string {
	if size <= 0 {
		size = 100
	}
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimRight(strings.Repeat("?,", n), ",")
}
