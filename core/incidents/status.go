package incidents

import "strings"

const (
	StatusActive    = "active"
	StatusPending   = "pending"
	StatusResolved  = "resolved"
	StatusCancelled = "cancelled"
)

// NormalizeStatus lower-cases a raw status value and validates it against the
// known lifecycle states. Unknown values come back empty.
func NormalizeStatus(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case StatusActive:
		return StatusActive
	case StatusPending:
		return StatusPending
	case StatusResolved:
		return StatusResolved
	case StatusCancelled:
		return StatusCancelled
	}
	return ""
}

// IsClosed reports whether a status is terminal. No admin action transitions
// an incident out of a closed status.
func IsClosed(status string) bool {
	s := NormalizeStatus(status)
	return s == StatusResolved || s == StatusCancelled
}

// IsOpen reports whether a status still accepts transitions.
func IsOpen(status string) bool {
	s := NormalizeStatus(status)
	return s == StatusActive || s == StatusPending
}
