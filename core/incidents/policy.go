package incidents

import (
	"fmt"
	"strings"

	"campus-alert/core/store"
)

// Decision carries an allow/deny verdict with a human-readable reason used
// directly in denial responses.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// CanView decides whether the admin may see the incident at all.
// Closed incidents are visible to everyone; open incidents are visible when
// unassigned or assigned to the asking admin.
func CanView(inc *store.Incident, adminID string) Decision {
	if inc == nil {
		return deny("incident not found")
	}
	if IsClosed(inc.Status) {
		return allow()
	}
	assigned := strings.TrimSpace(inc.AssignedResponderID)
	if assigned == "" || assigned == strings.TrimSpace(adminID) {
		return allow()
	}
	return deny(fmt.Sprintf("incident %s is assigned to responder %s", inc.ICDID, assigned))
}

// CanEdit decides whether the admin may change the incident. Closed incidents
// are immutable for everyone, including the responder who closed them.
func CanEdit(inc *store.Incident, adminID string) Decision {
	if inc == nil {
		return deny("incident not found")
	}
	if IsClosed(inc.Status) {
		return deny(fmt.Sprintf("incident %s is already %s", inc.ICDID, NormalizeStatus(inc.Status)))
	}
	assigned := strings.TrimSpace(inc.AssignedResponderID)
	if assigned == "" || assigned == strings.TrimSpace(adminID) {
		return allow()
	}
	return deny(fmt.Sprintf("incident %s is assigned to responder %s", inc.ICDID, assigned))
}

// FilterVisible applies CanView to a list, silently dropping incidents the
// admin may not see. Used by every listing and count surface.
func FilterVisible(incs []store.Incident, adminID string) []store.Incident {
	out := make([]store.Incident, 0, len(incs))
	for i := range incs {
		if CanView(&incs[i], adminID).Allowed {
			out = append(out, incs[i])
		}
	}
	return out
}
