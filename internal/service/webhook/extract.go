package webhook

import (
	"strings"

	"github.com/ignite/optin/internal/pkg/emailaddr"
)

// addressPaths are tried in order against the event data object.
var addressPaths = [][]string{
	{"to"},
	{"recipient"},
	{"email"},
	{"contact", "email"},
	{"user", "email"},
	{"recipients"},
}

// suppressingMarkers mark event types that must suppress the address.
var suppressingMarkers = []string{"bounce", "bounced", "complain", "complaint"}

// eventData returns event.data, falling back to event.payload.
func eventData(event map[string]any) map[string]any {
	for _, k := range []string{"data", "payload"} {
		if m, ok := event[k].(map[string]any); ok {
			return m
		}
	}
	return map[string]any{}
}

// extractAddress returns the first address found along addressPaths,
// normalized, or "".
func extractAddress(data map[string]any) string {
	for _, path := range addressPaths {
		if s := firstString(lookup(data, path)); s != "" {
			return emailaddr.Normalize(s)
		}
	}
	return ""
}

func lookup(m map[string]any, path []string) any {
	var cur any = m
	for _, k := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[k]
	}
	return cur
}

// firstString accepts a string or the first element of an array of strings.
func firstString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		if len(t) > 0 {
			if s, ok := t[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

// shouldSuppress reports whether a lower-cased event type is a bounce or
// complaint.
func shouldSuppress(eventType string) bool {
	for _, m := range suppressingMarkers {
		if strings.Contains(eventType, m) {
			return true
		}
	}
	return false
}
