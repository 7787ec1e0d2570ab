// Package sanitize bounds and cleans untrusted beacon strings before they
// reach storage.
package sanitize

import (
	"strings"
	"unicode"
)

// Length caps for stored fields. Anything longer is truncated, not rejected:
// a beacon with an oversized referrer is still a valid page view.
const (
	MaxPathLength      = 2048
	MaxReferrerLength  = 2048
	MaxUserAgentLength = 512
	MaxEventNameLength = 255
	MaxMessageLength   = 2048
	MaxStackLength     = 8192
	MaxMetaValueLength = 1024
	MaxMetaKeys        = 32
)

// String strips control characters, trims surrounding whitespace and caps
// the result at max bytes. A max of 0 applies no cap.
func String(s string, max int) string {
	if s == "" {
		return ""
	}

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)

	cleaned = strings.TrimSpace(cleaned)
	if max > 0 && len(cleaned) > max {
		cleaned = cleaned[:max]
	}
	return cleaned
}

// Line behaves like String but also drops newlines and tabs, for fields
// that must stay single-line (paths, names, user agents).
func Line(s string, max int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)

	cleaned = strings.TrimSpace(cleaned)
	if max > 0 && len(cleaned) > max {
		cleaned = cleaned[:max]
	}
	return cleaned
}

// Path cleans a URL path, guaranteeing a leading slash and a non-empty value.
func Path(p string) string {
	cleaned := Line(p, MaxPathLength)
	if cleaned == "" {
		return "/"
	}
	if !strings.HasPrefix(cleaned, "/") {
		cleaned = "/" + cleaned
	}
	return cleaned
}

// EventName cleans a custom event name.
func EventName(n string) string {
	return Line(n, MaxEventNameLength)
}

// Metadata cleans a shallow event-data map: string values are sanitized and
// capped, numeric and boolean values pass through, nested structures are
// dropped. At most MaxMetaKeys entries survive.
func Metadata(m map[string]interface{}) map[string]interface{} {
	if len(m) == 0 {
		return nil
	}

	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if len(out) >= MaxMetaKeys {
			break
		}
		key := Line(k, MaxEventNameLength)
		if key == "" {
			continue
		}

		switch val := v.(type) {
		case string:
			out[key] = String(val, MaxMetaValueLength)
		case float64, int, int64, bool:
			out[key] = val
		case nil:
			// dropped
		default:
			// nested maps/arrays are not stored
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}
