package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const (
	Namespace    = "overlap-dashboard"
	maxIDTextLen = 64
)

// Session builds the store key for a session id. Ids are sanitized to a safe
// ASCII alphabet; long or rewritten ids get an xxhash suffix so distinct raw
// ids never share a key.
func Session(id string) string {
	raw := strings.TrimSpace(id)
	safe := sanitizeForKey(raw)
	if len(safe) > maxIDTextLen {
		safe = safe[:maxIDTextLen]
	}
	if safe == raw {
		return fmt.Sprintf("%s:session:%s", Namespace, safe)
	}
	return fmt.Sprintf("%s:session:%s:h=%016x", Namespace, safe, xxhash.Sum64String(raw))
}

func sanitizeForKey(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case unicode.IsSpace(r):
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-':
			out = r
		default:
			// Any other rune (including non-ASCII) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
