package thread

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// GenerateID builds a thread ID from the directive name and a ULID
// suffix. Format: <directive-base>-<ULID>. The base keeps IDs readable
// in logs; the ULID keeps them unique and sortable by creation time.
func GenerateID(directive string, now time.Time) string {
	base := directiveBase(directive)
	entropy := ulid.Monotonic(rand.Reader, 0)
	id := ulid.MustNew(ulid.Timestamp(now), entropy)
	return base + "-" + id.String()
}

func directiveBase(directive string) string {
	base := directive
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	if idx := strings.IndexByte(base, '.'); idx >= 0 {
		base = base[:idx]
	}
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, base)
	if base == "" {
		base = "thread"
	}
	return base
}
