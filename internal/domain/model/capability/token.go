// Package capability implements permission tokens: minting, attenuation
// against a parent token, and pattern matching at dispatch time.
package capability

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrPermissionDenied is returned when a capability check fails.
var ErrPermissionDenied = errors.New("permission denied")

// ErrTokenExpired is returned when a token is past its expiry.
var ErrTokenExpired = errors.New("capability token expired")

// Token is a signed grant of permission patterns for one thread.
// A child token's capabilities are always a subset of its parent's.
type Token struct {
	TokenID       string   `json:"token_id"`
	Capabilities  []string `json:"capabilities"`
	Audience      string   `json:"aud"`
	ExpiresAt     int64    `json:"exp"`
	ParentTokenID string   `json:"parent_id,omitempty"`
	Signature     string   `json:"sig,omitempty"`
}

// NewToken mints an unsigned token for the given audience.
func NewToken(capabilities []string, audience string, ttl time.Duration, parentTokenID string, now time.Time) Token {
	caps := normalize(capabilities)
	return Token{
		TokenID:       uuid.NewString(),
		Capabilities:  caps,
		Audience:      audience,
		ExpiresAt:     now.Add(ttl).Unix(),
		ParentTokenID: parentTokenID,
	}
}

// CanonicalPayload serializes the token without its signature, with
// sorted keys and compact separators, for signing and verification.
func (t Token) CanonicalPayload() ([]byte, error) {
	payload := map[string]interface{}{
		"token_id":     t.TokenID,
		"capabilities": t.Capabilities,
		"aud":          t.Audience,
		"exp":          t.ExpiresAt,
	}
	if t.ParentTokenID != "" {
		payload["parent_id"] = t.ParentTokenID
	}
	// encoding/json sorts map keys, which is the canonical order here
	return json.Marshal(payload)
}

// Expired reports whether the token is past its expiry.
func (t Token) Expired(now time.Time) bool {
	return t.ExpiresAt > 0 && now.Unix() >= t.ExpiresAt
}

// Allows reports whether the requested action string matches any of the
// token's capability patterns.
func (t Token) Allows(action string) bool {
	return MatchAny(t.Capabilities, action)
}

// Attenuate derives a child capability set: the intersection of the
// requested set with what the parent token grants. A request the parent
// does not cover is dropped, never escalated to an error; the child
// simply runs with less.
func (t Token) Attenuate(requested []string) []string {
	out := make([]string, 0, len(requested))
	for _, want := range normalize(requested) {
		if t.Allows(want) {
			out = append(out, want)
		}
	}
	return out
}

// Check returns ErrPermissionDenied or ErrTokenExpired when the token
// does not authorize the action now.
func (t Token) Check(action string, now time.Time) error {
	if t.Expired(now) {
		return fmt.Errorf("%w: token %s", ErrTokenExpired, t.TokenID)
	}
	if !t.Allows(action) {
		return fmt.Errorf("%w: %s not covered by token %s", ErrPermissionDenied, action, t.TokenID)
	}
	return nil
}

func normalize(capabilities []string) []string {
	seen := make(map[string]struct{}, len(capabilities))
	out := make([]string, 0, len(capabilities))
	for _, c := range capabilities {
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
