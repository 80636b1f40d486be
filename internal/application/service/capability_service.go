package service

import (
	"fmt"
	"time"

	"github.com/weftworks/weft/internal/application/port/output"
	"github.com/weftworks/weft/internal/domain/model/capability"
)

// CapabilityService mints, attenuates, and verifies capability tokens.
// It owns no cryptographic logic; signatures go through the Signer port.
type CapabilityService struct {
	signer output.Signer
	ttl    time.Duration
}

// NewCapabilityService creates the service with the token TTL.
func NewCapabilityService(signer output.Signer, ttl time.Duration) *CapabilityService {
	return &CapabilityService{signer: signer, ttl: ttl}
}

// MintRoot self-mints a token from bare directive-declared permissions.
// Only a root thread may do this.
func (s *CapabilityService) MintRoot(capabilities []string, audience string, now time.Time) (capability.Token, error) {
	tok := capability.NewToken(capabilities, audience, s.ttl, "", now)
	return s.sign(tok)
}

// MintChild derives a child token attenuated against the parent's. A
// thread with a parent but no token presented is refused before any
// work begins.
func (s *CapabilityService) MintChild(parent *capability.Token, requested []string, audience string, now time.Time) (capability.Token, error) {
	if parent == nil {
		return capability.Token{}, fmt.Errorf("%w: child spawn without a parent token", capability.ErrPermissionDenied)
	}
	if err := s.VerifyToken(*parent, now); err != nil {
		return capability.Token{}, err
	}
	granted := parent.Attenuate(requested)
	tok := capability.NewToken(granted, audience, s.ttl, parent.TokenID, now)
	return s.sign(tok)
}

func (s *CapabilityService) sign(tok capability.Token) (capability.Token, error) {
	payload, err := tok.CanonicalPayload()
	if err != nil {
		return capability.Token{}, fmt.Errorf("canonicalize token: %w", err)
	}
	sig, err := s.signer.Sign(s.signer.Hash(payload))
	if err != nil {
		return capability.Token{}, fmt.Errorf("sign token: %w", err)
	}
	tok.Signature = sig
	return tok, nil
}

// VerifyToken checks the token's signature and expiry.
func (s *CapabilityService) VerifyToken(tok capability.Token, now time.Time) error {
	if tok.Expired(now) {
		return fmt.Errorf("%w: token %s", capability.ErrTokenExpired, tok.TokenID)
	}
	payload, err := tok.CanonicalPayload()
	if err != nil {
		return fmt.Errorf("canonicalize token: %w", err)
	}
	if !s.signer.Verify(s.signer.Hash(payload), tok.Signature, s.signer.Fingerprint()) {
		return fmt.Errorf("%w: token %s signature mismatch", output.ErrIntegrity, tok.TokenID)
	}
	return nil
}

// CheckAction verifies the token and matches the action against its
// capability patterns. A denial is returned as an error the caller
// surfaces as that action's result, not a thread failure.
func (s *CapabilityService) CheckAction(tok capability.Token, action string, now time.Time) error {
	if err := s.VerifyToken(tok, now); err != nil {
		return err
	}
	return tok.Check(action, now)
}
