// Package signing implements the Signer port on Ed25519 with an
// on-disk keypair. Key material layout: 0700 directory, 0600 key file.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

const (
	privateKeyFile = "signing.key"
	publicKeyFile  = "signing.pub"
)

// Ed25519Signer signs digests with a persistent keypair.
type Ed25519Signer struct {
	priv        ed25519.PrivateKey
	pub         ed25519.PublicKey
	fingerprint string
}

// NewEd25519Signer loads the keypair from keysDir, generating one on
// first use.
func NewEd25519Signer(fs afero.Fs, keysDir string) (*Ed25519Signer, error) {
	if err := fs.MkdirAll(keysDir, 0o700); err != nil {
		return nil, fmt.Errorf("create keys directory: %w", err)
	}

	privPath := filepath.Join(keysDir, privateKeyFile)
	data, err := afero.ReadFile(fs, privPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read signing key: %w", err)
		}
		return generate(fs, keysDir)
	}

	raw, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil || len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signing key at %s is corrupt", privPath)
	}
	priv := ed25519.PrivateKey(raw)
	return newFromKey(priv), nil
}

// NewEphemeralSigner generates a throwaway keypair. Used by tests.
func NewEphemeralSigner() (*Ed25519Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return newFromKey(priv), nil
}

func generate(fs afero.Fs, keysDir string) (*Ed25519Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	s := newFromKey(priv)

	privEnc := base64.StdEncoding.EncodeToString(priv)
	if err := afero.WriteFile(fs, filepath.Join(keysDir, privateKeyFile), []byte(privEnc), 0o600); err != nil {
		return nil, fmt.Errorf("write signing key: %w", err)
	}
	pubEnc := base64.StdEncoding.EncodeToString(s.pub)
	if err := afero.WriteFile(fs, filepath.Join(keysDir, publicKeyFile), []byte(pubEnc), 0o644); err != nil {
		return nil, fmt.Errorf("write public key: %w", err)
	}
	return s, nil
}

func newFromKey(priv ed25519.PrivateKey) *Ed25519Signer {
	pub := priv.Public().(ed25519.PublicKey)
	sum := sha256.Sum256(pub)
	return &Ed25519Signer{
		priv:        priv,
		pub:         pub,
		fingerprint: hex.EncodeToString(sum[:8]),
	}
}

// Hash computes the hex-encoded SHA-256 digest of raw bytes.
func (s *Ed25519Signer) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Sign signs a digest, returning a URL-safe base64 signature.
func (s *Ed25519Signer) Sign(digest string) (string, error) {
	sig := ed25519.Sign(s.priv, []byte(digest))
	return base64.RawURLEncoding.EncodeToString(sig), nil
}

// Verify checks a signature against a digest for the given fingerprint.
// Only the local key's fingerprint is trusted.
func (s *Ed25519Signer) Verify(digest, signature, fingerprint string) bool {
	if fingerprint != s.fingerprint {
		return false
	}
	sig, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return ed25519.Verify(s.pub, []byte(digest), sig)
}

// Fingerprint identifies the active signing key.
func (s *Ed25519Signer) Fingerprint() string {
	return s.fingerprint
}
