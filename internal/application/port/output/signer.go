package output

import "errors"

// ErrIntegrity is wrapped by verification failures. Fatal: blocks
// resume and handoff.
var ErrIntegrity = errors.New("integrity error")

// Signer is the signing-service collaborator. The checkpoint signer and
// capability propagation depend on it but own no cryptographic logic.
type Signer interface {
	// Hash computes the content digest of raw bytes, hex encoded.
	Hash(data []byte) string

	// Sign signs a digest and returns an encoded signature.
	Sign(digest string) (string, error)

	// Verify checks a signature against a digest for the given signer
	// fingerprint.
	Verify(digest, signature, fingerprint string) bool

	// Fingerprint identifies the active signing key.
	Fingerprint() string
}
