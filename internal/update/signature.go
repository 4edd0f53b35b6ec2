// Package update implements self-update: detached-signature verification
// of release binaries and the atomic backup/replace/rollback flow that
// applies a verified binary in place (spec §4.9).
//
// Verification is fail-closed throughout: a missing key, a missing
// sidecar file, or a signature that doesn't validate against any
// trusted key all refuse the update rather than guessing.
package update

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

// SignatureError distinguishes the ways verification can fail, mirroring
// the granularity the executor and decision packages use for their own
// typed errors rather than a single opaque error string.
type SignatureError struct {
	Kind string
	Msg  string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("update: %s: %s", e.Kind, e.Msg)
}

func sigErr(kind, format string, args ...any) *SignatureError {
	return &SignatureError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// ErrNoKeys is returned by Verify/VerifyFile when the Verifier carries no
// trusted keys at all.
var ErrNoKeys = sigErr("no_keys", "no trusted public keys configured")

// ErrVerificationFailed is returned when none of the trusted keys validate
// a signature. It is wrapped with the number of keys tried.
var ErrVerificationFailed = errors.New("update: signature verification failed")

// ParsePublicKey accepts a P-256 public key in any of the three formats
// spec §4.9 names: raw SEC1 bytes (uncompressed 0x04 prefix or compressed
// 0x02/0x03 prefix), base64-encoded SEC1 bytes, or a PEM-wrapped SPKI
// block ("-----BEGIN PUBLIC KEY-----"). It tries PEM first, then falls
// back to base64-or-raw SEC1.
func ParsePublicKey(input []byte) (*ecdsa.PublicKey, error) {
	if block, _ := pem.Decode(input); block != nil {
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, sigErr("invalid_key", "PEM SPKI decode: %v", err)
		}
		key, ok := pub.(*ecdsa.PublicKey)
		if !ok || key.Curve != elliptic.P256() {
			return nil, sigErr("invalid_key", "PEM key is not an ECDSA P-256 public key")
		}
		return key, nil
	}

	raw := input
	if decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(input))); err == nil {
		raw = decoded
	}
	return parseSEC1(raw)
}

func parseSEC1(b []byte) (*ecdsa.PublicKey, error) {
	curve := elliptic.P256()
	x, y := elliptic.Unmarshal(curve, b)
	if x == nil {
		x, y = elliptic.UnmarshalCompressed(curve, b)
	}
	if x == nil {
		return nil, sigErr("invalid_key", "SEC1 decode: not a valid P-256 point (%d bytes)", len(b))
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

// KeyFingerprint is the SHA-256 hex digest of a key's uncompressed SEC1
// encoding, used to report which trusted key validated a signature.
func KeyFingerprint(key *ecdsa.PublicKey) string {
	sec1 := elliptic.Marshal(key.Curve, key.X, key.Y)
	sum := sha256.Sum256(sec1)
	return hex.EncodeToString(sum[:])
}

// Verifier holds an ordered list of trusted public keys and tries each
// in turn during verification, oldest-trusted-first rotation included.
type Verifier struct {
	keys []*ecdsa.PublicKey
}

// NewVerifier builds an empty Verifier; keys are added with AddKey.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// AddKey appends a trusted key, tried in insertion order during Verify.
func (v *Verifier) AddKey(key *ecdsa.PublicKey) {
	v.keys = append(v.keys, key)
}

// AddKeyBytes parses and adds a key in any ParsePublicKey-supported format.
func (v *Verifier) AddKeyBytes(input []byte) error {
	key, err := ParsePublicKey(input)
	if err != nil {
		return err
	}
	v.AddKey(key)
	return nil
}

// KeyCount reports how many trusted keys are configured.
func (v *Verifier) KeyCount() int {
	return len(v.keys)
}

// Fingerprints lists the SHA-256 fingerprints of every trusted key, in
// the same order Verify tries them.
func (v *Verifier) Fingerprints() []string {
	out := make([]string, len(v.keys))
	for i, k := range v.keys {
		out[i] = KeyFingerprint(k)
	}
	return out
}

// Verify checks data against a DER-encoded ECDSA signature, trying each
// trusted key in order. It returns the fingerprint of the first key that
// validates, or ErrVerificationFailed if none do.
func (v *Verifier) Verify(data, sigDER []byte) (string, error) {
	if len(v.keys) == 0 {
		return "", ErrNoKeys
	}

	hash := sha256.Sum256(data)
	for _, key := range v.keys {
		if ecdsa.VerifyASN1(key, hash[:], sigDER) {
			return KeyFingerprint(key), nil
		}
	}
	return "", fmt.Errorf("%w (tried %d key(s))", ErrVerificationFailed, len(v.keys))
}

// SignaturePathFor returns the conventional detached-signature sidecar
// path for a binary: the binary path with ".sig" appended.
func SignaturePathFor(binaryPath string) string {
	return binaryPath + ".sig"
}

// FileVerification is the successful result of VerifyFile.
type FileVerification struct {
	BinaryPath     string
	SigPath        string
	KeyFingerprint string
}

// VerifyFile verifies binaryPath against its "<binary>.sig" sidecar,
// which must hold the raw DER-encoded signature bytes. Missing sidecar,
// unreadable binary, or a signature that validates against no trusted
// key are all reported as errors — never a silent pass.
func (v *Verifier) VerifyFile(binaryPath string) (FileVerification, error) {
	sigPath := SignaturePathFor(binaryPath)

	sigBytes, err := os.ReadFile(sigPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return FileVerification{}, sigErr("signature_file_not_found", "%s", sigPath)
		}
		return FileVerification{}, sigErr("io", "read signature file: %v", err)
	}

	data, err := os.ReadFile(binaryPath)
	if err != nil {
		return FileVerification{}, sigErr("io", "read binary: %v", err)
	}

	fp, err := v.Verify(data, sigBytes)
	if err != nil {
		return FileVerification{}, err
	}

	return FileVerification{BinaryPath: binaryPath, SigPath: sigPath, KeyFingerprint: fp}, nil
}
