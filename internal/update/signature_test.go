package update

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeypair(t *testing.T) (*ecdsa.PrivateKey, *ecdsa.PublicKey) {
	t.Helper()
	sk, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return sk, &sk.PublicKey
}

func sign(t *testing.T, sk *ecdsa.PrivateKey, data []byte) []byte {
	t.Helper()
	hash := sha256.Sum256(data)
	sig, err := ecdsa.SignASN1(rand.Reader, sk, hash[:])
	require.NoError(t, err)
	return sig
}

func TestParsePublicKey_SEC1RoundTrip(t *testing.T) {
	_, pub := testKeypair(t)
	raw := elliptic.Marshal(pub.Curve, pub.X, pub.Y)
	parsed, err := ParsePublicKey(raw)
	require.NoError(t, err)
	assert.Equal(t, pub.X, parsed.X)
	assert.Equal(t, pub.Y, parsed.Y)
}

func TestParsePublicKey_Base64RoundTrip(t *testing.T) {
	_, pub := testKeypair(t)
	raw := elliptic.Marshal(pub.Curve, pub.X, pub.Y)
	b64 := base64.StdEncoding.EncodeToString(raw)
	parsed, err := ParsePublicKey([]byte(b64))
	require.NoError(t, err)
	assert.Equal(t, pub.X, parsed.X)
}

func TestParsePublicKey_PEMSPKIRoundTrip(t *testing.T) {
	_, pub := testKeypair(t)
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	block := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	parsed, err := ParsePublicKey(block)
	require.NoError(t, err)
	assert.Equal(t, pub.X, parsed.X)
	assert.Equal(t, pub.Y, parsed.Y)
}

func TestParsePublicKey_InvalidBytesErrors(t *testing.T) {
	_, err := ParsePublicKey([]byte("not a key at all"))
	assert.Error(t, err)
}

func TestKeyFingerprint_DeterministicAndDistinct(t *testing.T) {
	_, pub1 := testKeypair(t)
	_, pub2 := testKeypair(t)

	assert.Equal(t, KeyFingerprint(pub1), KeyFingerprint(pub1))
	assert.Len(t, KeyFingerprint(pub1), 64)
	assert.NotEqual(t, KeyFingerprint(pub1), KeyFingerprint(pub2))
}

func TestVerifier_NoKeysReturnsErrNoKeys(t *testing.T) {
	v := NewVerifier()
	_, err := v.Verify([]byte("data"), []byte("sig"))
	assert.ErrorIs(t, err, ErrNoKeys)
}

func TestVerifier_ValidSignatureReportsFingerprint(t *testing.T) {
	sk, pub := testKeypair(t)
	data := []byte("release binary contents")
	sig := sign(t, sk, data)

	v := NewVerifier()
	v.AddKey(pub)

	fp, err := v.Verify(data, sig)
	require.NoError(t, err)
	assert.Equal(t, KeyFingerprint(pub), fp)
}

func TestVerifier_TamperedDataFailsVerification(t *testing.T) {
	sk, pub := testKeypair(t)
	sig := sign(t, sk, []byte("original"))

	v := NewVerifier()
	v.AddKey(pub)

	_, err := v.Verify([]byte("tampered"), sig)
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestVerifier_WrongKeyFailsVerification(t *testing.T) {
	sk, _ := testKeypair(t)
	_, otherPub := testKeypair(t)
	data := []byte("data")
	sig := sign(t, sk, data)

	v := NewVerifier()
	v.AddKey(otherPub)

	_, err := v.Verify(data, sig)
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestVerifier_KeyRotationTriesOldestKeyFirst(t *testing.T) {
	skOld, pubOld := testKeypair(t)
	_, pubNew := testKeypair(t)
	data := []byte("signed with the old key")
	sig := sign(t, skOld, data)

	v := NewVerifier()
	v.AddKey(pubOld)
	v.AddKey(pubNew)

	fp, err := v.Verify(data, sig)
	require.NoError(t, err)
	assert.Equal(t, KeyFingerprint(pubOld), fp)
	assert.Equal(t, 2, v.KeyCount())
	assert.Equal(t, []string{KeyFingerprint(pubOld), KeyFingerprint(pubNew)}, v.Fingerprints())
}

func TestVerifyFile_ValidSignaturePasses(t *testing.T) {
	sk, pub := testKeypair(t)
	dir := t.TempDir()
	binPath := filepath.Join(dir, "proctriage")
	data := []byte("#!/bin/sh\necho fake binary\n")
	require.NoError(t, os.WriteFile(binPath, data, 0o755))

	sig := sign(t, sk, data)
	require.NoError(t, os.WriteFile(SignaturePathFor(binPath), sig, 0o644))

	v := NewVerifier()
	v.AddKey(pub)

	result, err := v.VerifyFile(binPath)
	require.NoError(t, err)
	assert.Equal(t, binPath, result.BinaryPath)
	assert.Equal(t, KeyFingerprint(pub), result.KeyFingerprint)
}

func TestVerifyFile_MissingSidecarErrors(t *testing.T) {
	dir := t.TempDir()
	binPath := filepath.Join(dir, "proctriage")
	require.NoError(t, os.WriteFile(binPath, []byte("data"), 0o755))

	v := NewVerifier()
	v.AddKey(mustPub(t))

	_, err := v.VerifyFile(binPath)
	assert.Error(t, err)
}

func TestVerifyFile_CorruptedSignatureFailsVerification(t *testing.T) {
	_, pub := testKeypair(t)
	dir := t.TempDir()
	binPath := filepath.Join(dir, "proctriage")
	require.NoError(t, os.WriteFile(binPath, []byte("data"), 0o755))
	require.NoError(t, os.WriteFile(SignaturePathFor(binPath), []byte("not a signature"), 0o644))

	v := NewVerifier()
	v.AddKey(pub)

	_, err := v.VerifyFile(binPath)
	assert.Error(t, err)
}

func mustPub(t *testing.T) *ecdsa.PublicKey {
	t.Helper()
	_, pub := testKeypair(t)
	return pub
}
