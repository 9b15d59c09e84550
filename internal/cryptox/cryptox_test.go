package cryptox

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	c, err := New(key)
	require.NoError(t, err)
	return c
}

func TestNew_RejectsBadKeySizes(t *testing.T) {
	for _, n := range []int{0, 16, 24, 31, 33, 64} {
		_, err := New(make([]byte, n))
		assert.Error(t, err, "key size %d must be rejected", n)
	}
}

func TestNewFromHex(t *testing.T) {
	_, err := NewFromHex("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")
	assert.NoError(t, err)

	_, err = NewFromHex("not-hex")
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	c := newTestCipher(t)

	large := make([]byte, 3<<20)
	_, err := rand.Read(large)
	require.NoError(t, err)

	cases := [][]byte{
		{},
		[]byte("x"),
		[]byte("Hello, this is a 58-byte secret message for onetime use!!"),
		large,
	}

	for _, plaintext := range cases {
		ciphertext, meta, err := c.Encrypt(plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, ciphertext)

		got, err := c.Decrypt(ciphertext, meta)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(plaintext, got), "round-trip mismatch for %d bytes", len(plaintext))
	}
}

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	c := newTestCipher(t)
	plaintext := []byte("identical input")

	ct1, meta1, err := c.Encrypt(plaintext)
	require.NoError(t, err)
	ct2, meta2, err := c.Encrypt(plaintext)
	require.NoError(t, err)

	assert.NotEqual(t, meta1.Nonce, meta2.Nonce)
	assert.NotEqual(t, ct1, ct2)
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	c := newTestCipher(t)
	ciphertext, meta, err := c.Encrypt([]byte("sensitive payload"))
	require.NoError(t, err)

	// Flip one bit at every position; the tag must catch all of them.
	for i := range ciphertext {
		mutated := append([]byte(nil), ciphertext...)
		mutated[i] ^= 0x01
		_, err := c.Decrypt(mutated, meta)
		require.ErrorIs(t, err, ErrIntegrity, "bit flip at byte %d went undetected", i)
	}
}

func TestDecrypt_TamperedMetadata(t *testing.T) {
	c := newTestCipher(t)
	ciphertext, meta, err := c.Encrypt([]byte("sensitive payload"))
	require.NoError(t, err)

	bad := meta
	bad.Nonce = "000000000000000000000000"
	_, err = c.Decrypt(ciphertext, bad)
	assert.ErrorIs(t, err, ErrIntegrity)

	bad = meta
	bad.Nonce = "zz"
	_, err = c.Decrypt(ciphertext, bad)
	assert.ErrorIs(t, err, ErrIntegrity)

	bad = meta
	bad.Algorithm = "ROT13"
	_, err = c.Decrypt(ciphertext, bad)
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestDecrypt_WrongKey(t *testing.T) {
	c1 := newTestCipher(t)
	c2 := newTestCipher(t)

	ciphertext, meta, err := c1.Encrypt([]byte("sensitive payload"))
	require.NoError(t, err)

	_, err = c2.Decrypt(ciphertext, meta)
	assert.ErrorIs(t, err, ErrIntegrity)
}
