// Package fieldcipher encrypts individual record fields at rest.
//
// A single master key, loaded from a private key file, is expanded with
// HKDF-SHA256 into an XChaCha20-Poly1305 key for field encryption and an
// HMAC-SHA256 key for blind indexes. Ciphertexts are self-describing:
//
//	enc1:<key fingerprint>:<base64url(nonce || sealed)>
package fieldcipher

import (
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	envelopeVersion = "enc1"
	fingerprintLen  = 8
)

var (
	// ErrCorruptedCiphertext is the umbrella for every decryption failure.
	ErrCorruptedCiphertext = errors.New("corrupted ciphertext")
	// ErrKeyMismatch means the value was sealed under a different master key.
	ErrKeyMismatch = fmt.Errorf("%w: sealed with a different key", ErrCorruptedCiphertext)
	// ErrMalformed means the envelope could not be parsed.
	ErrMalformed = fmt.Errorf("%w: malformed envelope", ErrCorruptedCiphertext)
	// ErrAuthentication means the authentication tag did not verify.
	ErrAuthentication = fmt.Errorf("%w: authentication failed", ErrCorruptedCiphertext)
)

// Cipher is immutable after construction and safe for concurrent use.
type Cipher struct {
	aead        cipher.AEAD
	indexKey    []byte
	fingerprint string
}

// New derives the field and index keys from masterKey.
func New(masterKey []byte) (*Cipher, error) {
	if len(masterKey) != KeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", KeySize, len(masterKey))
	}

	fieldKey, err := derive(masterKey, "oncocentre field encryption v1", chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(fieldKey)
	indexKey, err := derive(masterKey, "oncocentre blind index v1", 32)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(fieldKey)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}

	sum := sha256.Sum256(append([]byte("oncocentre key fingerprint:"), masterKey...))
	return &Cipher{
		aead:        aead,
		indexKey:    indexKey,
		fingerprint: hex.EncodeToString(sum[:fingerprintLen/2]),
	}, nil
}

// Open loads (or creates) the key file at path and builds a Cipher from it.
func Open(path string) (*Cipher, bool, error) {
	key, created, err := LoadOrCreateKey(path)
	if err != nil {
		return nil, false, err
	}
	defer ZeroBytes(key)
	c, err := New(key)
	return c, created, err
}

func derive(master []byte, info string, n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(info)), out); err != nil {
		return nil, fmt.Errorf("derive %q: %w", info, err)
	}
	return out, nil
}

// Fingerprint identifies the master key without revealing it.
func (c *Cipher) Fingerprint() string {
	return c.fingerprint
}

// Encrypt seals plaintext under a fresh random nonce, so encrypting the same
// value twice yields different ciphertexts.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), c.additionalData())
	return envelopeVersion + ":" + c.fingerprint + ":" + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Every failure wraps
// ErrCorruptedCiphertext; it never returns partial or empty plaintext.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	parts := strings.SplitN(ciphertext, ":", 3)
	if len(parts) != 3 || parts[0] != envelopeVersion {
		return "", ErrMalformed
	}
	if parts[1] != c.fingerprint {
		return "", ErrKeyMismatch
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return "", ErrMalformed
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns+c.aead.Overhead() {
		return "", ErrMalformed
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], c.additionalData())
	if err != nil {
		return "", ErrAuthentication
	}
	return string(plain), nil
}

// BlindIndex returns a deterministic keyed digest of value, suitable for
// equality lookups on an encrypted column without decrypting every row.
func (c *Cipher) BlindIndex(value string) string {
	mac := hmac.New(sha256.New, c.indexKey)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Cipher) additionalData() []byte {
	return []byte(envelopeVersion)
}
