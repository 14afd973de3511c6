package keyvault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

var ErrDecryption = errors.New("unable to decrypt key material")

const nonceSize = 12

// deriveKey stretches the key-encryption secret into a 32-byte AES key via
// HKDF-SHA256. The info label pins the derived key to this use so the same
// secret can never double as key material elsewhere.
func deriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("key encryption secret is empty")
	}
	reader := hkdf.New(sha256.New, []byte(secret), nil, []byte("settlement/address-key-vault/v1"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Encrypt seals plaintext with AES-256-GCM under a key derived from secret.
// A fresh random 12-byte nonce is generated per call and prepended to the
// ciphertext, so encrypting the same plaintext twice yields different blobs.
func Encrypt(plaintext, secret string) (string, error) {
	key, err := deriveKey(secret)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any corruption or secret mismatch surfaces as
// ErrDecryption; callers must treat the result as sensitive and drop it as
// soon as signing completes.
func Decrypt(blob, secret string) (string, error) {
	key, err := deriveKey(secret)
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", ErrDecryption
	}
	if len(raw) <= nonceSize {
		return "", ErrDecryption
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", ErrDecryption
	}
	return string(plaintext), nil
}
