package keyvault

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/mr-tron/base58"
)

var ErrMalformedKey = errors.New("malformed private key material")

type KeyKind int

const (
	KeyHex KeyKind = iota
	KeyWIF
)

// PrivateKey is decrypted signing material with its source encoding resolved
// once at parse time. Instances are short-lived: decrypt, sign, discard.
type PrivateKey struct {
	Kind KeyKind
	key  *btcec.PrivateKey
}

// ParsePrivateKey accepts either a 64-character hex scalar or a
// base58check-encoded WIF string.
func ParsePrivateKey(material string) (PrivateKey, error) {
	if len(material) == 64 {
		if raw, err := hex.DecodeString(material); err == nil {
			priv, _ := btcec.PrivKeyFromBytes(raw)
			return PrivateKey{Kind: KeyHex, key: priv}, nil
		}
	}
	priv, err := decodeWIF(material)
	if err != nil {
		return PrivateKey{}, err
	}
	return PrivateKey{Kind: KeyWIF, key: priv}, nil
}

// Sign produces a canonical DER-encoded ECDSA signature over hash.
// Signatures are deterministic (RFC 6979), so retrying a signing step yields
// the same bytes.
func (k PrivateKey) Sign(hash []byte) []byte {
	return btcecdsa.Sign(k.key, hash).Serialize()
}

// PubKeyCompressed returns the 33-byte compressed public key matching the
// signature, as expected by the broadcast endpoint.
func (k PrivateKey) PubKeyCompressed() []byte {
	return k.key.PubKey().SerializeCompressed()
}

// decodeWIF unpacks version || key32 || [0x01] || checksum4 and verifies the
// double-SHA256 checksum.
func decodeWIF(wif string) (*btcec.PrivateKey, error) {
	decoded, err := base58.Decode(wif)
	if err != nil {
		return nil, ErrMalformedKey
	}
	if len(decoded) != 37 && len(decoded) != 38 {
		return nil, ErrMalformedKey
	}
	payload := decoded[:len(decoded)-4]
	checksum := decoded[len(decoded)-4:]
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	for i := 0; i < 4; i++ {
		if checksum[i] != second[i] {
			return nil, ErrMalformedKey
		}
	}
	keyBytes := payload[1:33]
	if len(decoded) == 38 && payload[33] != 0x01 {
		return nil, ErrMalformedKey
	}
	priv, _ := btcec.PrivKeyFromBytes(keyBytes)
	return priv, nil
}
