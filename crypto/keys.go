package crypto

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// Address is the base58 identity of a ledger participant.
type Address = solana.PublicKey

// ParseAddress decodes a base58 address.
func ParseAddress(s string) (Address, error) {
	addr, err := solana.PublicKeyFromBase58(strings.TrimSpace(s))
	if err != nil {
		return Address{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return addr, nil
}

// --- Key Management ---

type PrivateKey struct {
	key solana.PrivateKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: key}, nil
}

// Bytes returns the 64-byte ed25519 private key (seed followed by public key).
func (k *PrivateKey) Bytes() []byte {
	out := make([]byte, len(k.key))
	copy(out, k.key)
	return out
}

// String renders the key as base58, the format used by Solana tooling.
func (k *PrivateKey) String() string { return k.key.String() }

func (k *PrivateKey) PubKey() Address {
	return k.key.PublicKey()
}

// Sign produces an ed25519 signature over msg.
func (k *PrivateKey) Sign(msg []byte) (solana.Signature, error) {
	return k.key.Sign(msg)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(b))
	}
	key := make(solana.PrivateKey, len(b))
	copy(key, b)
	derived := ed25519.NewKeyFromSeed(b[:ed25519.SeedSize])
	if !ed25519.PublicKey(derived[ed25519.SeedSize:]).Equal(ed25519.PublicKey(b[ed25519.SeedSize:])) {
		return nil, errors.New("private key public half does not match seed")
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBase58 decodes a base58-encoded 64-byte private key.
func PrivateKeyFromBase58(s string) (*PrivateKey, error) {
	key, err := solana.PrivateKeyFromBase58(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	return PrivateKeyFromBytes(key)
}

// Verify reports whether sig is a valid signature by signer over msg.
func Verify(signer Address, msg []byte, sig solana.Signature) bool {
	return signer.Verify(msg, sig)
}
