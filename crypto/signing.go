package crypto

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/blake3"
)

// SigningDomain prefixes every signed RPC payload.
const SigningDomain = "lotto-rpc-v1"

var ErrInvalidSignature = errors.New("crypto: invalid signature")

// RequestDigest binds payload to method so a signature cannot be replayed
// against a different instruction.
func RequestDigest(method string, payload []byte) [32]byte {
	h := blake3.New(32, nil)
	h.Write([]byte(SigningDomain))
	h.Write([]byte{'|'})
	h.Write([]byte(method))
	h.Write([]byte{'|'})
	h.Write(payload)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SignRequest signs the digest of (method, payload).
func SignRequest(key *PrivateKey, method string, payload []byte) (solana.Signature, error) {
	if key == nil {
		return solana.Signature{}, errors.New("crypto: nil private key")
	}
	digest := RequestDigest(method, payload)
	return key.Sign(digest[:])
}

// VerifyRequest checks a base58 signature produced by SignRequest.
func VerifyRequest(signer Address, method string, payload []byte, signature string) error {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	digest := RequestDigest(method, payload)
	if !signer.Verify(digest[:], sig) {
		return ErrInvalidSignature
	}
	return nil
}
