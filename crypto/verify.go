package crypto

import (
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the size of a recoverable signature: 32-byte r, 32-byte
// s and a one-byte recovery indicator.
const SignatureLength = 65

// RecoverSigner reconstructs the 20-byte account that produced the signature
// over digest. It returns false for malformed input: wrong length, a recovery
// indicator outside {27, 28}, an s value above half the curve order (the
// malleable half), or a point that does not recover. It never panics on
// attacker-controlled input.
func RecoverSigner(digest [32]byte, sig []byte) ([20]byte, bool) {
	var zero [20]byte
	if len(sig) != SignatureLength {
		return zero, false
	}
	v := sig[64]
	if v != 27 && v != 28 {
		return zero, false
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if !ethcrypto.ValidateSignatureValues(v-27, r, s, true) {
		return zero, false
	}
	normalized := make([]byte, SignatureLength)
	copy(normalized, sig[:64])
	normalized[64] = v - 27
	pub, err := ethcrypto.SigToPub(digest[:], normalized)
	if err != nil {
		return zero, false
	}
	var out [20]byte
	copy(out[:], ethcrypto.PubkeyToAddress(*pub).Bytes())
	return out, true
}

// VerifySignature reports whether sig is a valid recoverable signature over
// digest produced by signer.
func VerifySignature(signer [20]byte, digest [32]byte, sig []byte) bool {
	recovered, ok := RecoverSigner(digest, sig)
	if !ok {
		return false
	}
	return recovered == signer
}
