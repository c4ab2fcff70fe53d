package crypto

import (
	"encoding/binary"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Domain binds signed digests to one deployment of the service. Signatures
// produced against a different name, version or chain id never verify here.
type Domain struct {
	Name    string
	Version string
	ChainID uint64
}

// DefaultDomain is the deployment identity used when no configuration
// overrides it.
var DefaultDomain = Domain{Name: "mailbond", Version: "1", ChainID: 1}

var (
	domainTypeHash   = ethcrypto.Keccak256([]byte("MailBondDomain(string name,string version,uint256 chainId)"))
	metadataTypeHash = ethcrypto.Keccak256([]byte("MailMetadata(string subject,string from,string to,uint64 timestamp)"))
)

// Canonicalize serialises mail metadata into its canonical byte form: the raw
// UTF-8 bytes of subject, from and to concatenated in that order. No
// normalisation or trimming is applied; an empty subject is valid.
func Canonicalize(subject, from, to string) []byte {
	out := make([]byte, 0, len(subject)+len(from)+len(to))
	out = append(out, subject...)
	out = append(out, from...)
	out = append(out, to...)
	return out
}

// ContentHash returns the keccak256 digest of the canonical metadata bytes.
func ContentHash(subject, from, to string) [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(Canonicalize(subject, from, to)))
	return out
}

// Separator computes the 32-byte domain separator for this deployment.
func (d Domain) Separator() [32]byte {
	encoded := make([]byte, 0, 128)
	encoded = append(encoded, domainTypeHash...)
	encoded = append(encoded, ethcrypto.Keccak256([]byte(d.Name))...)
	encoded = append(encoded, ethcrypto.Keccak256([]byte(d.Version))...)
	encoded = append(encoded, padUint64(d.ChainID)...)
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(encoded))
	return out
}

// MetadataStructHash hashes the typed metadata fields. String fields are
// keccak-hashed individually so field boundaries survive in the encoding.
func MetadataStructHash(subject, from, to string, timestamp uint64) [32]byte {
	encoded := make([]byte, 0, 160)
	encoded = append(encoded, metadataTypeHash...)
	encoded = append(encoded, ethcrypto.Keccak256([]byte(subject))...)
	encoded = append(encoded, ethcrypto.Keccak256([]byte(from))...)
	encoded = append(encoded, ethcrypto.Keccak256([]byte(to))...)
	encoded = append(encoded, padUint64(timestamp)...)
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(encoded))
	return out
}

// TypedDigest derives the digest a sender actually signs:
// keccak256(0x19 0x01 || domainSeparator || structHash).
func (d Domain) TypedDigest(subject, from, to string, timestamp uint64) [32]byte {
	separator := d.Separator()
	structHash := MetadataStructHash(subject, from, to, timestamp)
	encoded := make([]byte, 0, 66)
	encoded = append(encoded, 0x19, 0x01)
	encoded = append(encoded, separator[:]...)
	encoded = append(encoded, structHash[:]...)
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(encoded))
	return out
}

// SignDigest produces a 65-byte recoverable signature over the digest with
// the recovery indicator in the {27, 28} range.
func (k *PrivateKey) SignDigest(digest [32]byte) ([]byte, error) {
	if k == nil || k.PrivateKey == nil {
		return nil, fmt.Errorf("nil private key")
	}
	sig, err := ethcrypto.Sign(digest[:], k.PrivateKey)
	if err != nil {
		return nil, err
	}
	if len(sig) != SignatureLength {
		return nil, fmt.Errorf("unexpected signature length %d", len(sig))
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

func padUint64(v uint64) []byte {
	out := make([]byte, 32)
	binary.BigEndian.PutUint64(out[24:], v)
	return out
}
