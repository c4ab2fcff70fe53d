package crypto

import (
	"math/big"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func testDigest(t *testing.T) ([32]byte, *PrivateKey, [20]byte) {
	t.Helper()
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	digest := DefaultDomain.TypedDigest("subject", "a@example.com", "b@example.com", 1_700_000_000)
	return digest, key, key.PubKey().RawAddress()
}

func TestRecoverSignerRoundTrip(t *testing.T) {
	digest, key, addr := testDigest(t)
	sig, err := key.SignDigest(digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if sig[64] != 27 && sig[64] != 28 {
		t.Fatalf("recovery indicator must be 27 or 28, got %d", sig[64])
	}
	recovered, ok := RecoverSigner(digest, sig)
	if !ok {
		t.Fatal("recovery failed for a valid signature")
	}
	if recovered != addr {
		t.Fatalf("recovered %x, want %x", recovered, addr)
	}
	if !VerifySignature(addr, digest, sig) {
		t.Fatal("verify must accept the signer's own signature")
	}
	var other [20]byte
	other[0] = 0x01
	if VerifySignature(other, digest, sig) {
		t.Fatal("verify must reject a different claimed signer")
	}
}

func TestRecoverSignerRejectsBadLength(t *testing.T) {
	digest, key, _ := testDigest(t)
	sig, err := key.SignDigest(digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	for _, mutated := range [][]byte{nil, {}, sig[:64], append(append([]byte{}, sig...), 0x00)} {
		if _, ok := RecoverSigner(digest, mutated); ok {
			t.Fatalf("length %d must not recover", len(mutated))
		}
	}
}

func TestRecoverSignerRejectsBadRecoveryIndicator(t *testing.T) {
	digest, key, _ := testDigest(t)
	sig, err := key.SignDigest(digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	for _, v := range []byte{0, 1, 2, 26, 29, 31, 255} {
		mutated := append([]byte{}, sig...)
		mutated[64] = v
		if _, ok := RecoverSigner(digest, mutated); ok {
			t.Fatalf("recovery indicator %d must not recover", v)
		}
	}
}

func TestRecoverSignerRejectsMalleableS(t *testing.T) {
	digest, key, _ := testDigest(t)
	sig, err := key.SignDigest(digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	// Flip the signature into its high-s twin: s' = N - s, v' = the other
	// indicator. Without the half-order check this variant also recovers.
	n := ethcrypto.S256().Params().N
	s := new(big.Int).SetBytes(sig[32:64])
	sPrime := new(big.Int).Sub(n, s)
	mutated := append([]byte{}, sig...)
	sPrime.FillBytes(mutated[32:64])
	if mutated[64] == 27 {
		mutated[64] = 28
	} else {
		mutated[64] = 27
	}
	if _, ok := RecoverSigner(digest, mutated); ok {
		t.Fatal("high-s signature variant must be rejected")
	}
}

func TestCanonicalizeExactBytes(t *testing.T) {
	if got := string(Canonicalize("subj", "a@x", "b@y")); got != "subja@xb@y" {
		t.Fatalf("canonical bytes mismatch: %q", got)
	}
	// No normalisation: leading/trailing whitespace is significant.
	if ContentHash(" subj", "a@x", "b@y") == ContentHash("subj", "a@x", "b@y") {
		t.Fatal("whitespace must change the digest")
	}
	// Empty subject is valid and hashes distinctly.
	if ContentHash("", "a@x", "b@y") == ContentHash("s", "a@x", "b@y") {
		t.Fatal("empty subject must produce a distinct digest")
	}
}

func TestTypedDigestDomainSeparation(t *testing.T) {
	base := DefaultDomain.TypedDigest("s", "a@x", "b@y", 100)
	otherChain := Domain{Name: "mailbond", Version: "1", ChainID: 2}
	if otherChain.TypedDigest("s", "a@x", "b@y", 100) == base {
		t.Fatal("different chain id must change the digest")
	}
	otherVersion := Domain{Name: "mailbond", Version: "2", ChainID: DefaultDomain.ChainID}
	if otherVersion.TypedDigest("s", "a@x", "b@y", 100) == base {
		t.Fatal("different version must change the digest")
	}
	if DefaultDomain.TypedDigest("s", "a@x", "b@y", 101) == base {
		t.Fatal("different timestamp must change the digest")
	}
	if DefaultDomain.TypedDigest("s2", "a@x", "b@y", 100) == base {
		t.Fatal("different subject must change the digest")
	}
	// The typed digest and the raw content hash never coincide: the prefix
	// and separator keep signing domains apart.
	if base == ContentHash("s", "a@x", "b@y") {
		t.Fatal("typed digest must differ from the bare content hash")
	}
}

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	decoded, err := DecodeAddress(addr.String())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Prefix() != MBDPrefix {
		t.Fatalf("prefix mismatch: %s", decoded.Prefix())
	}
	raw := key.PubKey().RawAddress()
	if string(decoded.Bytes()) != string(raw[:]) {
		t.Fatal("address bytes must round-trip through bech32")
	}
}
