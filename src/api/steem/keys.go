package steem

import (
	"crypto/sha256"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160"
)

// Address prefixes. Mainnet keys carry STM, testnets rewrite to STX.
const (
	PrefixMainnet = "STM"
	PrefixTestnet = "STX"
)

type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// PrivateKeyFromWIF decodes a base58check encoded private key.
func PrivateKeyFromWIF(wif string) (*PrivateKey, error) {
	raw, err := base58.Decode(wif)
	if err != nil {
		return nil, fmt.Errorf("wif: %w", err)
	}
	if len(raw) != 37 || raw[0] != 0x80 {
		return nil, fmt.Errorf("wif: bad length or version")
	}
	payload, check := raw[:33], raw[33:]
	sum := sha256.Sum256(payload)
	sum = sha256.Sum256(sum[:])
	for i := 0; i < 4; i++ {
		if check[i] != sum[i] {
			return nil, fmt.Errorf("wif: checksum mismatch")
		}
	}
	return &PrivateKey{key: secp256k1.PrivKeyFromBytes(payload[1:])}, nil
}

// PrivateKeyFromLogin derives a key from account name, role and password,
// the way steem wallets derive owner/active/posting keys.
func PrivateKeyFromLogin(account, role, password string) *PrivateKey {
	seed := sha256.Sum256([]byte(account + role + password))
	return &PrivateKey{key: secp256k1.PrivKeyFromBytes(seed[:])}
}

// WIF encodes the key as base58check.
func (p *PrivateKey) WIF() string {
	payload := append([]byte{0x80}, p.key.Serialize()...)
	sum := sha256.Sum256(payload)
	sum = sha256.Sum256(sum[:])
	return base58.Encode(append(payload, sum[:4]...))
}

// Public returns the compressed public key bytes.
func (p *PrivateKey) Public() []byte {
	return p.key.PubKey().SerializeCompressed()
}

// PublicString encodes the public key with the given prefix.
func (p *PrivateKey) PublicString(prefix string) string {
	return EncodePublicKey(p.Public(), prefix)
}

// EncodePublicKey renders a compressed public key as prefix + base58 with a
// 4 byte ripemd160 checksum, the graphene convention.
func EncodePublicKey(compressed []byte, prefix string) string {
	h := ripemd160.New()
	h.Write(compressed)
	sum := h.Sum(nil)
	return prefix + base58.Encode(append(append([]byte{}, compressed...), sum[:4]...))
}

// DecodePublicKey parses a prefixed public key back to compressed bytes.
func DecodePublicKey(s string) ([]byte, error) {
	if len(s) < 4 {
		return nil, fmt.Errorf("public key too short")
	}
	raw, err := base58.Decode(s[3:])
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	if len(raw) != 37 {
		return nil, fmt.Errorf("public key: bad length %d", len(raw))
	}
	key, check := raw[:33], raw[33:]
	h := ripemd160.New()
	h.Write(key)
	sum := h.Sum(nil)
	for i := 0; i < 4; i++ {
		if check[i] != sum[i] {
			return nil, fmt.Errorf("public key: checksum mismatch")
		}
	}
	return key, nil
}

// SwapPrefix rewrites the address prefix of an encoded public key, used to
// turn STM keys into STX ones when provisioning on a testnet.
func SwapPrefix(key, prefix string) (string, error) {
	raw, err := DecodePublicKey(key)
	if err != nil {
		return "", err
	}
	return EncodePublicKey(raw, prefix), nil
}
