package steem

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Chain IDs. Steem mainnet signs against the zero chain id, public
// testnets use their own.
var (
	ChainIDMainnet = [32]byte{}
	ChainIDTestnet = mustChainID("46d82ab7d8db682eb1959aed0ada039a6d49afa1602491f93dde9cac3e8e6c32")
)

func mustChainID(s string) [32]byte {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		panic("bad chain id literal")
	}
	var id [32]byte
	copy(id[:], raw)
	return id
}

// TimeFormat is the node's timestamp layout (UTC, no zone suffix).
const TimeFormat = "2006-01-02T15:04:05"

// KeyAuth marshals as the ["STM...", weight] tuple the node expects.
type KeyAuth struct {
	Key    string
	Weight uint16
}

func (k KeyAuth) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{k.Key, k.Weight})
}

func (k *KeyAuth) UnmarshalJSON(b []byte) error {
	var tup [2]json.RawMessage
	if err := json.Unmarshal(b, &tup); err != nil {
		return err
	}
	if err := json.Unmarshal(tup[0], &k.Key); err != nil {
		return err
	}
	return json.Unmarshal(tup[1], &k.Weight)
}

// AccountAuth marshals as ["account", weight].
type AccountAuth struct {
	Account string
	Weight  uint16
}

func (a AccountAuth) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{a.Account, a.Weight})
}

func (a *AccountAuth) UnmarshalJSON(b []byte) error {
	var tup [2]json.RawMessage
	if err := json.Unmarshal(b, &tup); err != nil {
		return err
	}
	if err := json.Unmarshal(tup[0], &a.Account); err != nil {
		return err
	}
	return json.Unmarshal(tup[1], &a.Weight)
}

// Authority is a weighted key/account set.
type Authority struct {
	WeightThreshold uint32        `json:"weight_threshold"`
	AccountAuths    []AccountAuth `json:"account_auths"`
	KeyAuths        []KeyAuth     `json:"key_auths"`
}

// CreateClaimedAccount is the claimed account creation operation, spending
// a previously claimed creation credit of the creator.
type CreateClaimedAccount struct {
	Creator        string        `json:"creator"`
	NewAccountName string        `json:"new_account_name"`
	Owner          Authority     `json:"owner"`
	Active         Authority     `json:"active"`
	Posting        Authority     `json:"posting"`
	MemoKey        string        `json:"memo_key"`
	JSONMetadata   string        `json:"json_metadata"`
	Extensions     []interface{} `json:"extensions"`
}

// opCreateClaimedAccount is the operation id in the protocol's static
// operation list.
const opCreateClaimedAccount = 23

// Operation pairs the wire name with its payload, marshalled as the
// ["name", {...}] tuple of the condenser API.
type Operation struct {
	Name    string
	Payload interface{}
}

func (o Operation) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{o.Name, o.Payload})
}

// Transaction is a signed or unsigned condenser transaction.
type Transaction struct {
	RefBlockNum    uint16      `json:"ref_block_num"`
	RefBlockPrefix uint32      `json:"ref_block_prefix"`
	Expiration     string      `json:"expiration"`
	Operations     []Operation `json:"operations"`
	Extensions     []string    `json:"extensions"`
	Signatures     []string    `json:"signatures"`
}

// ---------- binary serialization ----------

type wire struct {
	buf []byte
}

func (w *wire) varint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.buf = append(w.buf, tmp[:n]...)
}

func (w *wire) str(s string) {
	w.varint(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *wire) u16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *wire) u32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *wire) pubkey(encoded string) error {
	raw, err := DecodePublicKey(encoded)
	if err != nil {
		return err
	}
	w.buf = append(w.buf, raw...)
	return nil
}

func (w *wire) authority(a Authority) error {
	w.u32(a.WeightThreshold)
	w.varint(uint64(len(a.AccountAuths)))
	for _, aa := range a.AccountAuths {
		w.str(aa.Account)
		w.u16(aa.Weight)
	}
	w.varint(uint64(len(a.KeyAuths)))
	for _, ka := range a.KeyAuths {
		if err := w.pubkey(ka.Key); err != nil {
			return err
		}
		w.u16(ka.Weight)
	}
	return nil
}

func (w *wire) operation(op Operation) error {
	switch p := op.Payload.(type) {
	case CreateClaimedAccount:
		w.varint(opCreateClaimedAccount)
		w.str(p.Creator)
		w.str(p.NewAccountName)
		if err := w.authority(p.Owner); err != nil {
			return err
		}
		if err := w.authority(p.Active); err != nil {
			return err
		}
		if err := w.authority(p.Posting); err != nil {
			return err
		}
		if err := w.pubkey(p.MemoKey); err != nil {
			return err
		}
		w.str(p.JSONMetadata)
		w.varint(uint64(len(p.Extensions)))
		return nil
	default:
		return fmt.Errorf("cannot serialize operation %q", op.Name)
	}
}

// Serialize renders the transaction in the protocol's binary form, the
// input to the signing digest.
func (t *Transaction) Serialize() ([]byte, error) {
	exp, err := time.Parse(TimeFormat, t.Expiration)
	if err != nil {
		return nil, fmt.Errorf("expiration: %w", err)
	}
	w := &wire{}
	w.u16(t.RefBlockNum)
	w.u32(t.RefBlockPrefix)
	w.u32(uint32(exp.Unix()))
	w.varint(uint64(len(t.Operations)))
	for _, op := range t.Operations {
		if err := w.operation(op); err != nil {
			return nil, err
		}
	}
	w.varint(uint64(len(t.Extensions)))
	return w.buf, nil
}

// Digest is sha256(chain id || serialized transaction).
func (t *Transaction) Digest(chainID [32]byte) ([]byte, error) {
	ser, err := t.Serialize()
	if err != nil {
		return nil, err
	}
	h := sha256.New()
	h.Write(chainID[:])
	h.Write(ser)
	return h.Sum(nil), nil
}

// isCanonical reports whether a 64 byte r||s signature satisfies the
// node's canonicity rules (no high bits, no zero padding).
func isCanonical(rs []byte) bool {
	return rs[0]&0x80 == 0 &&
		!(rs[0] == 0 && rs[1]&0x80 == 0) &&
		rs[32]&0x80 == 0 &&
		!(rs[32] == 0 && rs[33]&0x80 == 0)
}

// Sign appends a canonical recoverable signature. Signing is
// deterministic, so when a digest yields a non-canonical signature the
// expiration is nudged a second to obtain a fresh digest, the same trick
// the reference client libraries use.
func (t *Transaction) Sign(key *PrivateKey, chainID [32]byte) error {
	for attempt := 0; attempt < 16; attempt++ {
		digest, err := t.Digest(chainID)
		if err != nil {
			return err
		}
		sig := ecdsa.SignCompact(key.key, digest, true)
		if isCanonical(sig[1:]) {
			t.Signatures = append(t.Signatures, hex.EncodeToString(sig))
			return nil
		}
		exp, err := time.Parse(TimeFormat, t.Expiration)
		if err != nil {
			return err
		}
		t.Expiration = exp.Add(time.Second).UTC().Format(TimeFormat)
	}
	return fmt.Errorf("could not produce canonical signature")
}

// RecoverSigner recovers the compressed public key of a signature over the
// transaction digest. Used in tests and signature sanity checks.
func (t *Transaction) RecoverSigner(chainID [32]byte, sigHex string) ([]byte, error) {
	digest, err := t.Digest(chainID)
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(sigHex)
	if err != nil {
		return nil, err
	}
	pub, _, err := ecdsa.RecoverCompact(raw, digest)
	if err != nil {
		return nil, err
	}
	return pub.SerializeCompressed(), nil
}

// refBlock derives the TaPoS reference fields from a head block id.
func refBlock(headBlockNumber uint32, headBlockID string) (uint16, uint32, error) {
	raw, err := hex.DecodeString(headBlockID)
	if err != nil || len(raw) < 8 {
		return 0, 0, fmt.Errorf("bad head block id %q", headBlockID)
	}
	return uint16(headBlockNumber & 0xFFFF), binary.LittleEndian.Uint32(raw[4:8]), nil
}
