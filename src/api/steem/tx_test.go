package steem

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"
)

func testAuthority(key *PrivateKey) Authority {
	return Authority{
		WeightThreshold: 1,
		AccountAuths:    []AccountAuth{},
		KeyAuths:        []KeyAuth{{Key: key.PublicString(PrefixMainnet), Weight: 1}},
	}
}

func testTransaction(t *testing.T) *Transaction {
	t.Helper()
	key := PrivateKeyFromLogin("newbie", "owner", "pw")
	return &Transaction{
		RefBlockNum:    36029,
		RefBlockPrefix: 1164960351,
		Expiration:     "2026-09-01T12:00:00",
		Operations: []Operation{{
			Name: "create_claimed_account",
			Payload: CreateClaimedAccount{
				Creator:        "utopian.pay",
				NewAccountName: "newbie",
				Owner:          testAuthority(key),
				Active:         testAuthority(key),
				Posting:        testAuthority(key),
				MemoKey:        key.PublicString(PrefixMainnet),
				JSONMetadata:   "",
				Extensions:     []interface{}{},
			},
		}},
		Extensions: []string{},
		Signatures: []string{},
	}
}

func TestKeyAuthJSONTuple(t *testing.T) {
	raw, err := json.Marshal(KeyAuth{Key: "STMkey", Weight: 1})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `["STMkey",1]` {
		t.Fatalf("unexpected tuple: %s", raw)
	}

	var back KeyAuth
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Key != "STMkey" || back.Weight != 1 {
		t.Fatalf("roundtrip mismatch: %+v", back)
	}
}

func TestOperationMarshalsAsTuple(t *testing.T) {
	raw, err := json.Marshal(Operation{Name: "create_claimed_account", Payload: map[string]string{}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `["create_claimed_account",{}]` {
		t.Fatalf("unexpected tuple: %s", raw)
	}
}

func TestRefBlock(t *testing.T) {
	// block id layout: 4 byte big-endian block number, then entropy;
	// the prefix reads bytes 4..8 little-endian.
	num, prefix, err := refBlock(123456, "0001e240aabbccdd00000000")
	if err != nil {
		t.Fatalf("refBlock: %v", err)
	}
	if num != uint16(123456&0xFFFF) {
		t.Fatalf("ref num = %d", num)
	}
	if prefix != 0xddccbbaa {
		t.Fatalf("ref prefix = %#x", prefix)
	}

	if _, _, err := refBlock(1, "zz"); err == nil {
		t.Fatal("expected bad block id error")
	}
	if _, _, err := refBlock(1, "0001"); err == nil {
		t.Fatal("expected short block id error")
	}
}

func TestSerializeHeader(t *testing.T) {
	tx := testTransaction(t)
	ser, err := tx.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	if got := binary.LittleEndian.Uint16(ser[0:2]); got != tx.RefBlockNum {
		t.Fatalf("ref block num on wire = %d", got)
	}
	if got := binary.LittleEndian.Uint32(ser[2:6]); got != tx.RefBlockPrefix {
		t.Fatalf("ref block prefix on wire = %#x", got)
	}

	exp, _ := time.Parse(TimeFormat, tx.Expiration)
	if got := binary.LittleEndian.Uint32(ser[6:10]); got != uint32(exp.Unix()) {
		t.Fatalf("expiration on wire = %d, want %d", got, exp.Unix())
	}

	// one operation, id 23
	if ser[10] != 1 || ser[11] != opCreateClaimedAccount {
		t.Fatalf("operation header = % x", ser[10:12])
	}
}

func TestSerializeRejectsUnknownOperation(t *testing.T) {
	tx := testTransaction(t)
	tx.Operations = []Operation{{Name: "transfer", Payload: struct{}{}}}
	if _, err := tx.Serialize(); err == nil {
		t.Fatal("expected serialization error")
	}
}

func TestSignAndRecover(t *testing.T) {
	key := PrivateKeyFromLogin("utopian.pay", "active", "pw")
	tx := testTransaction(t)

	if err := tx.Sign(key, ChainIDMainnet); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(tx.Signatures) != 1 {
		t.Fatalf("signatures = %d", len(tx.Signatures))
	}

	raw, err := hex.DecodeString(tx.Signatures[0])
	if err != nil || len(raw) != 65 {
		t.Fatalf("signature encoding: len=%d err=%v", len(raw), err)
	}
	if !isCanonical(raw[1:]) {
		t.Fatal("signature is not canonical")
	}

	pub, err := tx.RecoverSigner(ChainIDMainnet, tx.Signatures[0])
	if err != nil {
		t.Fatalf("RecoverSigner: %v", err)
	}
	if !bytes.Equal(pub, key.Public()) {
		t.Fatal("recovered key does not match signer")
	}
}

func TestSignDifferentChainsDiffer(t *testing.T) {
	key := PrivateKeyFromLogin("utopian.pay", "active", "pw")

	main := testTransaction(t)
	if err := main.Sign(key, ChainIDMainnet); err != nil {
		t.Fatalf("Sign mainnet: %v", err)
	}
	test := testTransaction(t)
	if err := test.Sign(key, ChainIDTestnet); err != nil {
		t.Fatalf("Sign testnet: %v", err)
	}

	if main.Expiration == test.Expiration && main.Signatures[0] == test.Signatures[0] {
		t.Fatal("chain id did not enter the digest")
	}
}
