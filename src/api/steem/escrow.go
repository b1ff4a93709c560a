package steem

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrEscrowMismatch covers every structural verification failure: missing
// transaction, wrong operation, or any field that does not match what the
// bounty expects.
var ErrEscrowMismatch = errors.New("escrow transfer does not match")

// EscrowTransfer is the on-chain escrow_transfer operation payload.
type EscrowTransfer struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Agent       string `json:"agent"`
	EscrowID    uint64 `json:"escrow_id"`
	SbdAmount   string `json:"sbd_amount"`
	SteemAmount string `json:"steem_amount"`
	Fee         string `json:"fee"`
}

// EscrowExpectation is what the bounty says the transfer must look like.
// Principal is the bounty amount as a 3-decimal string.
type EscrowExpectation struct {
	From      string
	To        string
	Agent     string
	EscrowID  uint64
	Principal string
}

// ParseAmountMillis converts an asset string like "1.000 SBD" to integer
// milli-units and its symbol. Amounts compare in fixed point, never float.
func ParseAmountMillis(s string) (int64, string, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 || len(fields) > 2 {
		return 0, "", fmt.Errorf("bad asset %q", s)
	}
	symbol := ""
	if len(fields) == 2 {
		symbol = fields[1]
	}

	num := fields[0]
	neg := false
	if strings.HasPrefix(num, "-") {
		neg = true
		num = num[1:]
	}
	intPart := num
	fracPart := ""
	if i := strings.IndexByte(num, '.'); i >= 0 {
		intPart, fracPart = num[:i], num[i+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > 3 {
		// truncate beyond milli precision
		fracPart = fracPart[:3]
	}
	for len(fracPart) < 3 {
		fracPart += "0"
	}
	// 15 integer digits keep the milli accumulation far from int64 wrap
	if len(strings.TrimLeft(intPart, "0")) > 15 {
		return 0, "", fmt.Errorf("amount out of range %q", s)
	}

	var millis int64
	for _, r := range intPart + fracPart {
		if r < '0' || r > '9' {
			return 0, "", fmt.Errorf("bad asset %q", s)
		}
		millis = millis*10 + int64(r-'0')
	}
	if neg {
		millis = -millis
	}
	return millis, symbol, nil
}

// FormatMillis renders milli-units back as a 3-decimal string.
func FormatMillis(m int64) string {
	sign := ""
	if m < 0 {
		sign = "-"
		m = -m
	}
	return fmt.Sprintf("%s%d.%03d", sign, m/1000, m%1000)
}

// escrowFee is 5% of the principal, rounded to the milli.
func escrowFee(principalMillis int64) int64 {
	return (principalMillis*5 + 50) / 100
}

// VerifyEscrowTransfer locates the claimed transaction in the block and
// checks its first operation field by field against the expectation.
func VerifyEscrowTransfer(block *Block, txID string, expect EscrowExpectation) error {
	if block == nil {
		return ErrEscrowMismatch
	}

	var tx *BlockTransaction
	for i := range block.Transactions {
		if block.Transactions[i].TransactionID == txID {
			tx = &block.Transactions[i]
			break
		}
	}
	if tx == nil || len(tx.Operations) == 0 {
		return ErrEscrowMismatch
	}

	op := tx.Operations[0]
	if op.Name != "escrow_transfer" {
		return ErrEscrowMismatch
	}
	var transfer EscrowTransfer
	if err := json.Unmarshal(op.Payload, &transfer); err != nil {
		return ErrEscrowMismatch
	}

	if transfer.From != expect.From ||
		transfer.To != expect.To ||
		transfer.Agent != expect.Agent ||
		transfer.EscrowID != expect.EscrowID {
		return ErrEscrowMismatch
	}

	principal, _, err := ParseAmountMillis(expect.Principal)
	if err != nil {
		return ErrEscrowMismatch
	}
	sbd, symbol, err := ParseAmountMillis(transfer.SbdAmount)
	if err != nil || symbol != "SBD" || sbd != principal {
		return ErrEscrowMismatch
	}
	fee, symbol, err := ParseAmountMillis(transfer.Fee)
	if err != nil || symbol != "SBD" || fee != escrowFee(principal) {
		return ErrEscrowMismatch
	}

	return nil
}
