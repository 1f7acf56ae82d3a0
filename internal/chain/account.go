// Package chain parses the fixed-layout on-chain deposit account used by
// the liquid mirror to reconcile agent balances.
package chain

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
)

var discriminator = [8]byte{0xD8, 0x92, 0x6F, 0x2A, 0x5C, 0x08, 0x4A, 0x3E}

const (
	layoutLegacyLen = 48
	layoutV2Len     = 80
	layoutV3Len     = 88
)

// DepositAccount is the decoded form of an on-chain deposit account.
type DepositAccount struct {
	Owner       string // base58
	Mint        string // base58, or "SOL" for the legacy layout
	Balance     int64
	DepositCode string // empty for legacy/V2 layouts
}

// ParseDepositAccount decodes data per the versioned layout selected by its
// length. It returns (nil, nil) — not an error — on any short, malformed,
// or overflowing input, since callers treat parse failure as "skip this
// account" rather than a hard fault.
func ParseDepositAccount(data []byte) (*DepositAccount, error) {
	if len(data) < 8 || !hasDiscriminator(data) {
		return nil, nil
	}

	switch len(data) {
	case layoutLegacyLen:
		return parseLegacy(data)
	case layoutV2Len:
		return parseV2(data)
	case layoutV3Len:
		return parseV3(data)
	default:
		return nil, nil
	}
}

func hasDiscriminator(data []byte) bool {
	for i := 0; i < 8; i++ {
		if data[i] != discriminator[i] {
			return false
		}
	}
	return true
}

func parseLegacy(data []byte) (*DepositAccount, error) {
	owner := data[8:40]
	balance, ok := readBalance(data, 40)
	if !ok {
		return nil, nil
	}
	return &DepositAccount{
		Owner:   base58.Encode(owner),
		Mint:    "SOL",
		Balance: balance,
	}, nil
}

func parseV2(data []byte) (*DepositAccount, error) {
	owner := data[8:40]
	mint := data[40:72]
	balance, ok := readBalance(data, 72)
	if !ok {
		return nil, nil
	}
	return &DepositAccount{
		Owner:   base58.Encode(owner),
		Mint:    base58.Encode(mint),
		Balance: balance,
	}, nil
}

func parseV3(data []byte) (*DepositAccount, error) {
	owner := data[8:40]
	mint := data[40:72]
	depositCode := strings.TrimRight(string(data[72:80]), "\x00")
	balance, ok := readBalance(data, 80)
	if !ok {
		return nil, nil
	}
	return &DepositAccount{
		Owner:       base58.Encode(owner),
		Mint:        base58.Encode(mint),
		Balance:     balance,
		DepositCode: depositCode,
	}, nil
}

// readBalance decodes the little-endian u64 balance at offset, rejecting
// values that would overflow the ledger's signed 64-bit integer.
func readBalance(data []byte, offset int) (int64, bool) {
	raw := binary.LittleEndian.Uint64(data[offset : offset+8])
	if raw > math.MaxInt64 {
		return 0, false
	}
	return int64(raw), true
}
