package crypto

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ParseAddress decodes a 0x-prefixed hex account address into its raw form.
func ParseAddress(s string) ([20]byte, error) {
	if !common.IsHexAddress(s) {
		return [20]byte{}, fmt.Errorf("crypto: invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// FormatAddress renders a raw account address in its checksummed hex form.
func FormatAddress(addr [20]byte) string {
	return common.Address(addr).Hex()
}
