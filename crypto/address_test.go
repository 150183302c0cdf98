package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("0x00000000000000000000000000000000000000fe")
	require.NoError(t, err)
	require.Equal(t, byte(0xFE), addr[19])

	for _, bad := range []string{"", "0x1234", "not-an-address", "0xZZ000000000000000000000000000000000000ZZ"} {
		_, err := ParseAddress(bad)
		require.Error(t, err, bad)
	}
}

func TestFormatAddressRoundTrip(t *testing.T) {
	original := [20]byte{0x01, 0x02, 0x03}
	parsed, err := ParseAddress(FormatAddress(original))
	require.NoError(t, err)
	require.Equal(t, original, parsed)
}
