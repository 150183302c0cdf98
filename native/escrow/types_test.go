package escrow

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateTerminal(t *testing.T) {
	require.False(t, StateActive.Terminal())
	require.False(t, StateDelivered.Terminal())
	require.False(t, StateDisputed.Terminal())
	require.True(t, StateCompleted.Terminal())
	require.True(t, StateCancelled.Terminal())
	require.True(t, StateRefunded.Terminal())
}

func TestAssetTypeEscrowable(t *testing.T) {
	require.False(t, AssetNFT.Escrowable(), "NFTs settle atomically and never enter escrow")
	require.True(t, AssetSocialMedia.Escrowable())
	require.True(t, AssetWebsite.Escrowable())
	require.True(t, AssetDomain.Escrowable())
	require.True(t, AssetOther.Escrowable())
	require.False(t, AssetType(99).Escrowable())
}

func TestParseAssetType(t *testing.T) {
	for name, want := range map[string]AssetType{
		"nft":          AssetNFT,
		"social_media": AssetSocialMedia,
		"Website":      AssetWebsite,
		" domain ":     AssetDomain,
		"OTHER":        AssetOther,
	} {
		got, err := ParseAssetType(name)
		require.NoError(t, err, name)
		require.Equal(t, want, got, name)
	}
	_, err := ParseAssetType("carbon_credits")
	require.Error(t, err)
}

func TestEscrowCloneIsDeep(t *testing.T) {
	original := &Escrow{ID: 1, Buyer: newTestAddress(0x01), Seller: newTestAddress(0x02), Amount: big.NewInt(500)}
	clone := original.Clone()
	clone.Amount.SetInt64(9)
	require.Equal(t, int64(500), original.Amount.Int64())

	var nilEscrow *Escrow
	require.Nil(t, nilEscrow.Clone())
}

func TestSanitizeEscrow(t *testing.T) {
	valid := &Escrow{ID: 1, Buyer: newTestAddress(0x01), Seller: newTestAddress(0x02), Amount: big.NewInt(1), State: StateActive, AssetType: AssetWebsite}
	sanitized, err := SanitizeEscrow(valid)
	require.NoError(t, err)
	require.NotSame(t, valid, sanitized)

	_, err = SanitizeEscrow(nil)
	require.Error(t, err)

	bad := valid.Clone()
	bad.Amount = big.NewInt(-1)
	_, err = SanitizeEscrow(bad)
	require.Error(t, err)

	bad = valid.Clone()
	bad.Amount = new(big.Int).Lsh(big.NewInt(1), 97)
	_, err = SanitizeEscrow(bad)
	require.Error(t, err)

	bad = valid.Clone()
	bad.State = State(42)
	_, err = SanitizeEscrow(bad)
	require.Error(t, err)

	bad = valid.Clone()
	bad.Seller = bad.Buyer
	_, err = SanitizeEscrow(bad)
	require.Error(t, err)

	// A nil amount is normalised to zero rather than rejected.
	sanitized, err = SanitizeEscrow(&Escrow{ID: 2, Buyer: newTestAddress(0x01), Seller: newTestAddress(0x02), State: StateCancelled, AssetType: AssetDomain})
	require.NoError(t, err)
	require.Zero(t, sanitized.Amount.Sign())
}
