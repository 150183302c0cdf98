package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGuard(t *testing.T) {
	pauses := NewPauseSet()

	require.NoError(t, Guard(nil, "escrow"))
	require.NoError(t, Guard(pauses, ""))
	require.NoError(t, Guard(pauses, "escrow"))

	pauses.SetPaused("escrow", true)
	require.ErrorIs(t, Guard(pauses, "escrow"), ErrModulePaused)
	require.NoError(t, Guard(pauses, "lending"), "pause is per module")

	pauses.SetPaused("escrow", false)
	require.NoError(t, Guard(pauses, "escrow"))
}

func TestPauseSetNormalisesNames(t *testing.T) {
	pauses := NewPauseSet()
	pauses.SetPaused("  Escrow ", true)
	require.True(t, pauses.IsPaused("escrow"))
	require.True(t, pauses.IsPaused("ESCROW"))

	pauses.SetPaused("", true)
	require.False(t, pauses.IsPaused(""))
}

func TestPauseSetNilReceiver(t *testing.T) {
	var pauses *PauseSet
	pauses.SetPaused("escrow", true)
	require.False(t, pauses.IsPaused("escrow"))
}
