package roles_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"vertix/native/roles"
	"vertix/state"
	"vertix/storage"
)

func newTestRegistry(t *testing.T) *roles.Registry {
	t.Helper()
	return roles.NewRegistry(state.NewLedger(storage.NewMemDB()))
}

func TestGrantAndHasRole(t *testing.T) {
	registry := newTestRegistry(t)
	arbiter := [20]byte{0x01}

	require.False(t, registry.HasRole(roles.RoleArbitrator, arbiter))
	require.NoError(t, registry.Grant(roles.RoleArbitrator, arbiter))
	require.True(t, registry.HasRole(roles.RoleArbitrator, arbiter))
	require.False(t, registry.HasRole(roles.RoleAdmin, arbiter), "roles do not bleed into each other")
}

func TestGrantIdempotent(t *testing.T) {
	registry := newTestRegistry(t)
	admin := [20]byte{0x02}

	require.NoError(t, registry.Grant(roles.RoleAdmin, admin))
	require.NoError(t, registry.Grant(roles.RoleAdmin, admin))

	members, err := registry.Members(roles.RoleAdmin)
	require.NoError(t, err)
	require.Len(t, members, 1)
}

func TestGrantZeroAddressRejected(t *testing.T) {
	registry := newTestRegistry(t)
	require.Error(t, registry.Grant(roles.RoleAdmin, [20]byte{}))
}

func TestRevoke(t *testing.T) {
	registry := newTestRegistry(t)
	first := [20]byte{0x01}
	second := [20]byte{0x02}

	require.NoError(t, registry.Grant(roles.RoleFeeManager, first))
	require.NoError(t, registry.Grant(roles.RoleFeeManager, second))
	require.NoError(t, registry.Revoke(roles.RoleFeeManager, first))

	require.False(t, registry.HasRole(roles.RoleFeeManager, first))
	require.True(t, registry.HasRole(roles.RoleFeeManager, second))

	// Revoking a non-member is a no-op.
	require.NoError(t, registry.Revoke(roles.RoleFeeManager, first))
}

func TestHasRoleZeroAddress(t *testing.T) {
	registry := newTestRegistry(t)
	require.False(t, registry.HasRole(roles.RoleAdmin, [20]byte{}))
}

type failingKV struct{}

func (failingKV) KVPut(key []byte, value interface{}) error { return errors.New("kv: down") }

func (failingKV) KVGet(key []byte, out interface{}) (bool, error) {
	return false, errors.New("kv: down")
}

func TestHasRoleSwallowsStateErrors(t *testing.T) {
	registry := roles.NewRegistry(failingKV{})
	require.False(t, registry.HasRole(roles.RoleAdmin, [20]byte{0x01}))

	_, err := registry.Members(roles.RoleAdmin)
	require.Error(t, err, "explicit reads still surface errors")
}
