package roles

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
)

// Role identifiers recognised by the settlement platform.
const (
	RoleAdmin      = "ROLE_ADMIN"
	RoleFeeManager = "ROLE_FEE_MANAGER"
	RoleArbitrator = "ROLE_ARBITRATOR"
)

var rolePrefix = []byte("roles/")

// KV is the minimal persistence surface the registry needs. The state ledger
// satisfies it.
type KV interface {
	KVPut(key []byte, value interface{}) error
	KVGet(key []byte, out interface{}) (bool, error)
}

// Registry maintains role membership lists in persistent state. Member sets
// are expected to stay small (a handful of operator accounts), so each role
// is stored as a single RLP-encoded list.
type Registry struct {
	state KV
}

// NewRegistry binds a registry to the supplied state backend.
func NewRegistry(state KV) *Registry {
	return &Registry{state: state}
}

func roleKey(role string) []byte {
	return append(append([]byte{}, rolePrefix...), []byte(strings.TrimSpace(role))...)
}

func (r *Registry) members(role string) ([][20]byte, error) {
	if r == nil || r.state == nil {
		return nil, fmt.Errorf("roles: registry not configured")
	}
	var encoded []byte
	ok, err := r.state.KVGet(roleKey(role), &encoded)
	if err != nil {
		return nil, err
	}
	if !ok || len(encoded) == 0 {
		return [][20]byte{}, nil
	}
	var members [][20]byte
	if err := rlp.DecodeBytes(encoded, &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (r *Registry) store(role string, members [][20]byte) error {
	encoded, err := rlp.EncodeToBytes(members)
	if err != nil {
		return err
	}
	return r.state.KVPut(roleKey(role), encoded)
}

// Grant adds the address to the role's member set. Granting an existing
// member is a no-op.
func (r *Registry) Grant(role string, addr [20]byte) error {
	if addr == ([20]byte{}) {
		return fmt.Errorf("roles: zero address")
	}
	members, err := r.members(role)
	if err != nil {
		return err
	}
	for _, member := range members {
		if member == addr {
			return nil
		}
	}
	return r.store(role, append(members, addr))
}

// Revoke removes the address from the role's member set. Revoking a
// non-member is a no-op.
func (r *Registry) Revoke(role string, addr [20]byte) error {
	members, err := r.members(role)
	if err != nil {
		return err
	}
	filtered := members[:0]
	for _, member := range members {
		if member != addr {
			filtered = append(filtered, member)
		}
	}
	if len(filtered) == len(members) {
		return nil
	}
	return r.store(role, filtered)
}

// Members lists the addresses holding the role.
func (r *Registry) Members(role string) ([][20]byte, error) {
	return r.members(role)
}

// HasRole reports whether the address holds the role. Errors while reading
// the underlying state result in a false return, matching the best-effort
// semantics required by the callers.
func (r *Registry) HasRole(role string, addr [20]byte) bool {
	if addr == ([20]byte{}) {
		return false
	}
	members, err := r.members(role)
	if err != nil {
		return false
	}
	for _, member := range members {
		if member == addr {
			return true
		}
	}
	return false
}
