package common

import (
	"errors"
	"strings"
	"sync"
)

// ErrModulePaused is returned when a guarded entry point is invoked while its
// module is administratively paused.
var ErrModulePaused = errors.New("module paused")

// PauseView answers whether a named module is currently paused.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the module is paused. A nil view or empty
// module name disables the check.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseSet is an in-memory PauseView mutated by the admin surface. Pausing a
// module stops new work from entering it; exit transitions stay available so
// custodied funds can always leave.
type PauseSet struct {
	mu     sync.RWMutex
	paused map[string]bool
}

// NewPauseSet returns an empty pause set.
func NewPauseSet() *PauseSet {
	return &PauseSet{paused: make(map[string]bool)}
}

// SetPaused toggles the pause flag for the named module.
func (p *PauseSet) SetPaused(module string, paused bool) {
	if p == nil {
		return
	}
	normalized := strings.ToLower(strings.TrimSpace(module))
	if normalized == "" {
		return
	}
	p.mu.Lock()
	if paused {
		p.paused[normalized] = true
	} else {
		delete(p.paused, normalized)
	}
	p.mu.Unlock()
}

// IsPaused implements PauseView.
func (p *PauseSet) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	normalized := strings.ToLower(strings.TrimSpace(module))
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused[normalized]
}
