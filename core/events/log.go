package events

import (
	"strings"
	"sync"

	"vertix/core/types"
)

const defaultLogCapacity = 1024

// Entry is a recorded event together with its emission sequence number.
// Sequence numbers are monotonically increasing for the lifetime of the log.
type Entry struct {
	Sequence   uint64
	Type       string
	Attributes map[string]string
}

type payloadEvent interface {
	Event() *types.Event
}

// Log retains the most recent emitted events in memory so the RPC surface can
// serve them to off-chain indexers that poll rather than subscribe.
type Log struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	next     uint64
	forward  Emitter
}

// NewLog creates an event log bounded to the supplied capacity. A
// non-positive capacity falls back to the default.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = defaultLogCapacity
	}
	return &Log{capacity: capacity, forward: NoopEmitter{}}
}

// SetForward configures a downstream emitter invoked after the event is
// recorded. Passing nil resets forwarding to a no-op.
func (l *Log) SetForward(next Emitter) {
	if l == nil {
		return
	}
	l.mu.Lock()
	if next == nil {
		l.forward = NoopEmitter{}
	} else {
		l.forward = next
	}
	l.mu.Unlock()
}

// Emit records the event and forwards it downstream. Events without a typed
// payload are retained with their type only.
func (l *Log) Emit(evt Event) {
	if l == nil || evt == nil {
		return
	}
	entry := Entry{Type: evt.EventType()}
	if payload, ok := evt.(payloadEvent); ok {
		if e := payload.Event(); e != nil {
			attrs := make(map[string]string, len(e.Attributes))
			for k, v := range e.Attributes {
				attrs[k] = v
			}
			entry.Attributes = attrs
		}
	}
	l.mu.Lock()
	entry.Sequence = l.next
	l.next++
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.capacity {
		l.entries = l.entries[len(l.entries)-l.capacity:]
	}
	forward := l.forward
	l.mu.Unlock()
	forward.Emit(evt)
}

// List returns at most limit retained entries whose type carries the supplied
// prefix, oldest first. A non-positive limit returns all matches.
func (l *Log) List(prefix string, limit int) []Entry {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	matched := make([]Entry, 0, len(l.entries))
	for _, entry := range l.entries {
		if prefix != "" && !strings.HasPrefix(entry.Type, prefix) {
			continue
		}
		matched = append(matched, entry)
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched
}
