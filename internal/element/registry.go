package element

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Handle is a stable position in the registry.
type Handle int

// NoHandle is the empty result of a traversal or lookup.
const NoHandle Handle = -1

// Registry is the ordered set of elements of one device.
//
// Add is serialised by a mutex and publishes a new slice; every read works
// on an immutable snapshot loaded atomically, so it is safe from timer
// goroutines.
type Registry struct {
	addMu    sync.Mutex
	elements atomic.Pointer[[]Element]
	stale    atomic.Bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	empty := []Element{}
	r.elements.Store(&empty)
	return r
}

// Add appends e and raises the staleness flag.
//
// Returns:
//   - Handle: Position of e
//   - error: ErrChannelConflict if e claims an owned channel number
func (r *Registry) Add(e Element) (Handle, error) {
	if e == nil {
		return NoHandle, ErrNilElement
	}

	r.addMu.Lock()
	defer r.addMu.Unlock()

	current := r.Snapshot()
	claimed := channelNumbers(e)
	if len(claimed) == 2 && claimed[0] == claimed[1] {
		return NoHandle, fmt.Errorf("%w: %d", ErrChannelConflict, claimed[0])
	}
	for _, other := range current {
		for _, n := range channelNumbers(other) {
			for _, c := range claimed {
				if n == c {
					return NoHandle, fmt.Errorf("%w: %d", ErrChannelConflict, c)
				}
			}
		}
	}

	next := make([]Element, len(current), len(current)+1)
	copy(next, current)
	next = append(next, e)
	r.elements.Store(&next)
	r.stale.Store(true)
	return Handle(len(next) - 1), nil
}

// Snapshot returns the current element slice. Callers must not modify it.
func (r *Registry) Snapshot() []Element {
	return *r.elements.Load()
}

// Len returns the number of registered elements.
func (r *Registry) Len() int {
	return len(r.Snapshot())
}

// Begin returns the first element handle or NoHandle.
func (r *Registry) Begin() Handle {
	if r.Len() == 0 {
		return NoHandle
	}
	return 0
}

// Next returns the handle after h or NoHandle.
func (r *Registry) Next(h Handle) Handle {
	if h < 0 || int(h)+1 >= r.Len() {
		return NoHandle
	}
	return h + 1
}

// Last walks the registry and returns the final handle or NoHandle.
func (r *Registry) Last() Handle {
	last := NoHandle
	for h := r.Begin(); h != NoHandle; h = r.Next(h) {
		last = h
	}
	return last
}

// Get returns the element at h, or nil for NoHandle or out of range.
func (r *Registry) Get(h Handle) Element {
	elems := r.Snapshot()
	if h < 0 || int(h) >= len(elems) {
		return nil
	}
	return elems[h]
}

// ByChannelNumber returns the element owning channel n as primary or
// secondary, or nil. channel.None never matches.
func (r *Registry) ByChannelNumber(n int32) Element {
	if n < 0 {
		return nil
	}
	for _, e := range r.Snapshot() {
		for _, owned := range channelNumbers(e) {
			if owned == n {
				return e
			}
		}
	}
	return nil
}

// OwnerOfSubDeviceID returns the element claiming sub-device id, or nil.
func (r *Registry) OwnerOfSubDeviceID(id int) Element {
	for _, e := range r.Snapshot() {
		if o, ok := e.(SubDeviceOwner); ok && o.IsOwnerOfSubDeviceID(id) {
			return e
		}
	}
	return nil
}

// IsAnyUpdatePending reports whether any element still has data to send.
func (r *Registry) IsAnyUpdatePending() bool {
	for _, e := range r.Snapshot() {
		if IsAnyUpdatePending(e) {
			return true
		}
	}
	return false
}

// NotifyConfigChange calls OnDeviceConfigChange(fieldMask) on every element
// in creation order.
func (r *Registry) NotifyConfigChange(fieldMask uint64) {
	for _, e := range r.Snapshot() {
		if l, ok := e.(DeviceConfigListener); ok {
			l.OnDeviceConfigChange(fieldMask)
		}
	}
}

// IsInvalidPtrSet reports whether the registry changed since the flag was
// last cleared.
func (r *Registry) IsInvalidPtrSet() bool {
	return r.stale.Load()
}

// ClearInvalidPtr clears the staleness flag.
func (r *Registry) ClearInvalidPtr() {
	r.stale.Store(false)
}
