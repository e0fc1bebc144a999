// Package channel holds the per-channel value slot that elements own and the
// protocol layers report to the server.
package channel

import (
	"sync"
	"sync/atomic"

	"github.com/nerrad567/gray-logic-device/internal/proto"
)

// None is the channel number sentinel meaning "no channel".
const None int32 = -1

// Function codes used by the bundled elements.
const (
	FunctionNone               int32 = 0
	FunctionThermometer        int32 = 40
	FunctionPowerSwitch        int32 = 130
	FunctionLightSwitch        int32 = 140
	FunctionHVACThermostat     int32 = 420
	FunctionHVACThermostatAuto int32 = 422
)

// Channel is one addressable device function.
//
// Value access is guarded by a mutex because elements update values from
// the main loop while the protocol layer reads them when publishing. The
// update-pending flag is atomic so timer handlers can raise it.
type Channel struct {
	number int32

	mu       sync.Mutex
	function int32
	caption  string
	value    [proto.ChannelValueSize]byte
	online   bool

	updatePending atomic.Bool
}

// New creates a channel with the given number.
func New(number int32) *Channel {
	return &Channel{number: number, online: true}
}

// Number returns the channel number.
func (c *Channel) Number() int32 {
	if c == nil {
		return None
	}
	return c.number
}

// Function returns the current function code.
func (c *Channel) Function() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.function
}

// SetFunction sets the function code.
func (c *Channel) SetFunction(fn int32) {
	c.mu.Lock()
	c.function = fn
	c.mu.Unlock()
}

// Caption returns the initial caption.
func (c *Channel) Caption() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caption
}

// SetCaption sets the initial caption reported at registration.
func (c *Channel) SetCaption(caption string) {
	c.mu.Lock()
	c.caption = caption
	c.mu.Unlock()
}

// Value returns a copy of the raw value.
func (c *Channel) Value() [proto.ChannelValueSize]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// SetValue replaces the raw value and marks the channel for sending when it
// changed.
func (c *Channel) SetValue(v [proto.ChannelValueSize]byte) {
	c.mu.Lock()
	changed := c.value != v
	c.value = v
	c.mu.Unlock()
	if changed {
		c.updatePending.Store(true)
	}
}

// SetBool stores a boolean in the first value byte.
func (c *Channel) SetBool(on bool) {
	var v [proto.ChannelValueSize]byte
	if on {
		v[0] = 1
	}
	c.SetValue(v)
}

// Bool reads the first value byte as a boolean.
func (c *Channel) Bool() bool {
	v := c.Value()
	return v[0] != 0
}

// SetOnline sets the reported online flag.
func (c *Channel) SetOnline(online bool) {
	c.mu.Lock()
	changed := c.online != online
	c.online = online
	c.mu.Unlock()
	if changed {
		c.updatePending.Store(true)
	}
}

// Online returns the reported online flag.
func (c *Channel) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// IsUpdatePending reports whether the value changed since it was last sent.
func (c *Channel) IsUpdatePending() bool {
	return c.updatePending.Load()
}

// RequestUpdate marks the channel for sending.
func (c *Channel) RequestUpdate() {
	c.updatePending.Store(true)
}

// ClearUpdatePending is called once the value was handed to the server.
func (c *Channel) ClearUpdatePending() {
	c.updatePending.Store(false)
}
