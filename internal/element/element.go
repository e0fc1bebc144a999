package element

import (
	"strconv"

	"github.com/nerrad567/gray-logic-device/internal/channel"
	"github.com/nerrad567/gray-logic-device/internal/storage"
)

// Element is a registered device behaviour unit.
type Element interface {
	// Channel returns the primary channel, or nil.
	Channel() *channel.Channel
	// SecondaryChannel returns the secondary channel, or nil.
	SecondaryChannel() *channel.Channel
}

// Traffic is returned from IterateConnected to tell the orchestrator whether
// the element used the outbound buffer this tick.
type Traffic int

const (
	// NoTraffic lets the orchestrator offer the tick to the next element.
	NoTraffic Traffic = iota
	// TrafficSent ends dispatch for this tick.
	TrafficSent
)

// String returns the traffic name.
func (t Traffic) String() string {
	if t == TrafficSent {
		return "traffic_sent"
	}
	return "no_traffic"
}

// Base carries the channel references and the small amount of state every
// element shares. Embed it.
type Base struct {
	primary   *channel.Channel
	secondary *channel.Channel

	channelStateDisabled bool
}

// NewBase creates a Base for the given channels. Either may be nil.
func NewBase(primary, secondary *channel.Channel) Base {
	return Base{primary: primary, secondary: secondary}
}

// Channel implements Element.
func (b *Base) Channel() *channel.Channel {
	return b.primary
}

// SecondaryChannel implements Element.
func (b *Base) SecondaryChannel() *channel.Channel {
	return b.secondary
}

// ChannelNumber returns the primary channel number or channel.None.
func (b *Base) ChannelNumber() int32 {
	return b.primary.Number()
}

// SecondaryChannelNumber returns the secondary channel number or channel.None.
func (b *Base) SecondaryChannelNumber() int32 {
	return b.secondary.Number()
}

// DisableChannelState stops the element from answering channel state
// requests.
func (b *Base) DisableChannelState() {
	b.channelStateDisabled = true
}

// IsChannelStateEnabled reports whether channel state requests are answered.
func (b *Base) IsChannelStateEnabled() bool {
	return !b.channelStateDisabled
}

// SetInitialCaption sets the caption reported for the primary or secondary
// channel.
func (b *Base) SetInitialCaption(caption string, secondary bool) {
	if ch := b.pick(secondary); ch != nil {
		ch.SetCaption(caption)
	}
}

// SetDefaultFunction sets the default function of the primary or secondary
// channel.
func (b *Base) SetDefaultFunction(fn int32, secondary bool) {
	if ch := b.pick(secondary); ch != nil {
		ch.SetFunction(fn)
	}
}

func (b *Base) pick(secondary bool) *channel.Channel {
	if secondary {
		return b.secondary
	}
	return b.primary
}

// GenerateKey derives a storage key for this element's primary channel.
func (b *Base) GenerateKey(key string) string {
	return GenerateKey(b.ChannelNumber(), key)
}

// GenerateKey returns "<channelNumber>_<key>" truncated to fit
// storage.MaxKeySize. For channel.None the key is returned unprefixed, with
// the same truncation.
func GenerateKey(channelNumber int32, key string) string {
	out := key
	if channelNumber != channel.None {
		out = strconv.Itoa(int(channelNumber)) + "_" + key
	}
	if len(out) > storage.MaxKeySize-1 {
		out = out[:storage.MaxKeySize-1]
	}
	return out
}

// channelNumbers returns the channel numbers owned by e, skipping None.
func channelNumbers(e Element) []int32 {
	var out []int32
	if n := e.Channel().Number(); n != channel.None {
		out = append(out, n)
	}
	if n := e.SecondaryChannel().Number(); n != channel.None {
		out = append(out, n)
	}
	return out
}
