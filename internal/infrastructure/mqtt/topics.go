package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// TopicPrefixDevices is the base for all device topics.
const TopicPrefixDevices = "supla/devices"

// Command verbs accepted on channel command topics.
const (
	CommandSet      = "set"
	CommandExecute  = "execute_action"
	CommandGetState = "get_state"
	CommandConfig   = "config"
)

// Sub-commands under a channel's config topic.
const (
	ConfigSet      = "set"
	ConfigAck      = "ack"
	ConfigFinished = "finished"
)

// Topics builds the MQTT topics of one device.
//
//	topics := mqtt.NewTopics("SUPLA-DDEEFF")
//	topics.ChannelState(3)
//	// Returns: "supla/devices/supla-ddeeff/channels/3/state"
type Topics struct {
	base string
}

// NewTopics returns the topic builder for a device hostname.
// Hostnames are lower-cased so topics are stable across MAC formatting.
func NewTopics(hostname string) Topics {
	return Topics{base: TopicPrefixDevices + "/" + strings.ToLower(hostname)}
}

// Base returns the device topic root.
func (t Topics) Base() string { return t.base }

// =============================================================================
// Device Topics
// =============================================================================

// Status returns the retained online/offline topic, also used for the LWT.
//
// Example: supla/devices/supla-ddeeff/status
func (t Topics) Status() string { return t.base + "/status" }

// DeviceState returns the topic for network state reports.
//
// Example: supla/devices/supla-ddeeff/state
func (t Topics) DeviceState() string { return t.base + "/state" }

// CalCfg returns the topic for device-level calibration/configuration commands.
//
// Example: supla/devices/supla-ddeeff/calcfg
func (t Topics) CalCfg() string { return t.base + "/calcfg" }

// CalCfgResult returns the topic for calibration/configuration results.
func (t Topics) CalCfgResult() string { return t.base + "/calcfg/result" }

// DeviceConfig returns the topic carrying device-config change masks.
func (t Topics) DeviceConfig() string { return t.base + "/device_config/set" }

// =============================================================================
// Channel Topics
// =============================================================================

func (t Topics) channel(n int32) string {
	return fmt.Sprintf("%s/channels/%d", t.base, n)
}

// ChannelState returns the retained channel value topic.
//
// Example: supla/devices/supla-ddeeff/channels/3/state
func (t Topics) ChannelState(n int32) string { return t.channel(n) + "/state" }

// ChannelConfig returns the retained channel configuration topic.
//
// Example: supla/devices/supla-ddeeff/channels/3/config
func (t Topics) ChannelConfig(n int32) string { return t.channel(n) + "/" + CommandConfig }

// ChannelCommand returns an inbound command topic for a channel.
//
// Example: supla/devices/supla-ddeeff/channels/3/set
func (t Topics) ChannelCommand(n int32, verb string) string { return t.channel(n) + "/" + verb }

// ChannelConfigCommand returns an inbound channel configuration topic.
//
// Example: supla/devices/supla-ddeeff/channels/3/config/set
func (t Topics) ChannelConfigCommand(n int32, sub string) string {
	return t.ChannelConfig(n) + "/" + sub
}

// ChannelResult returns the topic a command's outcome is reported on.
//
// Example: supla/devices/supla-ddeeff/channels/3/set/result
func (t Topics) ChannelResult(n int32, path string) string {
	return t.channel(n) + "/" + path + "/result"
}

// ChannelStateReport returns the topic for diagnostic channel state.
//
// Example: supla/devices/supla-ddeeff/channels/3/channel_state
func (t Topics) ChannelStateReport(n int32) string { return t.channel(n) + "/channel_state" }

// =============================================================================
// Wildcard Subscriptions
// =============================================================================

// AllChannelCommands returns the subscription pattern for channel commands.
//
// Pattern: supla/devices/supla-ddeeff/channels/+/+
func (t Topics) AllChannelCommands() string { return t.base + "/channels/+/+" }

// AllChannelConfigCommands returns the subscription pattern for configuration
// pushes and acknowledgments.
//
// Pattern: supla/devices/supla-ddeeff/channels/+/config/+
func (t Topics) AllChannelConfigCommands() string { return t.base + "/channels/+/config/+" }

// ParseChannelTopic splits an inbound channel topic into its channel number
// and the remaining path, e.g. "set" or "config/set".
func (t Topics) ParseChannelTopic(topic string) (int32, string, bool) {
	rest, ok := strings.CutPrefix(topic, t.base+"/channels/")
	if !ok {
		return 0, "", false
	}
	num, tail, ok := strings.Cut(rest, "/")
	if !ok || tail == "" {
		return 0, "", false
	}
	n, err := strconv.ParseInt(num, 10, 32)
	if err != nil || n < 0 {
		return 0, "", false
	}
	return int32(n), tail, true
}
