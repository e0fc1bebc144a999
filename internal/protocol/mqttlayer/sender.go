package mqttlayer

import (
	"encoding/hex"

	"github.com/nerrad567/gray-logic-device/internal/proto"
	"github.com/nerrad567/gray-logic-device/internal/protocol"
)

type valuePayload struct {
	Value  string `json:"value"`
	On     bool   `json:"on"`
	Online bool   `json:"online"`
}

type channelConfigPayload struct {
	Func   int32            `json:"func"`
	Type   proto.ConfigType `json:"type"`
	Config []byte           `json:"config,omitempty"`
}

// sender publishes element updates on the layer's session.
type sender struct {
	l *Layer
}

func (s sender) SendChannelValue(channelNumber int32, value [proto.ChannelValueSize]byte, online bool) error {
	if !s.l.IsRegistered() {
		return protocol.ErrNotConnected
	}
	return s.l.publishJSON(s.l.topics.ChannelState(channelNumber), valuePayload{
		Value:  hex.EncodeToString(value[:]),
		On:     value[0] != 0,
		Online: online,
	}, s.l.Settings().Retain)
}

func (s sender) SendChannelConfig(cfg proto.ChannelConfig) error {
	if !s.l.IsRegistered() {
		return protocol.ErrNotConnected
	}
	return s.l.publishJSON(s.l.topics.ChannelConfig(cfg.ChannelNumber), channelConfigPayload{
		Func:   cfg.Func,
		Type:   cfg.ConfigType,
		Config: cfg.Config,
	}, true)
}
