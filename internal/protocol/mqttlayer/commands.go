package mqttlayer

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-device/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-device/internal/proto"
	"github.com/nerrad567/gray-logic-device/internal/protocol"
)

// Execute actions accepted on channels/<n>/execute_action.
const (
	ActionTurnOn  = "TURN_ON"
	ActionTurnOff = "TURN_OFF"
	ActionToggle  = "TOGGLE"
)

type setPayload struct {
	SenderID   int32  `json:"sender_id,omitempty"`
	DurationMs uint32 `json:"duration_ms,omitempty"`
	Value      string `json:"value,omitempty"`
	On         *bool  `json:"on,omitempty"`
}

type resultPayload struct {
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	Code    int    `json:"code"`
}

type configPayload struct {
	Func   int32            `json:"func"`
	Type   proto.ConfigType `json:"type"`
	Config []byte           `json:"config,omitempty"`
	Last   bool             `json:"last,omitempty"`
}

type configAckPayload struct {
	Type   proto.ConfigType `json:"type"`
	Result proto.ResultCode `json:"result"`
}

type calCfgPayload struct {
	SenderID  int32  `json:"sender_id,omitempty"`
	Channel   *int32 `json:"channel,omitempty"`
	Command   int32  `json:"command"`
	SuperUser bool   `json:"super_user,omitempty"`
	DataType  int32  `json:"data_type,omitempty"`
	Data      []byte `json:"data,omitempty"`
}

type calCfgResultPayload struct {
	Channel int32  `json:"channel"`
	Command int32  `json:"command"`
	Result  string `json:"result"`
	Code    int    `json:"code"`
}

type deviceConfigPayload struct {
	Fields uint64 `json:"fields"`
}

type channelStatePayload struct {
	Fields      uint32 `json:"fields"`
	IPv4        string `json:"ipv4,omitempty"`
	MAC         string `json:"mac,omitempty"`
	WiFiRSSI    int32  `json:"wifi_rssi,omitempty"`
	WiFiSignal  uint8  `json:"wifi_signal,omitempty"`
	BatteryLvl  uint8  `json:"battery_level,omitempty"`
	Uptime      uint32 `json:"uptime,omitempty"`
	Connection  uint32 `json:"connection_uptime,omitempty"`
	LastRestart uint8  `json:"last_restart_reason,omitempty"`
}

func (l *Layer) handle(m message) {
	if l.dispatcher == nil {
		return
	}

	var err error
	switch m.topic {
	case l.topics.CalCfg():
		err = l.handleCalCfg(m.payload)
	case l.topics.DeviceConfig():
		err = l.handleDeviceConfig(m.payload)
	default:
		n, path, ok := l.topics.ParseChannelTopic(m.topic)
		if !ok {
			return
		}
		err = l.handleChannel(n, path, m.payload)
	}
	if err != nil {
		l.logger.Warn("mqtt command rejected", "topic", m.topic, "error", err)
	}
}

func (l *Layer) handleChannel(n int32, path string, payload []byte) error {
	switch path {
	case mqtt.CommandSet:
		return l.handleSet(n, payload)
	case mqtt.CommandExecute:
		return l.handleExecute(n, payload)
	case mqtt.CommandGetState:
		return l.handleGetState(n)
	case mqtt.CommandConfig + "/" + mqtt.ConfigSet:
		return l.handleConfigSet(n, payload)
	case mqtt.CommandConfig + "/" + mqtt.ConfigAck:
		return l.handleConfigAck(n, payload)
	case mqtt.CommandConfig + "/" + mqtt.ConfigFinished:
		l.dispatcher.HandleChannelConfigFinished(n)
		return nil
	}
	// Our own retained state and config topics echo back through the
	// wildcard subscription.
	return nil
}

func (l *Layer) handleSet(n int32, payload []byte) error {
	var p setPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decoding set: %w", err)
	}
	v := proto.NewValue{SenderID: p.SenderID, ChannelNumber: n, DurationMs: p.DurationMs}
	switch {
	case p.On != nil:
		if *p.On {
			v.Value[0] = 1
		}
	case p.Value != "":
		raw, err := hex.DecodeString(p.Value)
		if err != nil {
			return fmt.Errorf("decoding value: %w", err)
		}
		if len(raw) > proto.ChannelValueSize {
			return fmt.Errorf("value is %d bytes, max %d", len(raw), proto.ChannelValueSize)
		}
		copy(v.Value[:], raw)
	default:
		return errors.New("set carries neither on nor value")
	}
	l.reply(n, mqtt.CommandSet, l.dispatcher.HandleNewValue(&v))
	return nil
}

func (l *Layer) handleExecute(n int32, payload []byte) error {
	v := proto.NewValue{ChannelNumber: n}
	switch strings.ToUpper(strings.TrimSpace(string(payload))) {
	case ActionTurnOn:
		v.Value[0] = 1
	case ActionTurnOff:
	case ActionToggle:
		cur := proto.NewValue{ChannelNumber: n}
		l.dispatcher.FillNewValue(&cur)
		if cur.Value[0] == 0 {
			v.Value[0] = 1
		}
	default:
		return fmt.Errorf("unknown action %q", payload)
	}
	l.reply(n, mqtt.CommandExecute, l.dispatcher.HandleNewValue(&v))
	return nil
}

func (l *Layer) reply(n int32, path string, action proto.ReplyAction) {
	if action == proto.ReplySuppress {
		return
	}
	l.publishReply(l.topics.ChannelResult(n, path), resultPayload{
		Success: action == proto.ReplySuccess,
		Code:    int(action),
	})
}

func (l *Layer) handleGetState(n int32) error {
	st := proto.ChannelState{ChannelNumber: n}
	l.dispatcher.HandleGetChannelState(&st)

	p := channelStatePayload{
		Fields:      st.Fields,
		WiFiRSSI:    st.WiFiRSSI,
		WiFiSignal:  st.WiFiSignal,
		BatteryLvl:  st.BatteryLvl,
		Uptime:      st.Uptime,
		Connection:  st.Connection,
		LastRestart: st.LastRestart,
	}
	if st.Fields&proto.ChannelStateFieldIPv4 != 0 {
		p.IPv4 = fmt.Sprintf("%d.%d.%d.%d", st.IPv4[0], st.IPv4[1], st.IPv4[2], st.IPv4[3])
	}
	if st.Fields&proto.ChannelStateFieldMAC != 0 {
		m := st.MAC
		p.MAC = fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", m[0], m[1], m[2], m[3], m[4], m[5])
	}
	l.publishReply(l.topics.ChannelStateReport(n), p)
	return nil
}

func (l *Layer) handleConfigSet(n int32, payload []byte) error {
	var p configPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	cfg := proto.ChannelConfig{ChannelNumber: n, Func: p.Func, ConfigType: p.Type, Config: p.Config}
	code := l.dispatcher.HandleChannelConfig(&cfg, false)
	l.publishReply(l.topics.ChannelResult(n, mqtt.CommandConfig+"/"+mqtt.ConfigSet), resultPayload{
		Success: code == proto.ResultCodeTrue,
		Result:  code.String(),
		Code:    int(code),
	})
	if p.Last {
		l.dispatcher.HandleChannelConfigFinished(n)
	}
	return nil
}

func (l *Layer) handleConfigAck(n int32, payload []byte) error {
	var p configAckPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decoding config ack: %w", err)
	}
	l.dispatcher.HandleSetChannelConfigResult(&proto.SetChannelConfigResult{
		ChannelNumber: n,
		ConfigType:    p.Type,
		Result:        p.Result,
	})
	return nil
}

func (l *Layer) handleCalCfg(payload []byte) error {
	var p calCfgPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decoding calcfg: %w", err)
	}
	req := proto.CalCfgRequest{
		SenderID:      p.SenderID,
		ChannelNumber: -1,
		Command:       p.Command,
		SuperUserAuth: p.SuperUser,
		DataType:      p.DataType,
		Data:          p.Data,
	}
	if p.Channel != nil {
		req.ChannelNumber = *p.Channel
	}
	res := l.dispatcher.HandleCalCfg(&req)
	l.publishReply(l.topics.CalCfgResult(), calCfgResultPayload{
		Channel: req.ChannelNumber,
		Command: req.Command,
		Result:  res.String(),
		Code:    int(res),
	})
	return nil
}

func (l *Layer) handleDeviceConfig(payload []byte) error {
	var p deviceConfigPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decoding device config: %w", err)
	}
	l.dispatcher.HandleDeviceConfigChange(p.Fields)
	return nil
}

// publishReply sends a response to a server request, logging failures.
func (l *Layer) publishReply(topic string, v any) {
	if err := l.publishJSON(topic, v, false); err != nil {
		l.logger.Warn("mqtt reply not sent", "topic", topic, "error", err)
	}
}

func (l *Layer) publishJSON(topic string, v any, retained bool) error {
	if l.conn == nil {
		return fmt.Errorf("publishing %s: %w", topic, protocol.ErrNotConnected)
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", topic, err)
	}
	return l.conn.PublishAsync(topic, payload, l.Settings().QoS, retained)
}
