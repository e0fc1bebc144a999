package device

import (
	"github.com/nerrad567/gray-logic-device/internal/element"
	"github.com/nerrad567/gray-logic-device/internal/proto"
	"github.com/nerrad567/gray-logic-device/internal/protocol"
)

var _ protocol.Dispatcher = (*Device)(nil)

// HandleNewValue routes a new value to the element owning the channel.
func (d *Device) HandleNewValue(v *proto.NewValue) proto.ReplyAction {
	d.metrics.IncServerRequest("new_value")
	e := d.elements.ByChannelNumber(v.ChannelNumber)
	if e == nil {
		d.logger.Warn("new value for unknown channel", "channel", v.ChannelNumber)
		return proto.ReplySuppress
	}
	return element.HandleNewValue(e, v)
}

// FillNewValue fills v with the current value of its channel.
func (d *Device) FillNewValue(v *proto.NewValue) {
	e := d.elements.ByChannelNumber(v.ChannelNumber)
	if e == nil {
		v.Value = [proto.ChannelValueSize]byte{}
		return
	}
	element.FillNewValue(e, v)
}

// HandleGetChannelState prefills network and uptime data, then lets the
// owning element add its fields.
func (d *Device) HandleGetChannelState(state *proto.ChannelState) {
	d.metrics.IncServerRequest("channel_state")
	d.network.FillStateData(state)
	if !d.startedAt.IsZero() {
		state.Uptime = uint32(d.now().Sub(d.startedAt).Seconds())
		state.Fields |= proto.ChannelStateFieldUptime
	}
	if e := d.elements.ByChannelNumber(state.ChannelNumber); e != nil {
		element.HandleGetChannelState(e, state)
	}
}

// HandleCalCfg handles device-level commands (channel -1) itself and routes
// the rest to the owning element.
func (d *Device) HandleCalCfg(req *proto.CalCfgRequest) proto.CalCfgResult {
	d.metrics.IncServerRequest("calcfg")
	if req.ChannelNumber < 0 {
		return d.handleDeviceCalCfg(req)
	}
	e := d.elements.ByChannelNumber(req.ChannelNumber)
	if e == nil {
		return proto.CalCfgResultIDNotExists
	}
	return element.HandleCalCfg(e, req)
}

func (d *Device) handleDeviceCalCfg(req *proto.CalCfgRequest) proto.CalCfgResult {
	switch req.Command {
	case proto.CalCfgCmdEnterConfigMode:
		if !req.SuperUserAuth {
			return proto.CalCfgResultUnauthorized
		}
		d.logger.Info("entering config mode on server request")
		d.network.SetConfigMode()
		return proto.CalCfgResultDone

	case proto.CalCfgCmdRestartDevice:
		if !req.SuperUserAuth {
			return proto.CalCfgResultUnauthorized
		}
		d.logger.Info("restart requested by server")
		d.SoftReset()
		if d.restartHook != nil {
			d.restartHook()
		}
		return proto.CalCfgResultDone
	}
	return proto.CalCfgResultNotSupported
}

// HandleChannelConfig routes a channel config to the owning element. Weekly
// schedule types go to the schedule handler with the matching slot.
func (d *Device) HandleChannelConfig(cfg *proto.ChannelConfig, local bool) proto.ResultCode {
	d.metrics.IncServerRequest("channel_config")
	e := d.elements.ByChannelNumber(cfg.ChannelNumber)
	if e == nil {
		return proto.ResultCodeIDNotExists
	}
	switch cfg.ConfigType {
	case proto.ConfigTypeWeeklySchedule:
		return element.HandleWeeklySchedule(e, cfg, false, local)
	case proto.ConfigTypeAltWeeklySchedule:
		return element.HandleWeeklySchedule(e, cfg, true, local)
	}
	return element.HandleChannelConfig(e, cfg, local)
}

// HandleSetChannelConfigResult routes the server's answer to a config the
// device pushed.
func (d *Device) HandleSetChannelConfigResult(res *proto.SetChannelConfigResult) {
	if e := d.elements.ByChannelNumber(res.ChannelNumber); e != nil {
		element.HandleSetChannelConfigResult(e, res)
	}
}

// HandleChannelConfigFinished tells the owning element the server finished
// sending its configs.
func (d *Device) HandleChannelConfigFinished(channelNumber int32) {
	if e := d.elements.ByChannelNumber(channelNumber); e != nil {
		element.HandleChannelConfigFinished(e)
	}
}

// HandleDeviceConfigChange broadcasts a device config change.
func (d *Device) HandleDeviceConfigChange(fieldMask uint64) {
	d.metrics.IncServerRequest("device_config")
	d.NotifyConfigChange(fieldMask)
}

// NotifyConfigChange broadcasts fieldMask to every element exactly once.
func (d *Device) NotifyConfigChange(fieldMask uint64) {
	d.elements.NotifyConfigChange(fieldMask)
}

// IsAnyUpdatePending reports whether any element has data waiting to be sent.
func (d *Device) IsAnyUpdatePending() bool {
	return d.elements.IsAnyUpdatePending()
}
