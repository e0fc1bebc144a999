// Package telemetry records channel values to InfluxDB.
//
// Recorder is itself an element without channels: it runs from
// IterateAlways on the main loop and walks the registry snapshot at a fixed
// interval. Writes go to the batched, non-blocking InfluxDB write API, so a
// slow or absent database never stalls the loop.
package telemetry

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/nerrad567/gray-logic-device/internal/channel"
	"github.com/nerrad567/gray-logic-device/internal/element"
	"github.com/nerrad567/gray-logic-device/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-device/internal/proto"
)

// DefaultInterval is the sampling interval when none is configured.
const DefaultInterval = time.Minute

// Writer receives samples. *influxdb.Client implements it.
type Writer interface {
	WriteChannelSample(s influxdb.ChannelSample)
}

// Identity names the device in every sample.
type Identity interface {
	GUID() string
	Hostname() string
}

// Recorder samples every channel of a registry.
type Recorder struct {
	element.Base

	registry *element.Registry
	writer   Writer
	identity Identity
	interval time.Duration
	now      func() time.Time
	last     time.Time
	samples  uint64
}

// NewRecorder creates a recorder. It must be added to the same registry it
// samples.
func NewRecorder(registry *element.Registry, writer Writer, identity Identity, interval time.Duration) *Recorder {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Recorder{
		Base:     element.NewBase(nil, nil),
		registry: registry,
		writer:   writer,
		identity: identity,
		interval: interval,
		now:      time.Now,
	}
}

// SetClock replaces time.Now, for tests.
func (r *Recorder) SetClock(now func() time.Time) { r.now = now }

// Samples returns how many samples were written.
func (r *Recorder) Samples() uint64 { return r.samples }

// OnInit starts the first interval.
func (r *Recorder) OnInit() { r.last = r.now() }

func (r *Recorder) IterateAlways() {
	now := r.now()
	if now.Sub(r.last) < r.interval {
		return
	}
	r.last = now
	r.Record(now)
}

// Record writes one sample per channel.
func (r *Recorder) Record(now time.Time) {
	guid, hostname := r.identity.GUID(), r.identity.Hostname()
	for _, e := range r.registry.Snapshot() {
		for _, ch := range []*channel.Channel{e.Channel(), e.SecondaryChannel()} {
			if ch == nil {
				continue
			}
			raw := ch.Value()
			fn := ch.Function()
			r.writer.WriteChannelSample(influxdb.ChannelSample{
				DeviceGUID: guid,
				Hostname:   hostname,
				Channel:    ch.Number(),
				Function:   fn,
				Online:     ch.Online(),
				Raw:        binary.LittleEndian.Uint64(raw[:]),
				Value:      Decode(fn, raw),
				Time:       now,
			})
			r.samples++
		}
	}
}

// Decode interprets a raw value for the functions that carry a reading.
// It returns nil for the rest.
func Decode(function int32, raw [proto.ChannelValueSize]byte) *float64 {
	var v float64
	switch function {
	case channel.FunctionThermometer:
		v = math.Float64frombits(binary.LittleEndian.Uint64(raw[:]))
	case channel.FunctionHVACThermostat, channel.FunctionHVACThermostatAuto:
		v = float64(int16(binary.LittleEndian.Uint16(raw[:2]))) / 100
	case channel.FunctionPowerSwitch, channel.FunctionLightSwitch:
		if raw[0] != 0 {
			v = 1
		}
	default:
		return nil
	}
	return &v
}
