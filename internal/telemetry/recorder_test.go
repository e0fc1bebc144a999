package telemetry

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-device/internal/channel"
	"github.com/nerrad567/gray-logic-device/internal/element"
	"github.com/nerrad567/gray-logic-device/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-device/internal/proto"
)

type recordingWriter struct {
	samples []influxdb.ChannelSample
}

func (w *recordingWriter) WriteChannelSample(s influxdb.ChannelSample) {
	w.samples = append(w.samples, s)
}

type identity struct{}

func (identity) GUID() string     { return "guid-1" }
func (identity) Hostname() string { return "SUPLA-DDEEFF" }

type plain struct{ element.Base }

func newPlain(primary, secondary int32, fn int32) *plain {
	var p, s *channel.Channel
	if primary != channel.None {
		p = channel.New(primary)
		p.SetFunction(fn)
	}
	if secondary != channel.None {
		s = channel.New(secondary)
	}
	return &plain{Base: element.NewBase(p, s)}
}

func TestRecorder_Interval(t *testing.T) {
	reg := element.NewRegistry()
	w := &recordingWriter{}
	now := time.Unix(5000, 0)

	rec := NewRecorder(reg, w, identity{}, time.Minute)
	rec.SetClock(func() time.Time { return now })
	relay := newPlain(0, 1, channel.FunctionPowerSwitch)
	relay.Channel().SetBool(true)
	for _, e := range []element.Element{relay, rec} {
		if _, err := reg.Add(e); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	rec.OnInit()

	now = now.Add(30 * time.Second)
	rec.IterateAlways()
	if len(w.samples) != 0 {
		t.Fatal("sampled before the interval elapsed")
	}

	now = now.Add(31 * time.Second)
	rec.IterateAlways()
	if len(w.samples) != 2 {
		t.Fatalf("samples = %d, want 2 (primary and secondary)", len(w.samples))
	}
	s := w.samples[0]
	if s.DeviceGUID != "guid-1" || s.Hostname != "SUPLA-DDEEFF" || s.Channel != 0 || s.Raw != 1 {
		t.Errorf("sample = %+v", s)
	}
	if s.Value == nil || *s.Value != 1 {
		t.Errorf("switch value = %v, want 1", s.Value)
	}
	if w.samples[1].Channel != 1 || w.samples[1].Value != nil {
		t.Errorf("secondary sample = %+v", w.samples[1])
	}
	if rec.Samples() != 2 {
		t.Errorf("Samples() = %d", rec.Samples())
	}
}

func TestDecode(t *testing.T) {
	var thermo [proto.ChannelValueSize]byte
	binary.LittleEndian.PutUint64(thermo[:], math.Float64bits(19.25))
	var hvac [proto.ChannelValueSize]byte
	binary.LittleEndian.PutUint16(hvac[:], uint16(0xFF38)) // -200

	tests := []struct {
		name string
		fn   int32
		raw  [proto.ChannelValueSize]byte
		want *float64
	}{
		{"thermometer", channel.FunctionThermometer, thermo, ptr(19.25)},
		{"thermostat negative", channel.FunctionHVACThermostat, hvac, ptr(-2)},
		{"light off", channel.FunctionLightSwitch, [8]byte{}, ptr(0)},
		{"unknown", channel.FunctionNone, [8]byte{1}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.fn, tt.raw)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("Decode() = %v, want nil", *got)
			case tt.want != nil && (got == nil || *got != *tt.want):
				t.Errorf("Decode() = %v, want %v", got, *tt.want)
			}
		})
	}
}

func ptr(v float64) *float64 { return &v }
