package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementChannel is the measurement channel samples are written to.
const MeasurementChannel = "channel_value"

// ChannelSample is one recorded channel value.
type ChannelSample struct {
	DeviceGUID string
	Hostname   string
	Channel    int32
	Function   int32
	Online     bool
	// Raw is the 8-byte channel value as an unsigned little-endian integer.
	Raw uint64
	// Value is the decoded value when the function has a numeric reading.
	Value *float64
	Time  time.Time
}

// NewChannelPoint builds the point for a sample. Tags stay low-cardinality:
// device, host, channel and function.
func NewChannelPoint(s ChannelSample) *write.Point {
	fields := map[string]interface{}{
		"online": s.Online,
		"raw":    s.Raw,
	}
	if s.Value != nil {
		fields["value"] = *s.Value
	}
	ts := s.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(
		MeasurementChannel,
		map[string]string{
			"device_guid": s.DeviceGUID,
			"hostname":    s.Hostname,
			"channel":     strconv.Itoa(int(s.Channel)),
			"function":    strconv.Itoa(int(s.Function)),
		},
		fields,
		ts,
	)
}

// WriteChannelSample writes a channel sample.
//
// The write is non-blocking; data is batched and sent asynchronously.
func (c *Client) WriteChannelSample(s ChannelSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(NewChannelPoint(s))
}
