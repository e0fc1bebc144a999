// Package influxdb writes channel telemetry to InfluxDB v2.
//
// It wraps influxdb-client-go's non-blocking write API. The telemetry
// recorder is the only writer: one channel_value point per channel per
// sample interval, tagged by device GUID, hostname, channel and function.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) { log.Warn("influx write", "error", err) })
//	client.WriteChannelSample(influxdb.ChannelSample{DeviceGUID: guid, Channel: 2, Raw: 1})
//
// Connect pings the server and fails with ErrConnectionFailed when it is
// unreachable. Points are batched per batch_size and flush_interval; batch
// failures are counted (WriteFailures) and handed to the SetOnError callback
// wrapped in ErrWriteFailed. All methods are safe for concurrent use.
package influxdb
