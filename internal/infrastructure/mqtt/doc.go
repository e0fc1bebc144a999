// Package mqtt provides the broker connection used by the device's MQTT
// protocol layer.
//
// This package manages:
//   - Client options built from the persisted device settings (server, port,
//     credentials, TLS with the device root CA)
//   - Asynchronous connection attempts that never block the main loop
//   - Message publishing with QoS validation
//   - Tracked subscriptions restored on every (re)connect
//   - Last Will and Testament (LWT) on the device status topic
//
// # Architecture
//
// The client owns no retry policy of its own when used by the protocol layer:
// auto-reconnect is disabled and the layer decides when to try again using its
// connection fail time. Callers that want paho's own reconnect loop can set
// Options.AutoReconnect.
//
//	Device main loop -> mqttlayer.Layer -> mqtt.Client -> broker
//
// # Topic layout
//
// All device topics live under supla/devices/<hostname>/. See Topics for the
// builders and ParseChannelTopic for decoding inbound command topics.
//
// # Usage
//
//	client, err := mqtt.New(mqtt.Options{
//	    Server:   "broker.local",
//	    Port:     1883,
//	    ClientID: hostname,
//	})
//	if err != nil {
//	    return err
//	}
//	attempt := client.ConnectAsync()
//	// ... later, from the main loop
//	if attempt.Done() && attempt.Err() == nil {
//	    client.PublishAsync(topics.ChannelState(0), payload, 0, true)
//	}
package mqtt
