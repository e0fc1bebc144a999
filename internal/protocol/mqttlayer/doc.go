// Package mqttlayer implements the MQTT protocol layer.
//
// The layer reads its connection parameters from the device configuration
// storage (mqtt_* keys), connects through infrastructure/mqtt without ever
// blocking the main loop, and turns inbound command topics into calls on a
// protocol.Dispatcher. Outbound channel values and configs are published as
// small JSON documents under supla/devices/<hostname>/.
//
// Inbound messages arrive on paho goroutines. They are queued and only
// dispatched from Iterate, so elements see every server request on the main
// loop.
package mqttlayer
