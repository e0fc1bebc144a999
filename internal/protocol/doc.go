// Package protocol defines the transport-agnostic contract for reaching the
// server, the registry the orchestrator selects layers from, and the
// reconnect backoff bookkeeping.
//
// A Layer is trusted only after VerifyConfig succeeds. Registry.LoadConfig
// records that outcome and Registry.Selectable never yields a disabled or
// unverified layer.
//
// Backoff policy is owned by each layer through ConnectionFailTime; the
// orchestrator treats the returned duration as opaque. MQTT uses a fixed
// 60 second interval.
package protocol
