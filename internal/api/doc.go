// Package api implements the device's local HTTP API and WebSocket feed.
//
// This package provides:
//   - Read endpoints for device status, channels and protocol settings
//   - Provisioning endpoints that store MQTT credentials and switch between
//     normal and config mode
//   - A WebSocket hub that pushes device status changes
//   - Middleware stack (request ID, logging, recovery, metrics, basic auth)
//   - Prometheus scrape endpoint
//
// # Architecture
//
// Handlers never touch the element, network or protocol state directly.
// Mutations go through the device's control queue (Device.Exec and the
// helpers built on it), so they run on the main loop between two
// iterations. Reads use the thread-safe snapshot accessors.
//
// # Security
//
// Mutating routes require HTTP basic auth checked against an argon2id hash
// (api.password_hash). Without a configured hash they are only accepted
// while the device is in config mode, which is how a fresh device gets its
// first credentials.
//
// Usage:
//
//	server, err := api.New(api.Deps{Config: cfg.API, Logger: log, Device: dev})
//	if err != nil {
//	    return err
//	}
//	if err := server.Start(ctx); err != nil {
//	    return err
//	}
//	defer server.Close()
package api
