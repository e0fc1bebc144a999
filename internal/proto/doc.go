// Package proto declares the payloads exchanged with the remote server and
// the result codes the server protocol defines.
//
// The core treats these as opaque typed records: protocol layers decode
// incoming messages into them and encode replies from them, elements fill
// and inspect their fields. Nothing here knows about a wire layout.
package proto
