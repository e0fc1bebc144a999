// Package storage defines the persisted configuration and state contracts the
// device core consumes, with in-memory and SQLite implementations.
//
// Config is a typed key/value store. Keys are short (MaxKeySize including a
// terminator on the original targets, so at most MaxKeySize-1 characters)
// and are usually built per channel with element.GenerateKey, e.g. "5_ssid".
//
// State holds runtime snapshots per named section, encoded as CBOR. It is
// written periodically by elements through OnSaveState and read once at
// startup.
//
// Writes are buffered until Commit so a burst of Set calls results in one
// database transaction.
package storage
