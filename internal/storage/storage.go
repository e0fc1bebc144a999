package storage

import (
	"context"
	"fmt"
)

// MaxKeySize is the key buffer size, terminator included.
const MaxKeySize = 16

// Config is the persisted configuration contract.
type Config interface {
	GetString(key string) (string, error)
	SetString(key, value string) error
	GetInt32(key string) (int32, error)
	SetInt32(key string, value int32) error
	GetUInt8(key string) (uint8, error)
	SetUInt8(key string, value uint8) error
	GetBlob(key string) ([]byte, error)
	SetBlob(key string, value []byte) error
	EraseKey(key string) error
	Commit(ctx context.Context) error
}

// State is the persisted runtime state contract.
type State interface {
	// Load decodes section into v. Returns ErrNotFound for unknown sections.
	Load(section string, v any) error
	// Save encodes v under section. Written on the next Commit.
	Save(section string, v any) error
	Commit(ctx context.Context) error
}

// ValidateKey checks key length limits.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeySize-1 {
		return fmt.Errorf("%w: %q (%d > %d)", ErrKeyTooLong, key, len(key), MaxKeySize-1)
	}
	return nil
}
