package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// kind tags the stored type of a config entry.
type kind int

const (
	kindString kind = 1
	kindInt32  kind = 2
	kindUInt8  kind = 3
	kindBlob   kind = 4
)

func (k kind) String() string {
	switch k {
	case kindString:
		return "string"
	case kindInt32:
		return "int32"
	case kindUInt8:
		return "uint8"
	case kindBlob:
		return "blob"
	}
	return "unknown"
}

type entry struct {
	kind kind
	str  string
	num  int64
	blob []byte
}

// kv is the in-memory map shared by MemoryConfig and SQLiteConfig. It tracks
// which keys changed since the last flush.
type kv struct {
	mu      sync.Mutex
	entries map[string]entry
	dirty   map[string]bool
}

func (s *kv) init() {
	s.entries = make(map[string]entry)
	s.dirty = make(map[string]bool)
}

func (s *kv) get(key string, want kind) (entry, error) {
	if err := ValidateKey(key); err != nil {
		return entry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return entry{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if e.kind != want {
		return entry{}, fmt.Errorf("%w: %s is %s, not %s", ErrTypeMismatch, key, e.kind, want)
	}
	return e, nil
}

func (s *kv) set(key string, e entry) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[key] = e
	s.dirty[key] = true
	s.mu.Unlock()
	return nil
}

func (s *kv) erase(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	if _, ok := s.entries[key]; ok {
		delete(s.entries, key)
		s.dirty[key] = true
	}
	s.mu.Unlock()
	return nil
}

// takeDirty returns the pending changes and resets the dirty set. A nil
// entry pointer marks an erased key.
func (s *kv) takeDirty() map[string]*entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*entry, len(s.dirty))
	for key := range s.dirty {
		if e, ok := s.entries[key]; ok {
			e := e
			out[key] = &e
		} else {
			out[key] = nil
		}
	}
	s.dirty = make(map[string]bool)
	return out
}

// restoreDirty re-marks keys after a failed flush.
func (s *kv) restoreDirty(keys map[string]*entry) {
	s.mu.Lock()
	for key := range keys {
		s.dirty[key] = true
	}
	s.mu.Unlock()
}

func (s *kv) GetString(key string) (string, error) {
	e, err := s.get(key, kindString)
	return e.str, err
}

func (s *kv) SetString(key, value string) error {
	return s.set(key, entry{kind: kindString, str: value})
}

func (s *kv) GetInt32(key string) (int32, error) {
	e, err := s.get(key, kindInt32)
	return int32(e.num), err
}

func (s *kv) SetInt32(key string, value int32) error {
	return s.set(key, entry{kind: kindInt32, num: int64(value)})
}

func (s *kv) GetUInt8(key string) (uint8, error) {
	e, err := s.get(key, kindUInt8)
	return uint8(e.num), err
}

func (s *kv) SetUInt8(key string, value uint8) error {
	return s.set(key, entry{kind: kindUInt8, num: int64(value)})
}

func (s *kv) GetBlob(key string) ([]byte, error) {
	e, err := s.get(key, kindBlob)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), e.blob...), nil
}

func (s *kv) SetBlob(key string, value []byte) error {
	return s.set(key, entry{kind: kindBlob, blob: append([]byte(nil), value...)})
}

func (s *kv) EraseKey(key string) error {
	return s.erase(key)
}

// MemoryConfig is a Config kept only in memory. Commit clears the pending
// change set and counts commits.
type MemoryConfig struct {
	kv
	commits int
}

// NewMemoryConfig creates an empty in-memory Config.
func NewMemoryConfig() *MemoryConfig {
	m := &MemoryConfig{}
	m.kv.init()
	return m
}

// Commit implements Config.
func (m *MemoryConfig) Commit(context.Context) error {
	m.takeDirty()
	m.mu.Lock()
	m.commits++
	m.mu.Unlock()
	return nil
}

// Commits returns how many times Commit was called.
func (m *MemoryConfig) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

// sections is the CBOR-encoded section map shared by the State
// implementations.
type sections struct {
	mu    sync.Mutex
	data  map[string][]byte
	dirty map[string]bool
}

func (s *sections) init() {
	s.data = make(map[string][]byte)
	s.dirty = make(map[string]bool)
}

func (s *sections) Load(section string, v any) error {
	s.mu.Lock()
	raw, ok := s.data[section]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: section %s", ErrNotFound, section)
	}
	if err := cbor.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding section %s: %w", section, err)
	}
	return nil
}

func (s *sections) Save(section string, v any) error {
	if section == "" {
		return ErrInvalidKey
	}
	raw, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding section %s: %w", section, err)
	}
	s.mu.Lock()
	s.data[section] = raw
	s.dirty[section] = true
	s.mu.Unlock()
	return nil
}

func (s *sections) takeDirty() map[string][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]byte, len(s.dirty))
	for name := range s.dirty {
		out[name] = s.data[name]
	}
	s.dirty = make(map[string]bool)
	return out
}

func (s *sections) restoreDirty(pending map[string][]byte) {
	s.mu.Lock()
	for name := range pending {
		s.dirty[name] = true
	}
	s.mu.Unlock()
}

// MemoryState is a State kept only in memory.
type MemoryState struct {
	sections
}

// NewMemoryState creates an empty in-memory State.
func NewMemoryState() *MemoryState {
	m := &MemoryState{}
	m.sections.init()
	return m
}

// Commit implements State.
func (m *MemoryState) Commit(context.Context) error {
	m.takeDirty()
	return nil
}
