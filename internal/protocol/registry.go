package protocol

import (
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-device/internal/storage"
)

// Logger is the logging interface used by the registry.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

type slot struct {
	layer    Layer
	verified bool
	loadErr  error
}

// Registry holds the protocol layers of a device in creation order.
type Registry struct {
	mu     sync.RWMutex
	slots  []*slot
	logger Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{logger: noopLogger{}}
}

// SetLogger sets the logger.
func (r *Registry) SetLogger(l Logger) {
	if l != nil {
		r.logger = l
	}
}

// Add registers a layer. Names must be unique.
func (r *Registry) Add(l Layer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slots {
		if s.layer.Name() == l.Name() {
			return fmt.Errorf("%w: %s", ErrDuplicateLayer, l.Name())
		}
	}
	r.slots = append(r.slots, &slot{layer: l})
	return nil
}

// Layers returns all layers in creation order.
func (r *Registry) Layers() []Layer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Layer, 0, len(r.slots))
	for _, s := range r.slots {
		out = append(out, s.layer)
	}
	return out
}

// Get returns the layer with the given name, or nil.
func (r *Registry) Get(name string) Layer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.slots {
		if s.layer.Name() == name {
			return s.layer
		}
	}
	return nil
}

// LoadConfig runs OnLoadConfig then VerifyConfig on every layer and records
// which ones may be selected. It returns the number of selectable layers.
func (r *Registry) LoadConfig(cfg storage.Config) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	selectable := 0
	for _, s := range r.slots {
		s.verified, s.loadErr = false, nil
		if err := s.layer.OnLoadConfig(cfg); err != nil {
			s.loadErr = err
			r.logger.Warn("protocol config load failed", "layer", s.layer.Name(), "error", err)
			continue
		}
		if err := s.layer.VerifyConfig(); err != nil {
			s.loadErr = err
			r.logger.Warn("protocol config rejected", "layer", s.layer.Name(), "error", err)
			continue
		}
		s.verified = true
		if s.layer.IsEnabled() {
			selectable++
			r.logger.Info("protocol config verified", "layer", s.layer.Name())
		}
	}
	return selectable
}

// Reload runs OnLoadConfig and VerifyConfig for a single layer, e.g. after
// its settings were changed locally.
func (r *Registry) Reload(name string, cfg storage.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slots {
		if s.layer.Name() != name {
			continue
		}
		s.verified, s.loadErr = false, nil
		if err := s.layer.OnLoadConfig(cfg); err != nil {
			s.loadErr = err
			return err
		}
		if err := s.layer.VerifyConfig(); err != nil {
			s.loadErr = err
			return err
		}
		s.verified = true
		return nil
	}
	return fmt.Errorf("protocol: unknown layer %s", name)
}

// Selectable returns enabled layers whose config was verified.
func (r *Registry) Selectable() []Layer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Layer
	for _, s := range r.slots {
		if s.verified && s.layer.IsEnabled() {
			out = append(out, s.layer)
		}
	}
	return out
}

// ConfigError returns the last load/verify error for a layer.
func (r *Registry) ConfigError(name string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.slots {
		if s.layer.Name() == name {
			return s.loadErr
		}
	}
	return nil
}

// AnyRegistered reports whether any layer currently holds a registration.
func (r *Registry) AnyRegistered() bool {
	for _, l := range r.Selectable() {
		if l.IsRegistered() {
			return true
		}
	}
	return false
}

// DisconnectAll disconnects every layer.
func (r *Registry) DisconnectAll() {
	for _, l := range r.Layers() {
		l.Disconnect()
	}
}
