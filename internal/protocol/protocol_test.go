package protocol

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-device/internal/proto"
	"github.com/nerrad567/gray-logic-device/internal/storage"
)

type fakeLayer struct {
	name       string
	enabled    bool
	loadErr    error
	verifyErr  error
	registered bool
	loads      int
}

func (f *fakeLayer) Name() string                      { return f.name }
func (f *fakeLayer) OnLoadConfig(storage.Config) error { f.loads++; return f.loadErr }
func (f *fakeLayer) VerifyConfig() error               { return f.verifyErr }
func (f *fakeLayer) IsEnabled() bool                   { return f.enabled }
func (f *fakeLayer) IsNetworkRestartRequested() bool   { return false }
func (f *fakeLayer) ConnectionFailTime() time.Duration { return time.Second }
func (f *fakeLayer) Iterate(time.Time) LinkState       { return LinkIdle }
func (f *fakeLayer) Disconnect()                       { f.registered = false }
func (f *fakeLayer) IsRegistered() bool                { return f.registered }
func (f *fakeLayer) Sender() Sender                    { return nopSender{} }

type nopSender struct{}

func (nopSender) SendChannelValue(int32, [proto.ChannelValueSize]byte, bool) error { return nil }
func (nopSender) SendChannelConfig(proto.ChannelConfig) error                      { return nil }

func TestRegistry_Selectable(t *testing.T) {
	good := &fakeLayer{name: "mqtt", enabled: true}
	unverified := &fakeLayer{name: "srpc", enabled: true, verifyErr: fmt.Errorf("%w: server", ErrInvalidConfig)}
	disabled := &fakeLayer{name: "other", enabled: false}
	broken := &fakeLayer{name: "broken", enabled: true, loadErr: errors.New("read failed")}

	r := NewRegistry()
	for _, l := range []Layer{good, unverified, disabled, broken} {
		if err := r.Add(l); err != nil {
			t.Fatalf("Add(%s) error = %v", l.Name(), err)
		}
	}

	if n := r.LoadConfig(storage.NewMemoryConfig()); n != 1 {
		t.Errorf("LoadConfig() = %d, want 1", n)
	}

	sel := r.Selectable()
	if len(sel) != 1 || sel[0] != good {
		t.Fatalf("Selectable() = %v, want only mqtt", sel)
	}
	if err := r.ConfigError("srpc"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("ConfigError(srpc) = %v, want ErrInvalidConfig", err)
	}
}

func TestRegistry_DuplicateName(t *testing.T) {
	r := NewRegistry()
	if err := r.Add(&fakeLayer{name: "mqtt"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := r.Add(&fakeLayer{name: "mqtt"}); !errors.Is(err, ErrDuplicateLayer) {
		t.Errorf("Add() duplicate error = %v, want ErrDuplicateLayer", err)
	}
}

func TestRegistry_Reload(t *testing.T) {
	l := &fakeLayer{name: "mqtt", enabled: true, verifyErr: ErrInvalidConfig}
	r := NewRegistry()
	_ = r.Add(l)
	r.LoadConfig(storage.NewMemoryConfig())
	if len(r.Selectable()) != 0 {
		t.Fatal("unverified layer should not be selectable")
	}

	l.verifyErr = nil
	if err := r.Reload("mqtt", storage.NewMemoryConfig()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if len(r.Selectable()) != 1 {
		t.Error("layer should be selectable after successful reload")
	}
	if err := r.Reload("nope", storage.NewMemoryConfig()); err == nil {
		t.Error("Reload(unknown) expected error")
	}
}

func TestBackoff(t *testing.T) {
	var b Backoff
	now := time.Unix(1000, 0)
	if !b.Ready(now) {
		t.Fatal("zero Backoff should be ready")
	}

	b.Failed(now, 60*time.Second)
	if b.Ready(now.Add(59 * time.Second)) {
		t.Error("Ready() before fail time elapsed")
	}
	if !b.Ready(now.Add(60 * time.Second)) {
		t.Error("Ready() false after fail time elapsed")
	}
	if b.Failures() != 1 {
		t.Errorf("Failures() = %d, want 1", b.Failures())
	}

	b.Reset()
	if b.Failures() != 0 || !b.Ready(now) {
		t.Error("Reset() should clear state")
	}
}
