package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-device/internal/element"
	"github.com/nerrad567/gray-logic-device/internal/storage"
)

// OnTimer runs the 10 ms hooks. It reads only the registry snapshot and is
// called from the timer goroutine.
func (d *Device) OnTimer() {
	for _, e := range d.initializedElements() {
		if t, ok := e.(element.TimerHandler); ok {
			t.OnTimer()
		}
	}
}

// OnFastTimer runs the 1 ms hooks from the fast timer goroutine.
func (d *Device) OnFastTimer() {
	for _, e := range d.initializedElements() {
		if t, ok := e.(element.FastTimerHandler); ok {
			t.OnFastTimer()
		}
	}
}

func (d *Device) initializedElements() []element.Element {
	all := d.elements.Snapshot()
	n := int(d.initialized.Load())
	if n < len(all) {
		return all[:n]
	}
	return all
}

// SoftReset lets elements flush critical state and persists everything.
func (d *Device) SoftReset() {
	d.setStatus(StatusSoftReset)
	for _, e := range d.initializedElements() {
		if r, ok := e.(element.SoftResetter); ok {
			r.OnSoftReset()
		}
	}
	d.saveState(context.Background())
}

// Run drives the main loop and both timer goroutines until ctx is done,
// then saves state and releases the network.
func (d *Device) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer d.running.Store(false)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		d.tick(ctx, d.cfg.TimerInterval, d.OnTimer)
	}()
	go func() {
		defer wg.Done()
		d.tick(ctx, d.cfg.FastTimerInterval, d.OnFastTimer)
	}()

	loop := time.NewTicker(d.cfg.LoopInterval)
	defer loop.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			d.shutdown()
			return nil
		case fn := <-d.control:
			fn()
		case <-loop.C:
			d.Iterate(d.now())
		}
	}
}

func (d *Device) tick(ctx context.Context, interval time.Duration, fn func()) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn()
		}
	}
}

func (d *Device) shutdown() {
	d.logger.Info("device stopping")
	d.saveState(context.Background())
	d.protocols.DisconnectAll()
	d.network.Uninit()
}

// Exec runs fn on the main loop between two iterations and returns its
// error. It fails with ErrNotRunning when Run is not active.
func (d *Device) Exec(ctx context.Context, fn func() error) error {
	if !d.running.Load() {
		return ErrNotRunning
	}
	done := make(chan error, 1)
	select {
	case d.control <- func() { done <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnterConfigMode switches the network to config mode.
func (d *Device) EnterConfigMode(ctx context.Context) error {
	return d.Exec(ctx, func() error {
		d.network.SetConfigMode()
		d.setStatus(d.idleStatus())
		return nil
	})
}

// EnterNormalMode leaves config mode. It fails when no protocol layer could
// be selected.
func (d *Device) EnterNormalMode(ctx context.Context) error {
	return d.Exec(ctx, func() error {
		if len(d.protocols.Selectable()) == 0 {
			return ErrNoSelectableProtocol
		}
		d.network.SetNormalMode()
		d.setStatus(d.idleStatus())
		return nil
	})
}

// UpdateProtocolConfig applies writes to the configuration storage, commits
// it and reloads the named layer. A device waiting for credentials returns
// to normal mode once the layer verifies.
func (d *Device) UpdateProtocolConfig(ctx context.Context, name string, apply func(storage.Config) error) error {
	return d.Exec(ctx, func() error {
		if d.protocols.Get(name) == nil {
			return fmt.Errorf("%w: %s", ErrUnknownLayer, name)
		}
		if err := apply(d.config); err != nil {
			return err
		}
		if err := d.commitConfig(ctx); err != nil {
			return fmt.Errorf("committing %s config: %w", name, err)
		}
		if err := d.protocols.Reload(name, d.config); err != nil {
			d.setStatus(d.idleStatus())
			return err
		}
		d.logger.Info("protocol config updated", "layer", name)
		if d.Status() == StatusMissingCredentials && len(d.protocols.Selectable()) > 0 {
			d.network.SetNormalMode()
		}
		d.setStatus(d.idleStatus())
		return nil
	})
}
