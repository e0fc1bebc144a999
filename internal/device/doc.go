// Package device drives the runtime core of a single device.
//
// A Device owns the element registry, the network manager, the protocol
// registry and both storages, and runs them from one cooperative main loop.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                             Device                               │
//	│                                                                  │
//	│  main loop (Iterate)          timer goroutines (OnTimer 10ms,    │
//	│   • element IterateAlways       OnFastTimer 1ms)                 │
//	│   • network.Manager.Iterate     read the registry snapshot only  │
//	│   • protocol layers + backoff                                    │
//	│   • IterateConnected (round robin until TrafficSent)             │
//	│   • periodic OnSaveState + commit                                │
//	│                                                                  │
//	│  protocol.Dispatcher: server requests routed to the element      │
//	│  owning the channel number, device level CALCFG handled here     │
//	└──────────────────────────────────────────────────────────────────┘
//
// # Lifecycle
//
// Begin loads the network and protocol configuration, then runs the element
// hooks in order config, state, init. Elements added later are brought up
// the same way on the first tick after the registry reports them. Without
// any selectable protocol the device enters config mode.
//
// # Control
//
// Other goroutines (the local API) never touch main loop state directly.
// They submit work through Exec, which runs it between two iterations.
//
// # Usage
//
//	dev := device.New(device.Config{Name: "Relay box"}, elements, netMgr, protocols, cfgStore, stateStore)
//	dev.SetLogger(log)
//	if err := dev.Begin(ctx); err != nil {
//	    return err
//	}
//	return dev.Run(ctx)
package device
