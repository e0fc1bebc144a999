package network

import (
	"fmt"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// mDNS service parameters.
const (
	ServiceType = "_graylogic-device._tcp"
	Domain      = "local."
)

// Advertiser publishes the device hostname over mDNS while the network is
// ready, so provisioning tools can find the local API.
type Advertiser struct {
	port int
	txt  []string

	mu       sync.Mutex
	server   *zeroconf.Server
	instance string
}

// NewAdvertiser creates an advertiser for the local API port.
func NewAdvertiser(port int, txt ...string) *Advertiser {
	return &Advertiser{port: port, txt: txt}
}

// Advertise registers instance, replacing any previous registration under
// another name. Repeated calls with the same name are no-ops.
func (a *Advertiser) Advertise(instance string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil && a.instance == instance {
		return nil
	}
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	server, err := zeroconf.Register(instance, ServiceType, Domain, a.port, a.txt, nil, zeroconf.TTL(120))
	if err != nil {
		return fmt.Errorf("registering mdns service: %w", err)
	}
	a.server = server
	a.instance = instance
	return nil
}

// Stop withdraws the registration.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
		a.instance = ""
	}
}

// Advertising returns the registered instance name, or "".
func (a *Advertiser) Advertising() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.instance
}
