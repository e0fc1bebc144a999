package network

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"

	"github.com/nerrad567/gray-logic-device/internal/proto"
)

// defaultPrefixLen is the netmask applied to the static IPv4 override.
const defaultPrefixLen = 24

// LinkOps is the subset of netlink used by the drivers.
type LinkOps interface {
	LinkByName(name string) (netlink.Link, error)
	LinkSetUp(link netlink.Link) error
	LinkSetDown(link netlink.Link) error
	AddrList(link netlink.Link, family int) ([]netlink.Addr, error)
	AddrReplace(link netlink.Link, addr *netlink.Addr) error
}

// SystemLinks talks to the kernel through the default netlink handle.
type SystemLinks struct{}

func (SystemLinks) LinkByName(name string) (netlink.Link, error) { return netlink.LinkByName(name) }
func (SystemLinks) LinkSetUp(link netlink.Link) error            { return netlink.LinkSetUp(link) }
func (SystemLinks) LinkSetDown(link netlink.Link) error          { return netlink.LinkSetDown(link) }
func (SystemLinks) AddrList(link netlink.Link, family int) ([]netlink.Addr, error) {
	return netlink.AddrList(link, family)
}
func (SystemLinks) AddrReplace(link netlink.Link, addr *netlink.Addr) error {
	return netlink.AddrReplace(link, addr)
}

// linkDriver is the netlink logic shared by Ethernet and WiFi.
type linkDriver struct {
	ops       LinkOps
	linkName  string
	prefixLen int
}

// SetPrefixLen sets the netmask length used with the IPv4 override.
func (d *linkDriver) SetPrefixLen(n int) {
	d.prefixLen = n
}

func (d *linkDriver) link() (netlink.Link, error) {
	link, err := d.ops.LinkByName(d.linkName)
	if err != nil {
		return nil, fmt.Errorf("looking up link %s: %w", d.linkName, err)
	}
	return link, nil
}

func (d *linkDriver) up(b *Base) error {
	link, err := d.link()
	if err != nil {
		return err
	}
	if err := d.ops.LinkSetUp(link); err != nil {
		return fmt.Errorf("bringing %s up: %w", d.linkName, err)
	}

	ip, use := b.LocalIP()
	if !use {
		return nil
	}
	prefix := d.prefixLen
	if prefix <= 0 || prefix > 32 {
		prefix = defaultPrefixLen
	}
	addr := &netlink.Addr{IPNet: &net.IPNet{
		IP:   net.IPv4(ip[0], ip[1], ip[2], ip[3]),
		Mask: net.CIDRMask(prefix, 32),
	}}
	if err := d.ops.AddrReplace(link, addr); err != nil {
		return fmt.Errorf("assigning %s to %s: %w", addr.IPNet, d.linkName, err)
	}
	return nil
}

func (d *linkDriver) down() error {
	link, err := d.link()
	if err != nil {
		return err
	}
	return d.ops.LinkSetDown(link)
}

func (d *linkDriver) ipv4() (net.IP, bool) {
	link, err := d.link()
	if err != nil {
		return nil, false
	}
	addrs, err := d.ops.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return nil, false
	}
	for _, a := range addrs {
		if a.IPNet != nil {
			if v4 := a.IP.To4(); v4 != nil && !v4.IsLinkLocalUnicast() {
				return v4, true
			}
		}
	}
	return nil, false
}

func (d *linkDriver) ready() bool {
	link, err := d.link()
	if err != nil {
		return false
	}
	attrs := link.Attrs()
	operUp := attrs.OperState == netlink.OperUp ||
		(attrs.OperState == netlink.OperUnknown && attrs.Flags&net.FlagUp != 0)
	if !operUp {
		return false
	}
	_, ok := d.ipv4()
	return ok
}

func (d *linkDriver) mac() ([6]byte, error) {
	var out [6]byte
	link, err := d.link()
	if err != nil {
		return out, err
	}
	hw := link.Attrs().HardwareAddr
	if len(hw) != len(out) {
		return out, fmt.Errorf("%w: %s has %d byte address", ErrNoMAC, d.linkName, len(hw))
	}
	copy(out[:], hw)
	return out, nil
}

func (d *linkDriver) fillState(state *proto.ChannelState) {
	if ip, ok := d.ipv4(); ok {
		copy(state.IPv4[:], ip)
		state.Fields |= proto.ChannelStateFieldIPv4
	}
}

// Ethernet is a wired interface.
type Ethernet struct {
	Base
	linkDriver
	logger Logger
}

// NewEthernet creates an Ethernet driver for the named link. A nil ops uses
// SystemLinks.
func NewEthernet(linkName string, ops LinkOps) *Ethernet {
	if ops == nil {
		ops = SystemLinks{}
	}
	e := &Ethernet{
		linkDriver: linkDriver{ops: ops, linkName: linkName, prefixLen: defaultPrefixLen},
		logger:     noopLogger{},
	}
	e.Base.Init(linkName, IntfTypeEthernet)
	return e
}

// SetLogger sets the logger.
func (e *Ethernet) SetLogger(l Logger) {
	if l != nil {
		e.logger = l
	}
}

// Setup implements Interface.
func (e *Ethernet) Setup() error {
	return e.up(&e.Base)
}

// Disable implements Interface.
func (e *Ethernet) Disable() {
	if err := e.down(); err != nil {
		e.logger.Warn("disabling ethernet failed", "interface", e.linkName, "error", err)
	}
}

// IsReady implements Interface.
func (e *Ethernet) IsReady() bool {
	return e.ready()
}

// MacAddr implements Interface.
func (e *Ethernet) MacAddr() ([6]byte, error) {
	return e.mac()
}

// FillStateData implements StateFiller.
func (e *Ethernet) FillStateData(state *proto.ChannelState) {
	e.fillState(state)
}
