// Package network manages the device's network interfaces: which one is
// active, the Normal/Config operating mode, setup and IP acquisition
// timeouts, and the hostname.
//
// Drivers implement Interface and embed Base, which holds the per-instance
// attributes (hostname, root CA, static IPv4 override, enabled and
// setup-needed flags, lifecycle state). Manager is the single context object
// holding the instance list, the active selection, the mode and the SSL
// toggle; the orchestrator drives it once per tick through Iterate.
//
// State per instance:
//
//	Uninitialized -> SettingUp -> Ready -> Disabled
//	                     ^          |
//	                     +----------+  (link lost)
//
// The setup-needed flag is edge triggered: PopSetupNeeded returns true once
// per raise.
//
// Bundled drivers configure Linux links through netlink: Ethernet brings a
// wired link up and optionally assigns the IPv4 override, WiFi additionally
// supervises wpa_supplicant. Advertiser publishes the hostname over mDNS.
package network
