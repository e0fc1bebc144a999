package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-device/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-device/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-device/internal/network"
	"github.com/nerrad567/gray-logic-device/internal/process"
)

// mdnsPollInterval is how often the advertiser follows network readiness.
const mdnsPollInterval = 5 * time.Second

// buildNetwork creates the Ethernet and WiFi drivers. The configured
// interface is added first, which makes it active until the device stores
// another choice.
func buildNetwork(cfg config.NetworkConfig, log *logging.Logger) (*network.Manager, error) {
	mgr := network.NewManager()
	mgr.SetLogger(log.With("component", "network"))
	mgr.SetSSLEnabled(cfg.SSL)

	eth := network.NewEthernet(cfg.EthernetLink, nil)
	eth.SetLogger(log.With("component", "ethernet"))
	eth.SetPrefixLen(cfg.PrefixLen)

	supplicant := process.NewManager(process.Config{
		Name:             "wpa_supplicant",
		Binary:           cfg.WiFi.SupplicantPath,
		Args:             []string{"-i", cfg.WiFi.Link, "-c", cfg.WiFi.ConfPath},
		RestartOnFailure: true,
	})
	supplicant.SetLogger(log.With("component", "wpa_supplicant"))
	wifi := network.NewWiFi(cfg.WiFi.Link, nil, supplicant, cfg.WiFi.ConfPath)
	wifi.SetLogger(log.With("component", "wifi"))
	wifi.SetPrefixLen(cfg.PrefixLen)
	if cfg.WiFi.SSID != "" {
		wifi.SetSSID(cfg.WiFi.SSID)
		wifi.SetPassword(cfg.WiFi.Password)
	}

	drivers := []network.Interface{eth, wifi}
	if strings.EqualFold(cfg.Interface, "wifi") {
		drivers = []network.Interface{wifi, eth}
	}

	var rootCA []byte
	if cfg.RootCAFile != "" {
		pem, err := os.ReadFile(cfg.RootCAFile)
		if err != nil {
			return nil, fmt.Errorf("reading root CA: %w", err)
		}
		rootCA = pem
	}
	var staticIP [4]byte
	useStatic := false
	if cfg.StaticIP != "" {
		ip := net.ParseIP(cfg.StaticIP).To4()
		if ip == nil {
			return nil, fmt.Errorf("invalid static ip %q", cfg.StaticIP)
		}
		copy(staticIP[:], ip)
		useStatic = true
	}

	for _, d := range drivers {
		b := d.NetBase()
		b.SetIPSetupTimeout(time.Duration(cfg.IPSetupTimeout) * time.Second)
		if rootCA != nil {
			b.SetRootCA(rootCA)
		}
		if useStatic {
			b.SetLocalIP(staticIP)
		}
		mgr.Add(d)
	}
	return mgr, nil
}

// advertise keeps the mDNS registration in step with network readiness
// until ctx ends.
func advertise(ctx context.Context, mgr *network.Manager, port int, guid string, log *logging.Logger) {
	adv := network.NewAdvertiser(port, "guid="+guid, "version="+version)
	defer adv.Stop()

	ticker := time.NewTicker(mdnsPollInterval)
	defer ticker.Stop()
	for {
		if mgr.IsReady() && mgr.Hostname() != "" {
			if err := adv.Advertise(mgr.Hostname()); err != nil {
				log.Warn("mdns advertise failed", "error", err)
			} else if adv.Advertising() != "" {
				log.Debug("mdns advertising", "instance", adv.Advertising())
			}
		} else {
			adv.Stop()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
