// Package process supervises helper daemons the network drivers depend on,
// such as wpa_supplicant for the WiFi interface.
//
// A Manager starts the binary in its own process group, logs its output
// line by line, restarts it after unexpected exits with a fixed delay, and
// stops it with SIGTERM followed by SIGKILL after a grace period.
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:   "wpa_supplicant",
//	    Binary: "/usr/sbin/wpa_supplicant",
//	    Args:   []string{"-i", "wlan0", "-c", "/run/graylogic/wpa.conf"},
//	})
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
