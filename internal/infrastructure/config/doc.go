// Package config handles loading and validating the device configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with GRAYLOGIC_DEVICE_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// The file describes the host: which interface to drive, where the SQLite
// storage lives, which virtual elements to register. Protocol credentials in
// the file only seed the persisted settings on first boot; afterwards the
// device owns them and they change through the local API.
//
// Security Considerations:
//   - Passwords and tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/device.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Device.Name)
package config
