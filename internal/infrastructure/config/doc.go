// Package config handles loading and validating hars-imp configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with HARS_* environment variables
//   - Validation of required fields and component definitions
//   - Default value handling
//
// Security Considerations:
//   - MQTT and InfluxDB credentials should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load(filepath.Join(home, ".config/hars-imp/config.yaml"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Hostname)
package config
