// Package config loads the daemon's YAML configuration: listen addresses,
// snapshot storage backend, resource-manager endpoint and the fleet-wide
// failover and stickiness defaults.
package config
