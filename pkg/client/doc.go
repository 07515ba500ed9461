// Package client is a thin HTTP client for the zkfleet admin API, used by
// the CLI subcommands.
package client
