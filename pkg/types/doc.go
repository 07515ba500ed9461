// Package types defines the shared vocabulary of the zkfleet scheduler:
// resource offers, task configuration and placement records, port ranges and
// the offer attribute wire encoding.
//
// Everything here is a plain value type; behavior-carrying entities (servers,
// clusters, constraints, failover policy) live in their own packages.
package types
