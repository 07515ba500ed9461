// Package failover implements the per-server retry policy: exponential
// backoff between launch attempts with a configurable ceiling and an
// optional hard cap on total tries.
package failover
