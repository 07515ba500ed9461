// Package reconciler runs the background sweep that fails tasks stuck in
// staging, handing them back to the scheduler's failover policy.
package reconciler
