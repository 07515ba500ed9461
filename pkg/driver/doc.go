// Package driver defines the narrow capability interface the scheduler
// consumes from the cluster resource manager: launch a task against an
// offer, kill a task. An HTTP implementation ships for managers exposing a
// JSON launch/kill surface; registration and callback subscription are the
// embedding process's concern.
package driver
