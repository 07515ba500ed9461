package scheduler

import (
	"fmt"

	"github.com/zkfleet/zkfleet/pkg/cluster"
	"github.com/zkfleet/zkfleet/pkg/constraint"
	"github.com/zkfleet/zkfleet/pkg/events"
	"github.com/zkfleet/zkfleet/pkg/types"
)

// Admin operations, called by the HTTP layer. Each one mutates the cluster
// under the engine lock and persists before returning, so a successful
// response is never ahead of the snapshot. Returned servers are deep-copy
// snapshots.

// AddServer registers a new server in the Added state.
func (e *Engine) AddServer(id string, config types.TaskConfig, constraints map[string][]constraint.Constraint) (*cluster.Server, error) {
	if id == "" {
		return nil, fmt.Errorf("server id is required")
	}
	if config.CPUs <= 0 || config.Mem <= 0 {
		return nil, fmt.Errorf("server %s: cpus and mem must be positive", id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	server := e.newServer(id, config, constraints)
	if err := e.cluster.Add(server); err != nil {
		return nil, err
	}

	if err := e.persistErr(); err != nil {
		e.cluster.Remove(id)
		return nil, err
	}

	e.logger.Info().Str("server_id", id).Msg("server added")
	e.publish(&events.Event{Type: events.EventServerAdded, ServerID: id})
	return server.Snapshot(), nil
}

// UpdateServer replaces a server's launch configuration and constraints.
// The change takes effect on the next launch.
func (e *Engine) UpdateServer(id string, config types.TaskConfig, constraints map[string][]constraint.Constraint) (*cluster.Server, error) {
	if config.CPUs <= 0 || config.Mem <= 0 {
		return nil, fmt.Errorf("server %s: cpus and mem must be positive", id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	server := e.cluster.Get(id)
	if server == nil {
		return nil, fmt.Errorf("server %s not found", id)
	}

	previousConfig, previousConstraints := server.Config, server.Constraints
	server.Config = config
	server.Constraints = constraints

	if err := e.persistErr(); err != nil {
		server.Config, server.Constraints = previousConfig, previousConstraints
		return nil, err
	}

	e.logger.Info().Str("server_id", id).Msg("server updated")
	e.publish(&events.Event{Type: events.EventServerUpdated, ServerID: id})
	return server.Snapshot(), nil
}

// StartServer marks an Added server as desired-to-run. It stays Stopped
// until a matching offer arrives.
func (e *Engine) StartServer(id string) (*cluster.Server, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	server := e.cluster.Get(id)
	if server == nil {
		return nil, fmt.Errorf("server %s not found", id)
	}
	if server.State != cluster.StateAdded {
		return nil, fmt.Errorf("server %s is already started", id)
	}

	server.State = cluster.StateStopped
	if err := e.persistErr(); err != nil {
		server.State = cluster.StateAdded
		return nil, err
	}

	e.logger.Info().Str("server_id", id).Msg("server started, waiting for offers")
	e.publish(&events.Event{Type: events.EventServerStarted, ServerID: id})
	return server.Snapshot(), nil
}

// StopServer takes a server out of scheduling, killing its task when one is
// live, and records the stop with the stickiness tracker.
func (e *Engine) StopServer(id string) (*cluster.Server, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	server := e.cluster.Get(id)
	if server == nil {
		return nil, fmt.Errorf("server %s not found", id)
	}
	if server.State == cluster.StateAdded {
		return nil, fmt.Errorf("server %s is not started", id)
	}

	if server.Active() && server.Task != nil {
		if err := e.driver.KillTask(server.Task.ID); err != nil {
			return nil, fmt.Errorf("failed to kill task %s: %w", server.Task.ID, err)
		}
	}

	previousState := server.State
	server.State = cluster.StateAdded
	server.Stickiness.RegisterStop(e.now())

	if err := e.persistErr(); err != nil {
		server.State = previousState
		return nil, err
	}

	e.logger.Info().Str("server_id", id).Msg("server stopped")
	e.publish(&events.Event{Type: events.EventServerStopped, ServerID: id})
	return server.Snapshot(), nil
}

// RemoveServer deletes a server. Servers with an active placement must be
// stopped first.
func (e *Engine) RemoveServer(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	server := e.cluster.Get(id)
	if server == nil {
		return fmt.Errorf("server %s not found", id)
	}
	if server.Active() {
		return fmt.Errorf("server %s is active, stop it first", id)
	}

	e.cluster.Remove(id)
	if err := e.persistErr(); err != nil {
		// Removal did not commit; re-add so memory matches the snapshot.
		_ = e.cluster.Add(server)
		return err
	}

	e.logger.Info().Str("server_id", id).Msg("server removed")
	e.publish(&events.Event{Type: events.EventServerRemoved, ServerID: id})
	return nil
}

// Status returns deep-copy snapshots of every server in registration order.
func (e *Engine) Status() []*cluster.Server {
	e.mu.Lock()
	defer e.mu.Unlock()

	servers := e.cluster.Servers()
	out := make([]*cluster.Server, len(servers))
	for i, s := range servers {
		out[i] = s.Snapshot()
	}
	return out
}
