package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zkfleet/zkfleet/pkg/cluster"
	"github.com/zkfleet/zkfleet/pkg/constraint"
	"github.com/zkfleet/zkfleet/pkg/driver"
	"github.com/zkfleet/zkfleet/pkg/events"
	"github.com/zkfleet/zkfleet/pkg/failover"
	"github.com/zkfleet/zkfleet/pkg/log"
	"github.com/zkfleet/zkfleet/pkg/metrics"
	"github.com/zkfleet/zkfleet/pkg/stickiness"
	"github.com/zkfleet/zkfleet/pkg/storage"
	"github.com/zkfleet/zkfleet/pkg/types"
)

// Config carries the fleet-wide policy defaults applied to every server at
// add time.
type Config struct {
	FailoverDelay    time.Duration
	FailoverMaxDelay time.Duration
	FailoverMaxTries *int
	StickinessPeriod time.Duration
}

// Engine is the offer-accept engine. It owns the cluster aggregate and the
// single exclusive lock that serializes offer callbacks, status updates and
// admin operations; every committed transition is persisted inside the
// critical section before the caller gets its answer.
type Engine struct {
	mu      sync.Mutex
	cluster *cluster.Cluster
	store   storage.Store
	driver  driver.Driver
	broker  *events.Broker
	cfg     Config

	// now is the clock; tests substitute it.
	now func() time.Time

	logger zerolog.Logger
}

// NewEngine creates an engine and restores the last persisted fleet, if any.
// A present-but-corrupt snapshot is a fatal startup error.
func NewEngine(store storage.Store, drv driver.Driver, broker *events.Broker, cfg Config) (*Engine, error) {
	c := cluster.New()
	found, err := store.Load(c)
	if err != nil {
		return nil, fmt.Errorf("failed to restore cluster state: %w", err)
	}

	e := &Engine{
		cluster: c,
		store:   store,
		driver:  drv,
		broker:  broker,
		cfg:     cfg,
		now:     time.Now,
		logger:  log.WithComponent("scheduler"),
	}

	if found {
		e.logger.Info().Int("servers", len(c.Servers())).Msg("restored cluster state")
	}
	return e, nil
}

// AcceptOffer evaluates one resource offer against every desired-to-run
// server in registration order. It returns the empty string when the offer
// was consumed by a launch, otherwise the reason of the last evaluated
// candidate (or "all servers are running" when nothing wanted resources).
func (e *Engine) AcceptOffer(offer *types.Offer) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	metrics.OffersReceived.Inc()
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.OfferEvaluationDuration)

	now := e.now()

	var candidates []*cluster.Server
	for _, s := range e.cluster.Servers() {
		if s.State == cluster.StateStopped {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		metrics.OffersDeclined.Inc()
		return "all servers are running"
	}

	reason := ""
	for _, server := range candidates {
		reason = e.tryLaunch(server, offer, now)
		if reason == "" {
			return ""
		}
		e.logger.Debug().
			Str("offer_id", offer.ID).
			Str("server_id", server.ID).
			Str("reason", reason).
			Msg("offer does not fit server")
	}

	metrics.OffersDeclined.Inc()
	e.publish(&events.Event{
		Type:    events.EventOfferDeclined,
		Message: reason,
		Metadata: map[string]string{
			"offerId":  offer.ID,
			"hostname": offer.Hostname,
		},
	})
	return reason
}

// tryLaunch runs the full gauntlet for one server: failover policy,
// constraints and stickiness, resource fit, port allocation, then the
// actual launch. It returns the empty string when the server consumed the
// offer.
func (e *Engine) tryLaunch(server *cluster.Server, offer *types.Offer, now time.Time) string {
	if server.Failover.IsMaxTriesExceeded() {
		return fmt.Sprintf("server %s failed %d times, manual intervention required", server.ID, server.Failover.Failures)
	}
	if server.Failover.IsWaitingDelay(now) {
		return fmt.Sprintf("server %s is waiting for failover delay until %s", server.ID, server.Failover.DelayExpires().Format(time.RFC3339))
	}

	uses := func(name string) []string { return e.cluster.AttributeUses(server, name) }
	if reason := server.Matches(offer, now, uses); reason != "" {
		return reason
	}

	if offer.CPUs < server.Config.CPUs {
		return fmt.Sprintf("cpus %.2f < %.2f", offer.CPUs, server.Config.CPUs)
	}
	if offer.Mem < server.Config.Mem {
		return fmt.Sprintf("mem %.2f < %.2f", offer.Mem, server.Config.Mem)
	}

	port, ok := selectPort(server.Config.Ports, offer.Ports)
	if !ok {
		return "no suitable port"
	}

	task := &types.Task{
		ID:         fmt.Sprintf("zkfleet-%s-%s", server.ID, uuid.New().String()),
		Hostname:   offer.Hostname,
		Port:       port,
		Attributes: offer.Attributes,
		LaunchedAt: now,
	}

	config := server.Config
	config.ID = server.ID
	config.Hostname = offer.Hostname

	info := &driver.TaskInfo{
		ID:       task.ID,
		OfferID:  offer.ID,
		Hostname: offer.Hostname,
		CPUs:     server.Config.CPUs,
		Mem:      server.Config.Mem,
		Port:     port,
		Config:   config,
	}

	if err := e.driver.LaunchTask(info); err != nil {
		e.logger.Error().Err(err).Str("server_id", server.ID).Msg("task launch failed")
		return fmt.Sprintf("launch failed: %v", err)
	}

	server.Task = task
	server.State = cluster.StateStaging
	server.Stickiness.RegisterStart(offer.Hostname)
	e.persist()

	metrics.TasksLaunched.Inc()
	e.logger.Info().
		Str("server_id", server.ID).
		Str("task_id", task.ID).
		Str("hostname", offer.Hostname).
		Int("port", port).
		Msg("task launched")
	e.publish(&events.Event{Type: events.EventTaskLaunched, ServerID: server.ID, TaskID: task.ID})

	return ""
}

// selectPort picks the port a launch will consume. With no configured
// ranges any offered port does, so the first offered one wins. Otherwise
// the configured ranges are tried in listed order and the lowest offered
// port inside the current range is taken.
func selectPort(configured, offered types.PortRanges) (int, bool) {
	if len(configured) == 0 {
		if len(offered) == 0 {
			return 0, false
		}
		return offered[0].Start, true
	}

	for _, want := range configured {
		best := -1
		for _, have := range offered {
			if !want.Overlaps(have) {
				continue
			}
			lowest := want.Start
			if have.Start > lowest {
				lowest = have.Start
			}
			if best == -1 || lowest < best {
				best = lowest
			}
		}
		if best != -1 {
			return best, true
		}
	}
	return 0, false
}

// UpdateTaskStatus applies a resource-manager status update. A running
// confirmation moves Staging to Running and clears the failure record; a
// terminal update while the server is desired-to-run registers a failure
// and puts it back in line for offers.
func (e *Engine) UpdateTaskStatus(update driver.StatusUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()

	server := e.cluster.FindByTaskID(update.TaskID)
	if server == nil {
		e.logger.Warn().Str("task_id", update.TaskID).Str("state", string(update.State)).Msg("status update for unknown task")
		return
	}

	logger := e.logger.With().Str("server_id", server.ID).Str("task_id", update.TaskID).Logger()

	switch {
	case update.State == driver.TaskRunning:
		if server.State != cluster.StateStaging {
			logger.Warn().Str("server_state", string(server.State)).Msg("unexpected running confirmation")
			return
		}
		server.State = cluster.StateRunning
		server.Failover.ResetFailures()
		e.persist()
		logger.Info().Msg("task confirmed running")
		e.publish(&events.Event{Type: events.EventTaskRunning, ServerID: server.ID, TaskID: update.TaskID})

	case update.State.Terminal():
		server.Task = nil

		if server.State == cluster.StateAdded {
			// Operator stop: the kill is confirmed, nothing failed.
			e.persist()
			logger.Info().Msg("task stopped")
			return
		}

		server.State = cluster.StateStopped
		server.Stickiness.RegisterStop(e.now())
		server.Failover.RegisterFailure(e.now())
		metrics.TaskFailures.Inc()
		e.persist()

		if server.Failover.IsMaxTriesExceeded() {
			logger.Error().
				Int("failures", server.Failover.Failures).
				Msg("server exceeded max tries and will not be rescheduled, manual intervention required")
		} else {
			logger.Info().
				Int("failures", server.Failover.Failures).
				Dur("next_delay", server.Failover.CurrentDelay()).
				Str("message", update.Message).
				Msg("task failed")
		}
		e.publish(&events.Event{Type: events.EventTaskFailed, ServerID: server.ID, TaskID: update.TaskID, Message: update.Message})
	}
}

// ReconcileStaging fails servers stuck in Staging for longer than timeout:
// the task is killed best-effort, a failure is registered and the server
// goes back to waiting for offers.
func (e *Engine) ReconcileStaging(timeout time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	dirty := false

	for _, server := range e.cluster.Servers() {
		if server.State != cluster.StateStaging || server.Task == nil {
			continue
		}
		if now.Sub(server.Task.LaunchedAt) <= timeout {
			continue
		}

		e.logger.Warn().
			Str("server_id", server.ID).
			Str("task_id", server.Task.ID).
			Dur("staging_for", now.Sub(server.Task.LaunchedAt)).
			Msg("task stuck in staging, giving up on it")

		if err := e.driver.KillTask(server.Task.ID); err != nil {
			e.logger.Error().Err(err).Str("task_id", server.Task.ID).Msg("failed to kill stuck task")
		}

		e.publish(&events.Event{Type: events.EventTaskFailed, ServerID: server.ID, TaskID: server.Task.ID, Message: "staging timeout"})
		server.Task = nil
		server.State = cluster.StateStopped
		server.Stickiness.RegisterStop(now)
		server.Failover.RegisterFailure(now)
		metrics.TaskFailures.Inc()
		dirty = true
	}

	if dirty {
		e.persist()
	}
}

// StateCounts reports how many servers sit in each state.
func (e *Engine) StateCounts() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()

	counts := make(map[string]int)
	for _, s := range e.cluster.Servers() {
		counts[string(s.State)]++
	}
	return counts
}

// persist writes the snapshot inside the critical section. Offer and status
// callbacks have nobody to report a storage failure to, so it is logged;
// admin operations use persistErr and propagate it.
func (e *Engine) persist() {
	if err := e.persistErr(); err != nil {
		e.logger.Error().Err(err).Msg("failed to persist cluster state")
	}
}

func (e *Engine) persistErr() error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SnapshotSaveDuration)
	return e.store.Save(e.cluster)
}

func (e *Engine) publish(event *events.Event) {
	if e.broker != nil {
		e.broker.Publish(event)
	}
}

// newServer builds a server with policy objects seeded from the engine
// defaults.
func (e *Engine) newServer(id string, config types.TaskConfig, constraints map[string][]constraint.Constraint) *cluster.Server {
	fo := failover.New(e.cfg.FailoverDelay, e.cfg.FailoverMaxDelay)
	if e.cfg.FailoverMaxTries != nil {
		n := *e.cfg.FailoverMaxTries
		fo.MaxTries = &n
	}
	return cluster.NewServer(id, config, constraints, stickiness.New(e.cfg.StickinessPeriod), fo)
}
