package reconciler

import (
	"time"

	"github.com/zkfleet/zkfleet/pkg/scheduler"
)

// Reconciler periodically sweeps the fleet for tasks stuck in staging. A
// launch whose confirmation never arrives would otherwise pin its server in
// Staging forever; the sweep turns it into an ordinary failure so the
// failover policy takes over.
type Reconciler struct {
	engine   *scheduler.Engine
	interval time.Duration
	timeout  time.Duration
	stopCh   chan struct{}
}

// New creates a reconciler sweeping every interval, failing tasks that have
// been staging longer than timeout.
func New(engine *scheduler.Engine, interval, timeout time.Duration) *Reconciler {
	return &Reconciler{
		engine:   engine,
		interval: interval,
		timeout:  timeout,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the reconciliation loop
func (r *Reconciler) Start() {
	go r.run()
}

// Stop stops the reconciler
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.engine.ReconcileStaging(r.timeout)
		case <-r.stopCh:
			return
		}
	}
}
