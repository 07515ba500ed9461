package metrics

import (
	"time"
)

// StateCounter reports how many servers sit in each lifecycle state. The
// scheduler engine implements it.
type StateCounter interface {
	StateCounts() map[string]int
}

// Collector periodically refreshes the servers-by-state gauge
type Collector struct {
	source StateCounter
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source StateCounter) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ServersTotal.Reset()
	for state, count := range c.source.StateCounts() {
		ServersTotal.WithLabelValues(state).Set(float64(count))
	}
}
