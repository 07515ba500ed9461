package stickiness

import (
	"time"
)

// Stickiness biases a server back onto its previous host for a grace window
// after a stop, so a restarted ZooKeeper instance finds its data directory
// instead of resyncing from scratch.
type Stickiness struct {
	Period   time.Duration `json:"period"`
	Hostname string        `json:"hostname,omitempty"`
	StopTime *time.Time    `json:"stopTime,omitempty"`
}

// New creates a stickiness tracker with the given affinity window.
func New(period time.Duration) *Stickiness {
	return &Stickiness{Period: period}
}

// AllowsHostname reports whether the server may be placed on candidate at
// now. A server that never started runs anywhere; otherwise only the sticky
// host is allowed until the affinity window after the last stop has elapsed.
func (s *Stickiness) AllowsHostname(candidate string, now time.Time) bool {
	if s.Hostname == "" {
		return true
	}
	if s.Hostname == candidate {
		return true
	}
	if s.StopTime != nil && !now.Before(s.StopTime.Add(s.Period)) {
		return true
	}
	return false
}

// RegisterStart records a placement on host and clears any recorded stop.
func (s *Stickiness) RegisterStart(host string) {
	s.Hostname = host
	s.StopTime = nil
}

// RegisterStop records a stop at now. The sticky host is kept so the
// affinity target survives the stop.
func (s *Stickiness) RegisterStop(now time.Time) {
	t := now
	s.StopTime = &t
}
