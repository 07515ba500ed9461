package cluster

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/zkfleet/zkfleet/pkg/constraint"
	"github.com/zkfleet/zkfleet/pkg/failover"
	"github.com/zkfleet/zkfleet/pkg/stickiness"
	"github.com/zkfleet/zkfleet/pkg/types"
)

// State is the lifecycle state of a managed server.
//
// Added servers are registered but excluded from scheduling. Stopped servers
// are desired-to-run and waiting for a matching offer. Staging servers have
// a task launched but not yet confirmed. Running servers are confirmed
// active. Note that Stopped means "should run, not placed yet", not
// "operator turned it off" - that is Added.
type State string

const (
	StateAdded   State = "added"
	StateStopped State = "stopped"
	StateStaging State = "staging"
	StateRunning State = "running"
)

// Server is one managed ZooKeeper-ensemble instance: its desired state,
// launch configuration, placement constraints and the retry/affinity
// policies it exclusively owns.
type Server struct {
	ID          string
	State       State
	Config      types.TaskConfig
	Constraints map[string][]constraint.Constraint
	Stickiness  *stickiness.Stickiness
	Failover    *failover.Failover

	// Task is the currently placed task, set at launch and cleared on a
	// terminal status update.
	Task *types.Task
}

// NewServer creates a server in the Added state with the given config and
// policies.
func NewServer(id string, config types.TaskConfig, constraints map[string][]constraint.Constraint, sticky *stickiness.Stickiness, fo *failover.Failover) *Server {
	return &Server{
		ID:          id,
		State:       StateAdded,
		Config:      config,
		Constraints: constraints,
		Stickiness:  sticky,
		Failover:    fo,
	}
}

// Active reports whether the server currently holds a placement.
func (s *Server) Active() bool {
	return s.State == StateStaging || s.State == StateRunning
}

// Matches evaluates every configured constraint against the offer, then the
// stickiness policy, short-circuiting with the first failure reason. The
// empty string means the offer is acceptable. The hostname attribute is
// synthesized from the offer; all others come from the offer's attribute
// map. uses supplies the values an attribute currently holds on other
// active servers, for unique constraints.
func (s *Server) Matches(offer *types.Offer, now time.Time, uses func(name string) []string) string {
	names := make([]string, 0, len(s.Constraints))
	for name := range s.Constraints {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value, ok := s.attributeValue(offer, name)
		if !ok {
			return "no " + name
		}
		for _, c := range s.Constraints[name] {
			if reason := c.Evaluate(name, value, uses(name)); reason != "" {
				return reason
			}
		}
	}

	if !s.Stickiness.AllowsHostname(offer.Hostname, now) {
		return fmt.Sprintf("hostname %s doesn't match stickiness host %s", offer.Hostname, s.Stickiness.Hostname)
	}

	return ""
}

func (s *Server) attributeValue(offer *types.Offer, name string) (string, bool) {
	if name == "hostname" {
		return offer.Hostname, true
	}
	value, ok := offer.Attributes[name]
	return value, ok
}

// Snapshot returns a deep copy of the server, safe to hand outside the
// scheduler lock. Constraint values are immutable and shared.
func (s *Server) Snapshot() *Server {
	out := *s

	out.Config.Ports = slices.Clone(s.Config.Ports)
	out.Config.ExhibitorConfig = maps.Clone(s.Config.ExhibitorConfig)
	out.Config.SharedConfigOverride = maps.Clone(s.Config.SharedConfigOverride)

	if s.Constraints != nil {
		out.Constraints = make(map[string][]constraint.Constraint, len(s.Constraints))
		for name, list := range s.Constraints {
			out.Constraints[name] = slices.Clone(list)
		}
	}

	if s.Stickiness != nil {
		sticky := *s.Stickiness
		if sticky.StopTime != nil {
			t := *sticky.StopTime
			sticky.StopTime = &t
		}
		out.Stickiness = &sticky
	}

	if s.Failover != nil {
		fo := *s.Failover
		if fo.FailureTime != nil {
			t := *fo.FailureTime
			fo.FailureTime = &t
		}
		if fo.MaxTries != nil {
			n := *fo.MaxTries
			fo.MaxTries = &n
		}
		out.Failover = &fo
	}

	if s.Task != nil {
		task := *s.Task
		task.Attributes = maps.Clone(s.Task.Attributes)
		out.Task = &task
	}

	return &out
}

// serverJSON is the persisted shape of a Server; constraints are stored in
// their token form.
type serverJSON struct {
	ID          string                 `json:"id"`
	State       State                  `json:"state"`
	Config      types.TaskConfig       `json:"config"`
	Constraints map[string][]string    `json:"constraints,omitempty"`
	Stickiness  *stickiness.Stickiness `json:"stickiness"`
	Failover    *failover.Failover     `json:"failover"`
	Task        *types.Task            `json:"task,omitempty"`
}

func (s *Server) MarshalJSON() ([]byte, error) {
	return json.Marshal(serverJSON{
		ID:          s.ID,
		State:       s.State,
		Config:      s.Config,
		Constraints: constraint.FormatMap(s.Constraints),
		Stickiness:  s.Stickiness,
		Failover:    s.Failover,
		Task:        s.Task,
	})
}

func (s *Server) UnmarshalJSON(data []byte) error {
	var sj serverJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		return err
	}

	constraints, err := constraint.ParseMap(sj.Constraints)
	if err != nil {
		return fmt.Errorf("server %s: %w", sj.ID, err)
	}

	s.ID = sj.ID
	s.State = sj.State
	s.Config = sj.Config
	s.Constraints = constraints
	s.Stickiness = sj.Stickiness
	s.Failover = sj.Failover
	s.Task = sj.Task
	return nil
}

// Cluster is the ordered, id-unique registry of managed servers. It is a
// plain aggregate: serialization of mutations is the scheduler engine's
// job, not the cluster's.
type Cluster struct {
	servers []*Server
}

// New creates an empty cluster.
func New() *Cluster {
	return &Cluster{}
}

// Add registers a server, preserving insertion order. It fails if the id is
// already taken.
func (c *Cluster) Add(s *Server) error {
	if c.Get(s.ID) != nil {
		return fmt.Errorf("server %s already exists", s.ID)
	}
	c.servers = append(c.servers, s)
	return nil
}

// Get returns the server with the given id, or nil.
func (c *Cluster) Get(id string) *Server {
	for _, s := range c.servers {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Remove deletes the server with the given id, reporting whether it existed.
func (c *Cluster) Remove(id string) bool {
	for i, s := range c.servers {
		if s.ID == id {
			c.servers = append(c.servers[:i], c.servers[i+1:]...)
			return true
		}
	}
	return false
}

// Servers returns the registered servers in insertion order. The returned
// slice is a copy; the servers are shared.
func (c *Cluster) Servers() []*Server {
	out := make([]*Server, len(c.servers))
	copy(out, c.servers)
	return out
}

// FindByTaskID returns the server currently owning the given task, or nil.
func (c *Cluster) FindByTaskID(taskID string) *Server {
	for _, s := range c.servers {
		if s.Task != nil && s.Task.ID == taskID {
			return s
		}
	}
	return nil
}

// AttributeUses collects the values attribute name holds on every active
// server other than exclude. This is the production lookup behind unique
// constraints: only Staging and Running placements count as "in use".
func (c *Cluster) AttributeUses(exclude *Server, name string) []string {
	var used []string
	for _, s := range c.servers {
		if s == exclude || !s.Active() || s.Task == nil {
			continue
		}
		if name == "hostname" {
			used = append(used, s.Task.Hostname)
			continue
		}
		if value, ok := s.Task.Attributes[name]; ok {
			used = append(used, value)
		}
	}
	return used
}

type clusterJSON struct {
	Servers []*Server `json:"servers"`
}

func (c *Cluster) MarshalJSON() ([]byte, error) {
	return json.Marshal(clusterJSON{Servers: c.servers})
}

func (c *Cluster) UnmarshalJSON(data []byte) error {
	var cj clusterJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return err
	}
	c.servers = cj.Servers
	return nil
}
