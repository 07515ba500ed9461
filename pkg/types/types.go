package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// PortRange is an inclusive range of ports. A single port is a range where
// Start == End.
type PortRange struct {
	Start int
	End   int
}

// Contains reports whether port lies within the range.
func (r PortRange) Contains(port int) bool {
	return port >= r.Start && port <= r.End
}

// Overlaps reports whether the two ranges share at least one port.
func (r PortRange) Overlaps(other PortRange) bool {
	return r.Start <= other.End && other.Start <= r.End
}

func (r PortRange) String() string {
	if r.Start == r.End {
		return strconv.Itoa(r.Start)
	}
	return fmt.Sprintf("%d..%d", r.Start, r.End)
}

// PortRanges is an ordered list of port ranges. Ranges are interpreted in
// listed order for tie-break; they need not be sorted or disjoint.
type PortRanges []PortRange

// ParsePortRanges parses a comma-separated list of "lo..hi" or single-port
// tokens. An empty string parses to an empty list, meaning "any port".
func ParsePortRanges(s string) (PortRanges, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var ranges PortRanges
	for _, token := range strings.Split(s, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		lo, hi, found := strings.Cut(token, "..")
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid port range %q: %w", token, err)
		}
		end := start
		if found {
			end, err = strconv.Atoi(strings.TrimSpace(hi))
			if err != nil {
				return nil, fmt.Errorf("invalid port range %q: %w", token, err)
			}
		}
		if start < 0 || end < start {
			return nil, fmt.Errorf("invalid port range %q", token)
		}

		ranges = append(ranges, PortRange{Start: start, End: end})
	}
	return ranges, nil
}

func (r PortRanges) String() string {
	tokens := make([]string, len(r))
	for i, rng := range r {
		tokens[i] = rng.String()
	}
	return strings.Join(tokens, ",")
}

// MarshalJSON encodes the ranges in their token form ("4000..4100,31020").
func (r PortRanges) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes the token form produced by MarshalJSON.
func (r *PortRanges) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePortRanges(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// TaskConfig describes how a managed ZooKeeper instance is launched: the
// resources it consumes, the ports it may bind, and the Exhibitor runtime
// and shared configuration pushed to it.
type TaskConfig struct {
	ID       string `json:"id,omitempty"`
	Hostname string `json:"hostname,omitempty"`

	CPUs float64 `json:"cpus"`
	Mem  float64 `json:"mem"`

	// Ports an instance is allowed to bind. Empty means any offered port.
	Ports PortRanges `json:"ports,omitempty"`

	ExhibitorConfig      map[string]string `json:"exhibitorConfig,omitempty"`
	SharedConfigOverride map[string]string `json:"sharedConfigOverride,omitempty"`

	SharedConfigChangeBackoff time.Duration `json:"sharedConfigChangeBackoff,omitempty"`
}

// Task is the record of a launched task: where it runs, which port it
// consumed, and the offer attributes it was placed against. It lives on a
// Server from launch until a terminal status update.
type Task struct {
	ID         string            `json:"id"`
	Hostname   string            `json:"hostname"`
	Port       int               `json:"port"`
	Attributes map[string]string `json:"attributes,omitempty"`
	LaunchedAt time.Time         `json:"launchedAt"`
}

// Offer is a resource-manager announcement of spare capacity on one host,
// valid for a single evaluation cycle.
type Offer struct {
	ID         string            `json:"id"`
	Hostname   string            `json:"hostname"`
	CPUs       float64           `json:"cpus"`
	Mem        float64           `json:"mem"`
	Ports      PortRanges        `json:"ports,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// ParseAttributes parses the wire encoding of offer attributes, a
// comma-separated list of name=value pairs. Malformed pairs without "=" are
// skipped.
func ParseAttributes(s string) map[string]string {
	attrs := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		name, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		attrs[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return attrs
}

// FormatAttributes renders attributes back to the comma-separated name=value
// wire form with deterministic key order.
func FormatAttributes(attrs map[string]string) string {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, len(names))
	for i, name := range names {
		pairs[i] = name + "=" + attrs[name]
	}
	return strings.Join(pairs, ",")
}
