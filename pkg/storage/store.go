package storage

import (
	"fmt"
	"strings"

	"github.com/zkfleet/zkfleet/pkg/cluster"
)

// Store persists the whole cluster as a single snapshot blob.
type Store interface {
	// Save durably writes the snapshot, replacing any previous one.
	Save(c *cluster.Cluster) error

	// Load reads the last saved snapshot into c. It returns false when no
	// snapshot exists yet. Present-but-malformed content is an error: a
	// corrupt snapshot must never be silently discarded.
	Load(c *cluster.Cluster) (bool, error)

	// Close releases backend resources. Safe to call once after use.
	Close() error
}

// New selects a backend from a storage spec of the form scheme:location:
//
//	file:/var/lib/zkfleet/cluster.json
//	zk:zk1:2181,zk2:2181/zkfleet
//	bolt:/var/lib/zkfleet/zkfleet.db
func New(spec string) (Store, error) {
	scheme, location, found := strings.Cut(spec, ":")
	if !found || location == "" {
		return nil, fmt.Errorf("invalid storage spec %q, expected scheme:location", spec)
	}

	switch scheme {
	case "file":
		return NewFileStore(location), nil
	case "zk":
		return NewZKStore(location)
	case "bolt":
		return NewBoltStore(location)
	default:
		return nil, fmt.Errorf("unsupported storage scheme %q", scheme)
	}
}
