package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"

	"github.com/zkfleet/zkfleet/pkg/cluster"
)

// zkSessionTimeout bounds connect and request time so a dead ensemble fails
// the operation instead of hanging the scheduler lock.
const zkSessionTimeout = 30 * time.Second

// ZKStore keeps the snapshot in a single ZooKeeper node. Every operation
// opens a fresh session and closes it before returning; no connection is
// kept between calls.
type ZKStore struct {
	servers []string
	path    string
}

// NewZKStore parses a connection string of the form
// "host:port[,host:port...][/chroot]" and eagerly creates the chroot path
// (all ancestors, persistent, empty). When no chroot is given the snapshot
// lives at /zkfleet.
func NewZKStore(connect string) (*ZKStore, error) {
	servers, path, err := parseZKConnect(connect)
	if err != nil {
		return nil, err
	}

	s := &ZKStore{servers: servers, path: path}
	if err := s.ensurePath(); err != nil {
		return nil, err
	}
	return s, nil
}

func parseZKConnect(connect string) ([]string, string, error) {
	endpoint, chroot, _ := strings.Cut(connect, "/")
	if endpoint == "" {
		return nil, "", fmt.Errorf("invalid zookeeper connect string %q", connect)
	}

	path := "/zkfleet"
	if chroot != "" {
		path = "/" + chroot
	}
	return strings.Split(endpoint, ","), path, nil
}

// ensurePath creates the snapshot path and all missing ancestors, then
// disconnects.
func (s *ZKStore) ensurePath() error {
	conn, err := s.connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	node := ""
	for _, part := range strings.Split(strings.Trim(s.path, "/"), "/") {
		node += "/" + part
		_, err := conn.Create(node, nil, 0, zk.WorldACL(zk.PermAll))
		if err != nil && err != zk.ErrNodeExists {
			return fmt.Errorf("failed to create zookeeper path %s: %w", node, err)
		}
	}
	return nil
}

func (s *ZKStore) connect() (*zk.Conn, error) {
	conn, _, err := zk.Connect(s.servers, zkSessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper %s: %w", strings.Join(s.servers, ","), err)
	}
	return conn, nil
}

func (s *ZKStore) Save(c *cluster.Cluster) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to serialize cluster: %w", err)
	}

	conn, err := s.connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Create(s.path, data, 0, zk.WorldACL(zk.PermAll))
	if err == zk.ErrNodeExists {
		_, err = conn.Set(s.path, data, -1)
	}
	if err != nil {
		return fmt.Errorf("failed to write snapshot to %s: %w", s.path, err)
	}
	return nil
}

func (s *ZKStore) Load(c *cluster.Cluster) (bool, error) {
	conn, err := s.connect()
	if err != nil {
		return false, err
	}
	defer conn.Close()

	data, _, err := conn.Get(s.path)
	if err == zk.ErrNoNode {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read snapshot from %s: %w", s.path, err)
	}
	if len(data) == 0 {
		// A freshly created chroot node has no payload yet.
		return false, nil
	}

	if err := json.Unmarshal(data, c); err != nil {
		return false, fmt.Errorf("corrupt snapshot at %s: %w", s.path, err)
	}
	return true, nil
}

// Close is a no-op; sessions are opened and closed per operation.
func (s *ZKStore) Close() error {
	return nil
}
