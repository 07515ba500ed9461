package storage

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/zkfleet/zkfleet/pkg/cluster"
)

// FileStore keeps the snapshot in a single local file, rewritten on every
// save.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Save(c *cluster.Cluster) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to serialize cluster: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) Load(c *cluster.Cluster) (bool, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read snapshot %s: %w", s.path, err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return false, fmt.Errorf("corrupt snapshot %s: %w", s.path, err)
	}
	return true, nil
}

func (s *FileStore) Close() error {
	return nil
}
