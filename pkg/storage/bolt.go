package storage

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/zkfleet/zkfleet/pkg/cluster"
)

var (
	bucketCluster = []byte("cluster")
	keySnapshot   = []byte("snapshot")
)

// BoltStore keeps the snapshot blob in a BoltDB file: one bucket, one key.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCluster)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Save(c *cluster.Cluster) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to serialize cluster: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCluster).Put(keySnapshot, data)
	})
}

func (s *BoltStore) Load(c *cluster.Cluster) (bool, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketCluster).Get(keySnapshot); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}

	if err := json.Unmarshal(data, c); err != nil {
		return false, fmt.Errorf("corrupt snapshot in database: %w", err)
	}
	return true, nil
}
