package kv

import (
	"time"

	perrors "github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("unitdata")

// Store is a small file backed key/value store. It holds the state that has
// to outlive a single hook invocation, most importantly the MAC to PCI
// address bindings of NICs that disappear from the kernel once bound to a
// DPDK driver.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, perrors.Wrapf(err, "failed to open kv store %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, perrors.Wrapf(err, "failed to initialise kv store %s", path)
	}
	return &Store{db: db}, nil
}

// Get returns the value stored under key and whether it was present.
func (s *Store) Get(key string) (string, bool, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketName).Get([]byte(key)); v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return "", false, perrors.Wrapf(err, "failed to read key %s", key)
	}
	return string(value), value != nil, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(key, value string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), []byte(value))
	})
	return perrors.Wrapf(err, "failed to write key %s", key)
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
	return perrors.Wrapf(err, "failed to delete key %s", key)
}

// Flush forces written values to disk.
func (s *Store) Flush() error {
	return perrors.Wrap(s.db.Sync(), "failed to sync kv store")
}

// Close releases the file lock.
func (s *Store) Close() error {
	return s.db.Close()
}
