// Package registry is the cluster-replicated placement registry the
// migration worker's "update_registry" step writes to:
// a durable (bucket,key,version) -> (pool,set) table, kept consistent
// across nodes via Raft. Store is the bboltDB-backed state machine body;
// FSM/Node wrap it for Raft.
package registry

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/gridstore/core/internal/errs"
)

var placementsBucket = []byte("placements")

// Placement is the registry's record of where one object version
// currently lives.
type Placement struct {
	Bucket string `json:"bucket"`
	Key string `json:"key"`
	VersionID string `json:"version_id,omitempty"`
	PoolIdx int `json:"pool_idx"`
	SetIdx int `json:"set_idx"`
}

func placementKey(bucket, key, versionID string) []byte {
	if versionID == "" {
		return []byte(fmt.Sprintf("%s/%s", bucket, key))
	}
	return []byte(fmt.Sprintf("%s/%s/%s", bucket, key, versionID))
}

// Store wraps a bboltDB database holding the placements bucket.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the registry database at path.
func Open(path string) (*Store, error) {
	const op = "registry.Open"
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errs.New(errs.IO, op, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(placementsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errs.New(errs.IO, op, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// put writes a placement record directly (bypassing Raft) — only the FSM
// calls this, from an already-committed log entry.
func (s *Store) put(p Placement) error {
	const op = "registry.put"
	buf, err := json.Marshal(p)
	if err != nil {
		return errs.New(errs.InvalidArg, op, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(placementsBucket).Put(placementKey(p.Bucket, p.Key, p.VersionID), buf)
	})
}

func (s *Store) delete(bucket, key, versionID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(placementsBucket).Delete(placementKey(bucket, key, versionID))
	})
}

// Lookup returns the current placement for (bucket,key[,versionID]).
func (s *Store) Lookup(bucket, key, versionID string) (*Placement, bool, error) {
	const op = "registry.Lookup"
	var p *Placement
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(placementsBucket).Get(placementKey(bucket, key, versionID))
		if v == nil {
			return nil
		}
		var rec Placement
		if err := json.Unmarshal(v, &rec); err != nil {
			return err
		}
		p = &rec
		return nil
	})
	if err != nil {
		return nil, false, errs.New(errs.IO, op, err)
	}
	return p, p != nil, nil
}

// Count returns the number of tracked placements; only tests call it.
func (s *Store) Count() (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(placementsBucket).ForEach(func(k, v []byte) error {
			n++
			return nil
		})
	})
	return n, err
}

