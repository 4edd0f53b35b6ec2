// store.go — BoltDB-backed persistence for the collector inventory.
//
// Schema (BoltDB bucket layout):
//
//	/inventory
//	    key:   identity_hash (16 hex chars)
//	    value: JSON-encoded model.InventoryEntry
//	/meta
//	    key:   "schema_version"
//	    value: "1"
//
// Consistency model:
//   - Single-process, single-writer (BoltDB does not support concurrent writers).
//   - All writes use ACID transactions (bbolt Tx.Commit()).
//   - Reads use read-only transactions (bbolt.View()).
//
// Failure modes:
//   - Corrupt inventory file: bbolt returns an error on Open(); the
//     collector starts with an empty in-memory inventory rather than
//     refusing to start (inventory loss only degrades delta quality
//     for one cycle, spec §7 — unlike the executor's lock file this is
//     not safety-critical).
package collect

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/octoreflex/proctriage/internal/model"
)

const (
	// SchemaVersion is the current inventory database schema version.
	SchemaVersion = "1"

	bucketInventory = "inventory"
	bucketMeta      = "meta"
)

// Store persists the collector's InventoryEntry map across restarts.
type Store struct {
	db *bolt.DB
}

// OpenStore opens (or creates) the inventory database at path.
func OpenStore(path string) (*Store, error) {
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("collect: bolt.Open(%q): %w", path, err)
	}
	s := &Store{db: bdb}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketInventory, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("CreateBucketIfNotExists(%q): %w", name, err)
			}
		}
		meta := tx.Bucket([]byte(bucketMeta))
		if meta.Get([]byte("schema_version")) == nil {
			return meta.Put([]byte("schema_version"), []byte(SchemaVersion))
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("collect: inventory db init: %w", err)
	}
	return s, nil
}

// Close closes the underlying BoltDB file.
func (s *Store) Close() error { return s.db.Close() }

// LoadAll returns every persisted InventoryEntry, keyed by identity hash.
func (s *Store) LoadAll() (map[string]model.InventoryEntry, error) {
	out := make(map[string]model.InventoryEntry)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketInventory))
		return b.ForEach(func(k, v []byte) error {
			var e model.InventoryEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("unmarshal inventory entry %q: %w", k, err)
			}
			out[string(k)] = e
			return nil
		})
	})
	return out, err
}

// SaveAll replaces the persisted inventory with snapshot in a single
// transaction (collector calls this at the end of each update cycle).
func (s *Store) SaveAll(snapshot map[string]model.InventoryEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketInventory))
		c := b.Cursor()
		var stale [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if _, ok := snapshot[string(k)]; !ok {
				stale = append(stale, append([]byte(nil), k...))
			}
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		for hash, entry := range snapshot {
			data, err := json.Marshal(entry)
			if err != nil {
				return fmt.Errorf("marshal inventory entry %q: %w", hash, err)
			}
			if err := b.Put([]byte(hash), data); err != nil {
				return err
			}
		}
		return nil
	})
}
