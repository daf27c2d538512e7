// Package storage — bolt.go
//
// BoltDB-backed persistent audit log for the oracle gateway node.
//
// Schema (BoltDB bucket layout):
//
//	/reputation_events
//	    key:   fixed-width RFC3339 nanosecond timestamp + "_" + node_id  [sortable]
//	    value: JSON-encoded ReputationEvent
//
//	/slash_records
//	    key:   fixed-width RFC3339 nanosecond timestamp + "_" + target
//	    value: JSON-encoded SlashRecord
//
//	/ledger_submissions
//	    key:   fixed-width RFC3339 nanosecond timestamp + "_" + tx_ref
//	    value: JSON-encoded LedgerSubmission
//
//	/meta
//	    key:   "schema_version"
//	    value: "1"
//
// Consistency model:
//   - Single-process, single-writer (BoltDB does not support concurrent writers).
//   - All writes use ACID transactions (bbolt Tx.Commit()).
//   - Reads use read-only transactions (bbolt.View()).
//   - Meta-page checksum validation on database open (bbolt built-in).
//
// Retention:
//   - PruneOldReputationEvents deletes reputation events older than
//     RetentionDays when it is called; Open does not prune and this package
//     runs no background pruning.
//   - Slash records and ledger submissions are never automatically pruned
//     (they are the node's compliance trail).
package storage

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/rodiolabs/oraclenode/internal/model"
)

const (
	// DefaultDBPath is the default BoltDB file location.
	DefaultDBPath = "/var/lib/oraclenode/oraclenode.db"

	// SchemaVersion is the current database schema version.
	SchemaVersion = "1"

	// DefaultRetentionDays is the default reputation-event retention period.
	DefaultRetentionDays = 30

	bucketReputationEvents = "reputation_events"
	bucketSlashRecords     = "slash_records"
	bucketSubmissions      = "ledger_submissions"
	bucketMeta             = "meta"
)

// DB wraps a BoltDB instance with typed accessors for the node's audit log.
type DB struct {
	db            *bolt.DB
	retentionDays int
}

// Open opens (or creates) the BoltDB database at the given path. Initializes
// all required buckets and verifies the schema version.
func Open(path string, retentionDays int) (*DB, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}

	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout:      5 * time.Second,
		FreelistType: bolt.FreelistArrayType,
	})
	if err != nil {
		return nil, fmt.Errorf("bolt.Open(%q): %w", path, err)
	}

	d := &DB{db: bdb, retentionDays: retentionDays}

	if err := d.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketReputationEvents, bucketSlashRecords, bucketSubmissions, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("CreateBucketIfNotExists(%q): %w", name, err)
			}
		}
		meta := tx.Bucket([]byte(bucketMeta))
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(SchemaVersion)); err != nil {
				return fmt.Errorf("write schema_version: %w", err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("database initialisation failed: %w", err)
	}

	if err := d.checkSchemaVersion(); err != nil {
		_ = bdb.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) checkSchemaVersion() error {
	return d.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bucketMeta))
		v := meta.Get([]byte("schema_version"))
		if string(v) != SchemaVersion {
			return fmt.Errorf(
				"schema version mismatch: database has %q, node requires %q; run migration or restore from backup",
				string(v), SchemaVersion,
			)
		}
		return nil
	})
}

// Close closes the underlying BoltDB file.
func (d *DB) Close() error {
	return d.db.Close()
}

// sortableKey uses a fixed nine-digit fraction so that byte order matches
// time order (time.RFC3339Nano trims trailing zeros and would not).
func sortableKey(t time.Time, discriminator string) []byte {
	return []byte(fmt.Sprintf("%s_%s", t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00"), discriminator))
}

// AppendReputationEvent implements reputation.AuditLog.
func (d *DB) AppendReputationEvent(e model.ReputationEvent) error {
	if e.Ts.IsZero() {
		e.Ts = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("AppendReputationEvent marshal: %w", err)
	}
	key := sortableKey(e.Ts, e.NodeID)
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketReputationEvents)).Put(key, data)
	})
}

// AppendSlashRecord implements reputation.AuditLog.
func (d *DB) AppendSlashRecord(r model.SlashRecord) error {
	if r.Ts.IsZero() {
		r.Ts = time.Now().UTC()
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("AppendSlashRecord marshal: %w", err)
	}
	key := sortableKey(r.Ts, r.Target)
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSlashRecords)).Put(key, data)
	})
}

// AppendSubmission persists a LedgerSubmission's current state as a JSON
// record, implementing ledger.AuditStore. The record carries no chain hash.
func (d *DB) AppendSubmission(s model.LedgerSubmission) error {
	if s.Ts.IsZero() {
		s.Ts = time.Now().UTC()
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("AppendSubmission marshal: %w", err)
	}
	key := sortableKey(s.Ts, s.TxRef)
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSubmissions)).Put(key, data)
	})
}

// PruneOldReputationEvents deletes reputation events older than
// retentionDays. Returns the number of entries deleted.
func (d *DB) PruneOldReputationEvents() (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -d.retentionDays)
	cutoffKey := sortableKey(cutoff, "")

	var deleted int
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketReputationEvents))
		c := b.Cursor()

		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if string(k) >= string(cutoffKey) {
				break
			}
			keyCopy := make([]byte, len(k))
			copy(keyCopy, k)
			toDelete = append(toDelete, keyCopy)
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("PruneOldReputationEvents delete: %w", err)
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// ReadReputationEvents returns all reputation events in chronological order.
// For operational inspection; not called on the hot path.
func (d *DB) ReadReputationEvents() ([]model.ReputationEvent, error) {
	var out []model.ReputationEvent
	err := d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketReputationEvents)).ForEach(func(_, v []byte) error {
			var e model.ReputationEvent
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	return out, err
}

// ReadSlashRecords returns all slash records in chronological order.
func (d *DB) ReadSlashRecords() ([]model.SlashRecord, error) {
	var out []model.SlashRecord
	err := d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSlashRecords)).ForEach(func(_, v []byte) error {
			var r model.SlashRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, r)
			return nil
		})
	})
	return out, err
}
