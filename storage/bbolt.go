package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fusionbridge/swapd/coordinator"
	"github.com/fusionbridge/swapd/events"
	"go.etcd.io/bbolt"
)

const (
	dbFileName       = "swapd.db"
	dbFilePermission = 0600
)

var (
	recordsBucket     = []byte("swap-records")
	checkpointsBucket = []byte("event-checkpoints")
)

// migration mutates the database from one schema version to the next,
// mirroring channeldb.DB's migration shape.
type migration func(tx *bbolt.Tx) error

var dbMigrations = []migration{
	// version 0 -> 1: create the top-level buckets this package uses.
	func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(recordsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(checkpointsBucket)
		return err
	},
}

var metaBucket = []byte("meta")
var dbVersionKey = []byte("version")

// BoltBackend is the default embedded Backend implementation.
type BoltBackend struct {
	db *bbolt.DB
}

// OpenBolt opens (creating if necessary) a bbolt-backed store under dbPath,
// applying any pending schema migrations.
func OpenBolt(dbPath string) (*BoltBackend, error) {
	if err := os.MkdirAll(dbPath, 0700); err != nil {
		return nil, fmt.Errorf("storage: create db dir: %w", err)
	}

	path := filepath.Join(dbPath, dbFileName)
	db, err := bbolt.Open(path, dbFilePermission, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open bbolt db: %w", err)
	}

	b := &BoltBackend{db: db}
	if err := b.syncVersion(); err != nil {
		db.Close()
		return nil, err
	}

	return b, nil
}

func (b *BoltBackend) syncVersion() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}

		current := uint32(0)
		if v := meta.Get(dbVersionKey); v != nil {
			current = binary.BigEndian.Uint32(v)
		}

		for current < uint32(len(dbMigrations)) {
			if err := dbMigrations[current](tx); err != nil {
				return fmt.Errorf("storage: migration %d failed: %w", current, err)
			}
			current++
		}

		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, current)
		return meta.Put(dbVersionKey, buf)
	})
}

var _ Backend = (*BoltBackend)(nil)

// PutRecord implements Backend.
func (b *BoltBackend) PutRecord(ctx context.Context, r coordinator.Record) error {
	buf, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("storage: encode record: %w", err)
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(recordsBucket).Put([]byte(r.SwapKey), buf)
	})
}

// GetRecord implements Backend.
func (b *BoltBackend) GetRecord(ctx context.Context, swapKey string) (coordinator.Record, bool, error) {
	var r coordinator.Record
	var found bool

	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(recordsBucket).Get([]byte(swapKey))
		if v == nil {
			return nil
		}

		found = true
		return json.Unmarshal(v, &r)
	})

	return r, found, err
}

// ListRecords implements Backend.
func (b *BoltBackend) ListRecords(ctx context.Context) ([]coordinator.Record, error) {
	var out []coordinator.Record

	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(recordsBucket).ForEach(func(k, v []byte) error {
			var r coordinator.Record
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, r)
			return nil
		})
	})

	return out, err
}

// PutCheckpoint implements Backend.
func (b *BoltBackend) PutCheckpoint(ctx context.Context, chain events.Chain, cp events.Checkpoint) error {
	buf, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("storage: encode checkpoint: %w", err)
	}

	key := []byte(chain.String())
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(checkpointsBucket).Put(key, buf)
	})
}

// GetCheckpoint implements Backend.
func (b *BoltBackend) GetCheckpoint(ctx context.Context, chain events.Chain) (events.Checkpoint, error) {
	var cp events.Checkpoint

	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(checkpointsBucket).Get([]byte(chain.String()))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &cp)
	})

	return cp, err
}

// Close implements Backend.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}
