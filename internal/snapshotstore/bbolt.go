package snapshotstore

import (
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/nishisan-dev/redlet/internal/store"
)

var snapshotBucket = []byte("redlet-snapshots")
var latestKey = []byte("latest")

// BBoltStore is the local, single-file embedded snapshot backend: it keeps
// only the most recent snapshot blob, overwriting it on every Save.
type BBoltStore struct {
	db   *bbolt.DB
	mode CompressionMode
}

// OpenBBoltStore opens (creating if needed) the bbolt file at path.
func OpenBBoltStore(path string) (*BBoltStore, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt snapshot store: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(snapshotBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing bbolt snapshot bucket: %w", err)
	}
	return &BBoltStore{db: db, mode: CompressionGzip}, nil
}

func (b *BBoltStore) Close() error { return b.db.Close() }

// Save encodes snaps and overwrites the single stored blob.
func (b *BBoltStore) Save(snaps []store.Snapshot) error {
	blob, err := Encode(b.mode, snaps)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(snapshotBucket).Put(latestKey, blob)
	})
}

// Load reads back the most recently saved snapshot, ok=false if none
// exists yet (a fresh leader with nothing to bootstrap from).
func (b *BBoltStore) Load() (snaps []store.Snapshot, ok bool, err error) {
	var blob []byte
	err = b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(snapshotBucket).Get(latestKey)
		if v != nil {
			blob = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("reading bbolt snapshot: %w", err)
	}
	if blob == nil {
		return nil, false, nil
	}
	snaps, err = Decode(blob)
	if err != nil {
		return nil, false, err
	}
	return snaps, true, nil
}
