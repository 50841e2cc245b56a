// Package snapshot implements the durable snapshot store: a bbolt-backed
// key-value file holding one serialized database blob under a fixed
// versioned key. The store has no knowledge of the blob's structure.
package snapshot

import (
	"io"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/talkincode/tinypos/pkg/common"
)

const (
	bucketName = "snapshots"

	// SnapshotKey is the fixed versioned key the database blob lives under.
	SnapshotKey = "pos_db_snapshot_v1"

	// ExportFilename is the suggested name for downloadable exports.
	ExportFilename = "pos_db.sqlite"
)

// ErrNoSnapshot signals that no snapshot has been persisted yet.
var ErrNoSnapshot = errors.New("snapshot: no snapshot exists")

// Store owns the snapshot file. A single writer is assumed.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the snapshot store at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open snapshot store %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "init snapshot bucket")
	}
	return &Store{db: db}, nil
}

// Load returns the previously persisted blob, or ErrNoSnapshot.
func (s *Store) Load() ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketName)).Get([]byte(SnapshotKey))
		if v == nil {
			return ErrNoSnapshot
		}
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Persist fully overwrites the stored blob. Idempotent.
func (s *Store) Persist(data []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(SnapshotKey), data)
	})
	return errors.Wrap(err, "persist snapshot")
}

// Import fully replaces the stored blob with externally supplied bytes.
// Confirming destructive intent is the caller's responsibility.
func (s *Store) Import(data []byte) error {
	if len(data) == 0 {
		return errors.New("snapshot: import data is empty")
	}
	return s.Persist(data)
}

// ImportBase64 replaces the stored blob from a text-safe encoding.
func (s *Store) ImportBase64(b64 string) error {
	data, err := common.Base64Decode(b64)
	if err != nil {
		return errors.Wrap(err, "decode snapshot base64")
	}
	return s.Import(data)
}

// ExportTo writes the raw blob to w.
func (s *Store) ExportTo(w io.Writer) (int64, error) {
	data, err := s.Load()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), errors.Wrap(err, "write snapshot export")
}

// ExportBase64 returns the blob in text-safe form.
func (s *Store) ExportBase64() (string, error) {
	data, err := s.Load()
	if err != nil {
		return "", err
	}
	return common.Base64Encode(data), nil
}

// Size returns the stored blob's length in bytes, zero when absent.
func (s *Store) Size() int {
	var n int
	_ = s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(bucketName)).Get([]byte(SnapshotKey)); v != nil {
			n = len(v)
		}
		return nil
	})
	return n
}

// Close closes the underlying file.
func (s *Store) Close() error {
	return s.db.Close()
}
