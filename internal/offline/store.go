// Package offline implements the offline caching layer that fronts the
// application's own asset origin: a versioned precache populated at install
// time, a runtime cache populated opportunistically, and a request resolver
// that always answers from network, cache, or the offline fallback page.
package offline

import (
	"bytes"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// metaBucket holds store bookkeeping and is never treated as a cache
// generation.
const metaBucket = "__offline_meta"

const activeVersionKey = "active_version"

// Entry is one cached response, keyed by request URL inside its generation's
// bucket.
type Entry struct {
	URL      string      `json:"url"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
}

// Response materializes the entry as a fresh, unconsumed http.Response.
func (e *Entry) Response(req *http.Request, generation string) *http.Response {
	header := make(http.Header, len(e.Header)+1)
	for k, vv := range e.Header {
		header[k] = append([]string(nil), vv...)
	}
	header.Set("X-Offline-Cache", generation)
	return &http.Response{
		Status:        http.StatusText(e.Status),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// Store keeps cache generations as bbolt buckets, one entry per request URL.
type Store struct {
	db *bolt.DB
}

// OpenStore opens (creating if needed) the cache store at path.
func OpenStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open offline cache store %s", path)
	}
	return &Store{db: db}, nil
}

// Put stores a single entry in a generation, creating it when missing.
func (s *Store) Put(generation, key string, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "encode cache entry")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(generation))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

// PutAll replaces a generation with the given entries in one transaction:
// either every entry is stored or the generation is left untouched.
func (s *Store) PutAll(generation string, entries map[string]*Entry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(generation)) != nil {
			if err := tx.DeleteBucket([]byte(generation)); err != nil {
				return err
			}
		}
		b, err := tx.CreateBucket([]byte(generation))
		if err != nil {
			return err
		}
		for key, e := range entries {
			data, err := json.Marshal(e)
			if err != nil {
				return errors.Wrap(err, "encode cache entry")
			}
			if err := b.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns the entry stored under key in a generation.
func (s *Store) Get(generation, key string) (*Entry, bool) {
	var e *Entry
	_ = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(generation))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		var entry Entry
		if err := json.Unmarshal(v, &entry); err != nil {
			return nil
		}
		e = &entry
		return nil
	})
	return e, e != nil
}

// Match looks key up across generations in order, returning the first hit
// and the generation that held it.
func (s *Store) Match(key string, generations ...string) (*Entry, string, bool) {
	for _, gen := range generations {
		if e, ok := s.Get(gen, key); ok {
			return e, gen, true
		}
	}
	return nil, "", false
}

// Generations enumerates all cache generation names.
func (s *Store) Generations() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			if string(name) != metaBucket {
				names = append(names, string(name))
			}
			return nil
		})
	})
	return names, err
}

// DeleteGeneration removes a whole generation. Deleting a missing generation
// is not an error.
func (s *Store) DeleteGeneration(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(name)) == nil {
			return nil
		}
		return tx.DeleteBucket([]byte(name))
	})
}

// EntryCount returns the number of entries in a generation.
func (s *Store) EntryCount(generation string) int {
	var n int
	_ = s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket([]byte(generation)); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n
}

// ActiveVersion returns the version recorded by the last activation.
func (s *Store) ActiveVersion() string {
	var v string
	_ = s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket([]byte(metaBucket)); b != nil {
			v = string(b.Get([]byte(activeVersionKey)))
		}
		return nil
	})
	return v
}

// SetActiveVersion records the version that currently controls the caches.
func (s *Store) SetActiveVersion(version string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
		if err != nil {
			return err
		}
		return b.Put([]byte(activeVersionKey), []byte(version))
	})
}

// Close closes the underlying file.
func (s *Store) Close() error {
	return s.db.Close()
}
