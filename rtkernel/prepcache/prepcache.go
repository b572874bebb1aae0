// Package prepcache keeps prepared primitive payloads in a badger database so
// that expensive preparations survive between runs.
package prepcache

import (
	"crypto/sha256"
	"encoding/binary"
	"os"
	"sync/atomic"

	"github.com/dgraph-io/badger"
	"github.com/golang/glog"
	"github.com/golang/snappy"
	"golang.org/x/xerrors"
)

// Key prefixes that denote different tables in the key-value store.
const (
	KeyTypePrep uint32 = 0
)

// FormatVersion is bumped whenever a primitive's payload layout changes, so
// that stale entries are never decoded.
const FormatVersion uint32 = 1

// PrepKey is the database key for a primitive with the given cache key.
func PrepKey(paramKey []byte) []byte {
	sum := sha256.Sum256(paramKey)
	key := make([]byte, 8+len(sum))
	binary.BigEndian.PutUint32(key[0:4], KeyTypePrep)
	binary.BigEndian.PutUint32(key[4:8], FormatVersion)
	copy(key[8:], sum[:])
	return key
}

// Stats counts cache traffic.
type Stats struct {
	Hits   int64
	Misses int64
	Puts   int64
}

type Cache struct {
	DB *badger.DB

	hits, misses, puts int64
}

// Open opens (creating if needed) the cache in dataDir.  If clear is set, any
// existing cache is removed first.
func Open(dataDir string, clear bool) (*Cache, error) {
	if clear {
		if err := os.RemoveAll(dataDir); err != nil {
			return nil, xerrors.Errorf("while clearing prep cache dir %q: %w", dataDir, err)
		}
	}

	db, err := badger.Open(badger.DefaultOptions(dataDir))
	if err != nil {
		return nil, xerrors.Errorf("while opening badger kv dir: %w", err)
	}

	return &Cache{DB: db}, nil
}

func (c *Cache) Close() error {
	if err := c.DB.Close(); err != nil {
		return xerrors.Errorf("while closing badger kv dir: %w", err)
	}
	return nil
}

// Get looks up a payload.  A missing key is not an error.
func (c *Cache) Get(paramKey []byte) ([]byte, bool, error) {
	var compressed []byte
	err := c.DB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(PrepKey(paramKey))
		if err != nil {
			return err
		}
		compressed, err = item.ValueCopy(nil)
		return err
	})
	if xerrors.Is(err, badger.ErrKeyNotFound) {
		atomic.AddInt64(&c.misses, 1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, xerrors.Errorf("while reading prep cache: %w", err)
	}

	payload, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, false, xerrors.Errorf("while decompressing prep cache entry: %w", err)
	}
	atomic.AddInt64(&c.hits, 1)
	return payload, true, nil
}

func (c *Cache) Put(paramKey, payload []byte) error {
	compressed := snappy.Encode(nil, payload)
	err := c.DB.Update(func(txn *badger.Txn) error {
		return txn.Set(PrepKey(paramKey), compressed)
	})
	if err != nil {
		return xerrors.Errorf("while writing prep cache: %w", err)
	}
	atomic.AddInt64(&c.puts, 1)
	glog.V(2).Infof("Cached %d byte payload (%d compressed)", len(payload), len(compressed))
	return nil
}

func (c *Cache) Stats() Stats {
	return Stats{
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
		Puts:   atomic.LoadInt64(&c.puts),
	}
}
