// Package catalog provides persistent storage for decoded module records,
// indexed by module name and by fingerprint.
package catalog

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/relicsec/beamdis/internal/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// ErrModuleNotFound is returned when a module record doesn't exist.
	ErrModuleNotFound = errors.New("module not found")

	// ErrClosed is returned when operating on a closed catalog.
	ErrClosed = errors.New("catalog closed")

	// ErrEmptyName is returned for records without a module name.
	ErrEmptyName = errors.New("empty module name")
)

// Bucket names for BoltDB.
var (
	// bucketModules stores complete module records keyed by name.
	bucketModules = []byte("modules")

	// bucketFingerprints indexes module names by fingerprint.
	bucketFingerprints = []byte("fingerprints")
)

// Record is what the catalog persists for one decoded module.
type Record struct {
	// Name is the module name taken from the atom table.
	Name string

	// Source is the file or archive member the module was read from.
	Source string

	// Fingerprint identifies the raw module bytes.
	Fingerprint types.Fingerprint

	// Exports lists the exported functions as name/arity strings.
	Exports []string

	// Instructions is the decoded instruction count.
	Instructions int

	// Disassembly is the full emitted text.
	Disassembly string

	// DecodedAt is when the record was stored.
	DecodedAt time.Time
}

// Config holds catalog configuration options.
type Config struct {
	// Path is the catalog database file.
	Path string

	// NoSync disables fsync after each write (faster but less durable).
	NoSync bool

	// ReadOnly opens the database in read-only mode.
	ReadOnly bool
}

// DefaultConfig returns the default catalog configuration.
func DefaultConfig(path string) Config {
	return Config{
		Path:     path,
		NoSync:   false,
		ReadOnly: false,
	}
}

// Store is the catalog interface.
type Store interface {
	Put(record *Record) error
	Get(name string) (*Record, error)
	GetByFingerprint(fp types.Fingerprint) (*Record, error)
	Has(name string) bool
	Delete(name string) error
	List() ([]string, error)
	Count() (int, error)
	Close() error
}

// BoltCatalog implements Store using BoltDB.
type BoltCatalog struct {
	db     *bolt.DB
	config Config

	mu     sync.RWMutex
	closed bool
}

// Open creates or opens a catalog at the given path.
func Open(config Config) (*BoltCatalog, error) {
	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	opts := &bolt.Options{
		Timeout:  5 * time.Second,
		NoSync:   config.NoSync,
		ReadOnly: config.ReadOnly,
	}

	db, err := bolt.Open(config.Path, 0600, opts)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	cat := &BoltCatalog{
		db:     db,
		config: config,
	}

	if !config.ReadOnly {
		if err := cat.initBuckets(); err != nil {
			db.Close()
			return nil, fmt.Errorf("init buckets: %w", err)
		}
	}

	return cat, nil
}

// initBuckets creates all required buckets.
func (c *BoltCatalog) initBuckets() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketModules,
			bucketFingerprints,
		}
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// Put stores a module record, replacing any previous record for the same
// name and re-pointing the fingerprint index at it.
func (c *BoltCatalog) Put(record *Record) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrClosed
	}
	c.mu.RUnlock()

	if record.Name == "" {
		return ErrEmptyName
	}
	if record.DecodedAt.IsZero() {
		record.DecodedAt = time.Now().UTC()
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(record); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		key := []byte(record.Name)

		modules := tx.Bucket(bucketModules)
		fps := tx.Bucket(bucketFingerprints)

		// Drop the stale fingerprint index entry if the module changed.
		if old := modules.Get(key); old != nil {
			var prev Record
			if err := gob.NewDecoder(bytes.NewReader(old)).Decode(&prev); err == nil {
				if !prev.Fingerprint.Equals(record.Fingerprint) {
					if err := fps.Delete(prev.Fingerprint[:]); err != nil {
						return err
					}
				}
			}
		}

		if err := modules.Put(key, buf.Bytes()); err != nil {
			return err
		}
		return fps.Put(record.Fingerprint[:], key)
	})
}

// Get retrieves a module record by name.
func (c *BoltCatalog) Get(name string) (*Record, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, ErrClosed
	}
	c.mu.RUnlock()

	var record Record
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketModules)
		if b == nil {
			return ErrModuleNotFound
		}

		data := b.Get([]byte(name))
		if data == nil {
			return ErrModuleNotFound
		}

		return gob.NewDecoder(bytes.NewReader(data)).Decode(&record)
	})

	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetByFingerprint retrieves a module record by its fingerprint.
func (c *BoltCatalog) GetByFingerprint(fp types.Fingerprint) (*Record, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, ErrClosed
	}
	c.mu.RUnlock()

	var name []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFingerprints)
		if b == nil {
			return ErrModuleNotFound
		}

		v := b.Get(fp[:])
		if v == nil {
			return ErrModuleNotFound
		}
		name = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return c.Get(string(name))
}

// Has checks if a record exists for the given module name.
func (c *BoltCatalog) Has(name string) bool {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return false
	}
	c.mu.RUnlock()

	exists := false
	c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketModules)
		if b != nil && b.Get([]byte(name)) != nil {
			exists = true
		}
		return nil
	})
	return exists
}

// Delete removes a module record and its fingerprint index entry.
func (c *BoltCatalog) Delete(name string) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrClosed
	}
	c.mu.RUnlock()

	return c.db.Update(func(tx *bolt.Tx) error {
		key := []byte(name)
		modules := tx.Bucket(bucketModules)

		data := modules.Get(key)
		if data == nil {
			return nil // Already deleted.
		}

		var record Record
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&record); err == nil {
			if err := tx.Bucket(bucketFingerprints).Delete(record.Fingerprint[:]); err != nil {
				return err
			}
		}

		return modules.Delete(key)
	})
}

// List returns the names of all stored modules in key order.
func (c *BoltCatalog) List() ([]string, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, ErrClosed
	}
	c.mu.RUnlock()

	var names []string
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketModules)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// Count returns the number of stored module records.
func (c *BoltCatalog) Count() (int, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return 0, ErrClosed
	}
	c.mu.RUnlock()

	count := 0
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketModules)
		if b != nil {
			count = b.Stats().KeyN
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Close shuts down the catalog.
func (c *BoltCatalog) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.db.Close()
}

// Verify interface compliance.
var _ Store = (*BoltCatalog)(nil)
