package settings

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketStrings = []byte("strings")
	bucketInts    = []byte("ints")
)

// BoltStore is a Store backed by a bbolt file.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if needed) the bbolt file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("settings: failed to create directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("settings: failed to open bolt file %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketStrings, bucketInts} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("settings: failed to initialize buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) GetString(ctx context.Context, key string) (value string, ok bool, err error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketStrings).Get([]byte(key))
		if v != nil {
			value, ok = string(v), true
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("settings: failed to read %s: %w", key, err)
	}
	return value, ok, nil
}

func (s *BoltStore) SetString(ctx context.Context, key, value string) error {
	return s.SetAll(ctx, map[string]string{key: value}, nil)
}

func (s *BoltStore) GetInt(ctx context.Context, key string) (value int, ok bool, err error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketInts).Get([]byte(key))
		if v == nil {
			return nil
		}
		if len(v) != 8 {
			return fmt.Errorf("corrupt integer value (%d bytes)", len(v))
		}
		value, ok = int(int64(binary.BigEndian.Uint64(v))), true
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("settings: failed to read %s: %w", key, err)
	}
	return value, ok, nil
}

func (s *BoltStore) SetInt(ctx context.Context, key string, value int) error {
	return s.SetAll(ctx, nil, map[string]int{key: value})
}

// SetAll implements BatchSetter in a single bolt transaction.
func (s *BoltStore) SetAll(ctx context.Context, strs map[string]string, ints map[string]int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		sb := tx.Bucket(bucketStrings)
		for k, v := range strs {
			if err := sb.Put([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		ib := tx.Bucket(bucketInts)
		for k, v := range ints {
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, uint64(int64(v)))
			if err := ib.Put([]byte(k), buf); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("settings: failed to write: %w", err)
	}
	return nil
}

// StringKeys implements Lister.
func (s *BoltStore) StringKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketStrings).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("settings: failed to list keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
