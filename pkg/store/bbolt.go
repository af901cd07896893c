// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenKSR – https://openksr.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenKSR-Commercial

package store

import (
	"context"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("openksr")

// BboltStore implements Store using BoltDB.
type BboltStore struct {
	db *bolt.DB

	mu     sync.Mutex
	closed bool
}

// NewBboltStore creates a new BboltStore.
func NewBboltStore(path string) (*BboltStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	// Initialize bucket
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BboltStore{db: db}, nil
}

// Get retrieves the value for the given key.
func (s *BboltStore) Get(ctx context.Context, key string) ([]byte, error) {
	var val []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		v := b.Get([]byte(key))
		if v == nil {
			return ErrKeyNotFound
		}
		// Copy value to be safe outside transaction
		val = make([]byte, len(v))
		copy(val, v)
		return nil
	})
	return val, err
}

// Set sets the value for the given key.
func (s *BboltStore) Set(ctx context.Context, key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		return b.Put([]byte(key), value)
	})
}

// Delete removes the given key.
func (s *BboltStore) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		return b.Delete([]byte(key))
	})
}

// List returns all key-value pairs where the key starts with the given prefix.
func (s *BboltStore) List(ctx context.Context, prefix string) ([]KVPair, error) {
	var pairs []KVPair
	prefixBytes := []byte(prefix)

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		c := b.Cursor()

		for k, v := c.Seek(prefixBytes); k != nil && hasPrefix(k, prefixBytes); k, v = c.Next() {
			val := make([]byte, len(v))
			copy(val, v)
			pairs = append(pairs, KVPair{
				Key:   string(k),
				Value: val,
			})
		}
		return nil
	})
	return pairs, err
}

// hasPrefix checks if b starts with prefix.
func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Close closes the store.
func (s *BboltStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.db.Close()
}
