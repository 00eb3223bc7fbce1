// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// ScrapeCache is an on-disk TTL cache for scrape API responses.
//
// A fix loop re-searches the same error messages across attempts;
// caching keeps those loops from re-fetching identical pages. Entries
// expire so stale documentation does not linger between sessions.
//
// # Thread Safety
//
// Safe for concurrent use; Badger transactions handle locking.
type ScrapeCache struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenScrapeCache opens (or creates) a cache at dir.
//
// Inputs:
//
//	dir - Directory for the Badger store
//	ttl - Entry lifetime; zero means 24 hours
//
// Outputs:
//
//	*ScrapeCache - The opened cache
//	error - Non-nil if the store cannot be opened
func OpenScrapeCache(dir string, ttl time.Duration) (*ScrapeCache, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening scrape cache: %w", err)
	}

	slog.Debug("Scrape cache opened", "dir", dir, "ttl", ttl)
	return &ScrapeCache{db: db, ttl: ttl}, nil
}

// cacheKey hashes the logical key so arbitrary query text stays within
// Badger's key size limits.
func cacheKey(key string) []byte {
	sum := sha256.Sum256([]byte(key))
	return []byte("scrape/" + hex.EncodeToString(sum[:]))
}

// Get returns the cached value for key, if present and unexpired.
func (c *ScrapeCache) Get(key string) ([]byte, bool) {
	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			slog.Warn("Scrape cache read failed", "error", err)
		}
		return nil, false
	}
	return value, true
}

// Put stores value under key with the cache TTL. Write failures are
// logged, not propagated; the cache is best effort.
func (c *ScrapeCache) Put(key string, value []byte) {
	err := c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(cacheKey(key), value).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		slog.Warn("Scrape cache write failed", "error", err)
	}
}

// Close releases the underlying store.
func (c *ScrapeCache) Close() error {
	return c.db.Close()
}
