// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache persists successful operation results in Badger so repeated
// questions skip the oracle extraction and database round trip. The price
// tables are daily snapshots, so short TTLs are safe.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// DefaultTTL bounds how long a cached result is served.
const DefaultTTL = 6 * time.Hour

// Store is a Badger-backed result cache. Misses and storage faults are
// silent: the caller re-executes the operation and the session never sees a
// cache error.
//
// Thread Safety: Store is safe for concurrent use.
type Store struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// Options configures a Store.
type Options struct {
	// Path is the Badger directory. Empty runs fully in memory.
	Path string `yaml:"path"`

	// TTL overrides DefaultTTL when positive.
	TTL time.Duration `yaml:"ttl"`
}

// Open creates or opens the cache.
func Open(opts Options, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	badgerOpts := badger.DefaultOptions(opts.Path).WithLogger(nil)
	if opts.Path == "" {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	logger.Info("result cache opened",
		slog.String("path", opts.Path),
		slog.Duration("ttl", ttl),
	)
	return &Store{db: db, ttl: ttl, logger: logger}, nil
}

// Close releases the Badger handle.
func (s *Store) Close() error { return s.db.Close() }

// Get returns a cached result for an operation/question pair.
func (s *Store) Get(_ context.Context, op, question string) (string, bool) {
	var result []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(op, question))
		if err != nil {
			return err
		}
		result, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if err != badger.ErrKeyNotFound {
			s.logger.Debug("cache read failed", slog.String("op", op), slog.String("error", err.Error()))
		}
		return "", false
	}
	return string(result), true
}

// Set stores a result. Failures are logged and dropped; caching is best
// effort.
func (s *Store) Set(_ context.Context, op, question, result string) {
	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(cacheKey(op, question), []byte(result)).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		s.logger.Debug("cache write failed", slog.String("op", op), slog.String("error", err.Error()))
	}
}

// cacheKey hashes the question so arbitrary user text never shapes the key.
func cacheKey(op, question string) []byte {
	sum := sha256.Sum256([]byte(question))
	return []byte("res:" + op + ":" + hex.EncodeToString(sum[:]))
}
