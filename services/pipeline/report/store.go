// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// runKeyPrefix namespaces run reports in the store.
const runKeyPrefix = "run:"

// StoreConfig configures the run report store.
type StoreConfig struct {
	// Path is the directory for the database files. Required unless
	// InMemory is set.
	Path string

	// InMemory keeps everything in RAM. Used by tests and the CLI's
	// ephemeral runs.
	InMemory bool

	// SyncWrites makes every save durable before returning.
	SyncWrites bool

	// GCInterval is how often to run value log garbage collection.
	// Zero disables it.
	GCInterval time.Duration

	// Logger receives the database's internal logging. Nil disables it.
	Logger *slog.Logger
}

// DefaultStoreConfig returns the production configuration.
func DefaultStoreConfig(path string) StoreConfig {
	return StoreConfig{
		Path:       path,
		SyncWrites: true,
		GCInterval: 5 * time.Minute,
	}
}

// InMemoryStoreConfig returns a configuration for tests.
func InMemoryStoreConfig() StoreConfig {
	return StoreConfig{InMemory: true}
}

// badgerLogger adapts slog to the database's logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store persists run reports in an embedded BadgerDB.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db     *badger.DB
	stopGC chan struct{}
	doneGC chan struct{}
}

// OpenStore opens the run report store.
//
// Description:
//
//	Opens a BadgerDB at the configured path, or in memory, and starts the
//	value log GC loop when an interval is configured. Callers own the
//	returned store and must Close it.
//
// Inputs:
//
//	cfg - Store configuration
//
// Outputs:
//
//	*Store - The opened store
//	error - ErrInvalidInput for a missing path, otherwise open errors
func OpenStore(cfg StoreConfig) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("%w: path required for a persistent store", ErrInvalidInput)
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}

	s := &Store{db: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.doneGC = make(chan struct{})
		go s.runGC(cfg.GCInterval)
	}
	return s, nil
}

// runGC periodically compacts the value log until Close.
func (s *Store) runGC(interval time.Duration) {
	defer close(s.doneGC)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			// ErrNoRewrite means nothing needed collecting.
			if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				slog.Warn("Run store GC failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Close stops the GC loop and closes the database.
func (s *Store) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.doneGC
	}
	return s.db.Close()
}

// Save persists a run report under its run id.
func (s *Store) Save(ctx context.Context, rep *RunReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rep == nil || rep.RunID == "" {
		return fmt.Errorf("%w: report must carry a run id", ErrInvalidInput)
	}

	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode run report %s: %w", rep.RunID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(runKeyPrefix+rep.RunID), data)
	})
	if err != nil {
		return fmt.Errorf("save run report %s: %w", rep.RunID, err)
	}
	return nil
}

// Get loads a run report by id. Returns ErrRunNotFound when absent.
func (s *Store) Get(ctx context.Context, runID string) (*RunReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if runID == "" {
		return nil, fmt.Errorf("%w: empty run id", ErrInvalidInput)
	}

	var rep RunReport
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(runKeyPrefix + runID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rep)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("load run report %s: %w", runID, err)
	}
	return &rep, nil
}

// List loads every stored run report, most recently started first.
func (s *Store) List(ctx context.Context) ([]*RunReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reports := make([]*RunReport, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(runKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rep RunReport
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rep)
			})
			if err != nil {
				return err
			}
			reports = append(reports, &rep)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list run reports: %w", err)
	}

	sort.Slice(reports, func(i, j int) bool {
		if !reports[i].StartedAt.Equal(reports[j].StartedAt) {
			return reports[i].StartedAt.After(reports[j].StartedAt)
		}
		return reports[i].RunID < reports[j].RunID
	})
	return reports, nil
}
