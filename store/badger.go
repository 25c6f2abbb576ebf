package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

var recordPrefix = []byte("task/")

func recordKey(taskID string) []byte {
	return append(append([]byte{}, recordPrefix...), taskID...)
}

// BadgerOptions configures the badger driver.
type BadgerOptions struct {
	Path           string
	InMemory       bool
	SyncWrites     bool
	GCInterval     time.Duration
	GCDiscardRatio float64
	Logger         *slog.Logger
}

type badgerStore struct {
	db *badger.DB
	gc *gcRunner
}

// NewBadgerStore opens a badger database and returns a Store over it. When
// GCInterval is positive and the database is on disk, value log GC runs in
// the background until Close.
func NewBadgerStore(opts BadgerOptions) (Store, error) {
	if !opts.InMemory && opts.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", opts.Path, err)
		}
		bopts = badger.DefaultOptions(opts.Path)
	}

	bopts = bopts.WithSyncWrites(opts.SyncWrites).WithNumVersionsToKeep(1)
	if opts.Logger != nil {
		bopts = bopts.WithLogger(&badgerLogger{logger: opts.Logger})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &badgerStore{db: db}
	if opts.GCInterval > 0 && !opts.InMemory {
		s.gc = newGCRunner(db, opts.GCInterval, opts.GCDiscardRatio, opts.Logger)
		s.gc.start()
	}
	return s, nil
}

func (s *badgerStore) Save(_ context.Context, rec Record) error {
	if rec.TaskID == "" {
		return ErrEmptyTaskID
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.TaskID), data)
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, rec.TaskID, err)
	}
	return nil
}

func (s *badgerStore) Load(_ context.Context, taskID string) (Record, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(taskID))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	if err != nil {
		return Record{}, fmt.Errorf("%w: %s: %v", ErrLoadFailed, taskID, err)
	}
	return decodeRecord(taskID, data)
}

func (s *badgerStore) List(_ context.Context, limit int) ([]Record, error) {
	var records []Record
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(recordPrefix); it.ValidForPrefix(recordPrefix); it.Next() {
			item := it.Item()
			taskID := string(item.Key()[len(recordPrefix):])
			err := item.Value(func(v []byte) error {
				rec, err := decodeRecord(taskID, v)
				if err != nil {
					return err
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrLoadFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	if records == nil {
		records = []Record{}
	}
	return newestFirst(records, limit), nil
}

func (s *badgerStore) Delete(_ context.Context, taskID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(recordKey(taskID))
	})
	if err != nil {
		return fmt.Errorf("delete failed: %s: %w", taskID, err)
	}
	return nil
}

func (s *badgerStore) Close() error {
	if s.gc != nil {
		s.gc.stop()
	}
	return s.db.Close()
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// gcRunner periodically reclaims value log space.
type gcRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcRunner {
	if ratio <= 0 || ratio > 1 {
		ratio = 0.5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &gcRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (r *gcRunner) start() {
	go r.run()
}

func (r *gcRunner) stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *gcRunner) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			err := r.db.RunValueLogGC(r.ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				r.logger.Warn("badger value log GC error", slog.String("error", err.Error()))
			}
		}
	}
}
