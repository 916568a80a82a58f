package jobstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/raphaelgruber/docingest/internal/models"
)

const (
	jobKeyPrefix     = "job:"
	jobCreatedPrefix = "jobc:"

	// Optimistic transactions are retried this many times on conflict.
	maxConflictRetries = 5
)

// BadgerStore persists jobs in an embedded BadgerDB. Each job is one JSON
// value under job:<id>; a big-endian creation-time index under jobc: keeps
// recent listings ordered without a full scan.
type BadgerStore struct {
	// mu serializes writers from this process; conflict retries cover the rest.
	mu     sync.Mutex
	db     *badger.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ Store = (*BadgerStore)(nil)

type badgerLogger struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(msg string, items ...any)   { l.logger.Error(fmt.Sprintf(msg, items...)) }
func (l *badgerLogger) Warningf(msg string, items ...any) { l.logger.Warn(fmt.Sprintf(msg, items...)) }
func (l *badgerLogger) Infof(msg string, items ...any)    { l.logger.Debug(fmt.Sprintf(msg, items...)) }
func (l *badgerLogger) Debugf(msg string, items ...any)   { l.logger.Debug(fmt.Sprintf(msg, items...)) }

// OpenBadgerStore opens (or creates) a badger database at dir. With inMemory
// set, dir is ignored and nothing touches the disk.
func OpenBadgerStore(dir string, inMemory bool, logger *slog.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "jobstore.badger")

	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create badger dir: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &badgerLogger{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db, logger: logger, now: time.Now}, nil
}

// Close flushes and closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func jobKey(id string) []byte {
	return []byte(jobKeyPrefix + id)
}

// createdKey is jobc:<unix micros, big endian><id> so lexicographic order
// equals creation order.
func createdKey(createdAt time.Time, id string) []byte {
	buf := make([]byte, len(jobCreatedPrefix)+8+len(id))
	n := copy(buf, jobCreatedPrefix)
	binary.BigEndian.PutUint64(buf[n:], uint64(createdAt.UnixMicro()))
	copy(buf[n+8:], id)
	return buf
}

func readJob(txn *badger.Txn, id string) (*models.Job, error) {
	item, err := txn.Get(jobKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var job models.Job
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &job)
	}); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

func writeJob(txn *badger.Txn, job *models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	return txn.Set(jobKey(job.ID), data)
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	for range maxConflictRetries {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.logger.Debug("transaction conflict, retrying")
	}
	return err
}

func (s *BadgerStore) Create(ctx context.Context, job *models.Job) error {
	job = stamp(job, s.now())
	return s.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(jobKey(job.ID)); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, job.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := writeJob(txn, job); err != nil {
			return err
		}
		return txn.Set(createdKey(job.CreatedAt, job.ID), []byte(job.ID))
	})
}

func (s *BadgerStore) Get(_ context.Context, id string) (*models.Job, error) {
	var job *models.Job
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		job, err = readJob(txn, id)
		return err
	})
	return job, err
}

func (s *BadgerStore) Update(ctx context.Context, id string, u models.JobUpdate) (*models.Job, error) {
	var merged *models.Job
	err := s.update(ctx, func(txn *badger.Txn) error {
		job, err := readJob(txn, id)
		if err != nil {
			return err
		}
		job.Apply(u, s.now())
		merged = job
		return writeJob(txn, job)
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// scanNewest walks the creation index from newest to oldest, calling fn for
// each job until fn returns false.
func (s *BadgerStore) scanNewest(fn func(job *models.Job) bool) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(jobCreatedPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks to the last key <= seek, so step past the prefix.
		seek := append([]byte(jobCreatedPrefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(opts.Prefix); it.Next() {
			var id string
			if err := it.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}
			job, err := readJob(txn, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if !fn(job) {
				return nil
			}
		}
		return nil
	})
}

func (s *BadgerStore) ListByStatus(_ context.Context, status models.JobStatus) ([]*models.Job, error) {
	var jobs []*models.Job
	err := s.scanNewest(func(job *models.Job) bool {
		if job.Status == status {
			jobs = append(jobs, job)
		}
		return true
	})
	return jobs, err
}

func (s *BadgerStore) ListRecent(_ context.Context, limit int) ([]*models.Job, error) {
	var jobs []*models.Job
	err := s.scanNewest(func(job *models.Job) bool {
		jobs = append(jobs, job)
		return limit <= 0 || len(jobs) < limit
	})
	return jobs, err
}
