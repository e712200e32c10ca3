package badger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docket/core"
	"github.com/poiesic/docket/storage"
)

// JobQueue implements storage.JobQueue for BadgerDB.
//
// Jobs are kept until completed. Claim leases the oldest job whose lease is
// free or expired, so a job held by a crashed worker is delivered again once
// its lease runs out.
type JobQueue struct {
	backend *Backend
	idSeq   *badger.Sequence
	claimMu sync.Mutex
}

var _ storage.JobQueue = (*JobQueue)(nil)

// NewJobQueue creates a new JobQueue.
func NewJobQueue(backend *Backend) (*JobQueue, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}

	idSeq, err := backend.GetSequence(jobIDSeq)
	if err != nil {
		return nil, err
	}

	return &JobQueue{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (q *JobQueue) Close() error {
	return q.idSeq.Release()
}

// Enqueue persists a job.
func (q *JobQueue) Enqueue(ctx context.Context, job *core.Job) (*core.Job, error) {
	if job == nil {
		return nil, storage.ErrInvalidQuery
	}

	err := q.backend.WithTx(func(tx *badger.Txn) error {
		id, err := nextID(q.idSeq)
		if err != nil {
			return err
		}
		job.ID = core.ID(id)
		job.EnqueuedAt = time.Now().UTC()
		job.LeasedUntil = time.Time{}
		job.Attempts = 0

		if err := tx.Set(makeJobKey(job.ID), storage.MarshalJob(job)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}

	return job, nil
}

// Claim leases the oldest available job and increments its attempt count.
func (q *JobQueue) Claim(ctx context.Context, lease time.Duration) (*core.Job, error) {
	q.claimMu.Lock()
	defer q.claimMu.Unlock()

	var claimed *core.Job
	err := q.backend.WithTx(func(tx *badger.Txn) error {
		now := time.Now().UTC()
		job, err := oldestAvailableJob(tx, now)
		if err != nil || job == nil {
			return err
		}

		job.Attempts++
		job.LeasedUntil = now.Add(lease)
		if err := tx.Set(makeJobKey(job.ID), storage.MarshalJob(job)); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		claimed = job
		return nil
	}, true)
	if err != nil {
		return nil, err
	}

	return claimed, nil
}

// Complete removes a job. Completing an unknown job is not an error.
func (q *JobQueue) Complete(ctx context.Context, id core.ID) error {
	return q.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeJobKey(id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Pending returns the number of queued jobs, leased or not.
func (q *JobQueue) Pending(ctx context.Context) (int, error) {
	keys, err := q.backend.scanKeys([]byte(jobPrefix))
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Get retrieves a queued job by ID.
func (q *JobQueue) Get(ctx context.Context, id core.ID) (*core.Job, error) {
	var job *core.Job
	err := q.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeJobKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			job, err = storage.UnmarshalJob(val)
			return err
		})
	}, false)
	return job, err
}

// oldestAvailableJob returns the first job in ID order whose lease is not
// held at now, or nil if every job is leased.
func oldestAvailableJob(tx *badger.Txn, now time.Time) (*core.Job, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(jobPrefix)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		var job *core.Job
		err := iter.Item().Value(func(val []byte) error {
			var err error
			job, err = storage.UnmarshalJob(val)
			return err
		})
		if err != nil {
			return nil, err
		}
		if !job.LeasedUntil.After(now) {
			return job, nil
		}
	}
	return nil, nil
}
