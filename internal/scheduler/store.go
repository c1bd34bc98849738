// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package scheduler

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/warden/internal/logging"
)

var (
	// ErrJobNotFound is returned for an unknown job name.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidSpec is returned by Register for a malformed Spec.
	ErrInvalidSpec = errors.New("invalid job spec")
)

const prefixJob = "job:"

// Result is the outcome of one job execution.
type Result string

const (
	ResultSuccess Result = "success"
	ResultRetry   Result = "retry"
	ResultFailure Result = "failure"
)

// Spec describes a unique periodic job.
type Spec struct {
	Name     string
	Interval time.Duration
	Flex     time.Duration
}

func (s Spec) validate() error {
	switch {
	case s.Name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidSpec)
	case s.Interval <= 0:
		return fmt.Errorf("%w: %s: interval must be positive", ErrInvalidSpec, s.Name)
	case s.Flex < 0 || s.Flex > s.Interval:
		return fmt.Errorf("%w: %s: flex must be within the interval", ErrInvalidSpec, s.Name)
	}
	return nil
}

// Job is the persisted state of a periodic job.
type Job struct {
	Name         string        `json:"name"`
	Interval     time.Duration `json:"interval"`
	Flex         time.Duration `json:"flex"`
	RegisteredAt time.Time     `json:"registered_at"`
	NextRun      time.Time     `json:"next_run"`
	Attempts     int           `json:"attempts"`
	LastRun      time.Time     `json:"last_run,omitempty"`
	LastRunID    string        `json:"last_run_id,omitempty"`
	LastResult   Result        `json:"last_result,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
}

// Due reports whether the job should run at now.
func (j Job) Due(now time.Time) bool {
	return !now.Before(j.NextRun)
}

// Store persists jobs in BadgerDB.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the job store in dir. Only one process can hold
// it at a time.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create job store directory: %w", err)
	}
	opts := badger.DefaultOptions(dir)
	opts.SyncWrites = true
	opts.NumVersionsToKeep = 1
	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}
	logging.Debug().Str("path", dir).Msg("job store opened")
	return &Store{db: db}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Register adds the job described by spec unless a job of that name exists,
// in which case the existing job is returned unchanged and created is false.
func (s *Store) Register(spec Spec, first time.Time, now time.Time) (job Job, created bool, err error) {
	if err := spec.validate(); err != nil {
		return Job{}, false, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		existing, err := readJob(txn, spec.Name)
		if err == nil {
			job = existing
			return nil
		}
		if !errors.Is(err, ErrJobNotFound) {
			return err
		}
		job = Job{
			Name:         spec.Name,
			Interval:     spec.Interval,
			Flex:         spec.Flex,
			RegisteredAt: now,
			NextRun:      first,
		}
		created = true
		return writeJob(txn, job)
	})
	return job, created, err
}

// Cancel removes the job.
func (s *Store) Cancel(name string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := readJob(txn, name); err != nil {
			return err
		}
		return txn.Delete(jobKey(name))
	})
}

// Get returns the job named name.
func (s *Store) Get(name string) (Job, error) {
	var job Job
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		job, err = readJob(txn, name)
		return err
	})
	return job, err
}

// Put overwrites the job record. It fails with ErrJobNotFound when the job
// was cancelled in the meantime.
func (s *Store) Put(job Job) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := readJob(txn, job.Name); err != nil {
			return err
		}
		return writeJob(txn, job)
	})
}

// List returns all jobs ordered by next run.
func (s *Store) List() ([]Job, error) {
	var jobs []Job
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixJob)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var job Job
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &job)
			}); err != nil {
				return fmt.Errorf("unmarshal job %s: %w", it.Item().Key(), err)
			}
			jobs = append(jobs, job)
		}
		return nil
	})
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].NextRun.Before(jobs[j].NextRun)
	})
	return jobs, err
}

func jobKey(name string) []byte {
	return []byte(prefixJob + name)
}

func readJob(txn *badger.Txn, name string) (Job, error) {
	item, err := txn.Get(jobKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if err != nil {
		return Job{}, fmt.Errorf("get job: %w", err)
	}
	var job Job
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &job)
	}); err != nil {
		return Job{}, fmt.Errorf("unmarshal job: %w", err)
	}
	return job, nil
}

func writeJob(txn *badger.Txn, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return txn.Set(jobKey(job.Name), data)
}
