package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	jobsBucket     = "jobs"
	metadataBucket = "metadata"
	schemaVersion  = 1
)

var (
	// ErrJobNotFound is returned when no journal entry exists for an id
	ErrJobNotFound = errors.New("job not found")
)

// BboltRepository implements Repository on a bbolt file
type BboltRepository struct {
	db *bbolt.DB
}

// NewBboltRepository creates a new bbolt repository
func NewBboltRepository(dbPath string) (*BboltRepository, error) {
	options := &bbolt.Options{
		Timeout: 1 * time.Second,
	}

	db, err := bbolt.Open(dbPath, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &BboltRepository{
		db: db,
	}

	if err := repo.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return repo, nil
}

// initialize sets up buckets and schema
func (r *BboltRepository) initialize() error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(jobsBucket))
		if err != nil {
			return fmt.Errorf("failed to create jobs bucket: %w", err)
		}

		metadataBucket, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return fmt.Errorf("failed to create metadata bucket: %w", err)
		}

		versionBytes := []byte(fmt.Sprintf("%d", schemaVersion))
		err = metadataBucket.Put([]byte("schema_version"), versionBytes)
		if err != nil {
			return fmt.Errorf("failed to store schema version: %w", err)
		}

		return nil
	})
}

// Save persists a job, replacing any earlier entry for the same id
func (r *BboltRepository) Save(job *Job) error {
	if job == nil {
		return errors.New("cannot save nil job")
	}
	if job.ID == "" {
		return errors.New("job ID cannot be empty")
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(jobsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", jobsBucket)
		}

		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}

		err = bucket.Put([]byte(job.ID), data)
		if err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}

		return nil
	})
}

// Find retrieves a job by media id
func (r *BboltRepository) Find(id string) (*Job, error) {
	if id == "" {
		return nil, errors.New("job ID cannot be empty")
	}

	var job Job
	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(jobsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", jobsBucket)
		}

		// bbolt values are only valid inside the transaction
		data := bucket.Get([]byte(id))
		if data == nil {
			return ErrJobNotFound
		}

		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("failed to unmarshal job: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &job, nil
}

// FindUnfinished returns the jobs whose phase is not terminal, in id order.
// These are runs a previous process never saw through.
func (r *BboltRepository) FindUnfinished() ([]*Job, error) {
	var jobs []*Job

	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(jobsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", jobsBucket)
		}

		c := bucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			job := &Job{}
			if err := json.Unmarshal(v, job); err != nil {
				return fmt.Errorf("failed to unmarshal job %s: %w", k, err)
			}
			if job.Phase.Terminal() {
				continue
			}
			jobs = append(jobs, job)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return jobs, nil
}

// Delete removes a job
func (r *BboltRepository) Delete(id string) error {
	if id == "" {
		return errors.New("job ID cannot be empty")
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(jobsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", jobsBucket)
		}

		if bucket.Get([]byte(id)) == nil {
			return ErrJobNotFound
		}

		return bucket.Delete([]byte(id))
	})
}

// Close closes the database
func (r *BboltRepository) Close() error {
	return r.db.Close()
}
