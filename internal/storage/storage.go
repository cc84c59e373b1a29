// Package storage provides the persistent run registry for the loan approval
// service. It uses BoltDB as the underlying storage engine to keep training
// run reports and an audit trail of served predictions.
//
// Keys start with a zero-padded Unix nanosecond timestamp, so cursor order is
// time order and range queries are plain seeks.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"loan-approval/internal/ml"

	"go.etcd.io/bbolt"
)

const (
	runsBucket        = "runs"        // Bucket name for training run reports
	predictionsBucket = "predictions" // Bucket name for prediction audit records

	dbFile = "loan-registry.db"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store provides persistent storage for training runs and predictions.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New opens (or creates) the registry database under dataPath and makes sure
// every bucket exists.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}
	dbPath := filepath.Join(dataPath, dbFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(runsBucket)); err != nil {
			return fmt.Errorf("create runs bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(predictionsBucket)); err != nil {
			return fmt.Errorf("create predictions bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func timeKey(ts time.Time) string {
	return fmt.Sprintf("%020d", ts.UnixNano())
}

// StoreRun stores a training run report. The key is
// "<started_at unix nano>_<run id>".
func (s *Store) StoreRun(report *ml.TrainReport) error {
	if report == nil || report.RunID == "" {
		return errors.New("store run: report has no run id")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(runsBucket))

		data, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("marshal run: %w", err)
		}

		key := timeKey(report.StartedAt) + "_" + report.RunID
		return b.Put([]byte(key), data)
	})
}

// RecordRun lets the store serve as the trainer's run recorder.
func (s *Store) RecordRun(report *ml.TrainReport) error {
	return s.StoreRun(report)
}

// GetRun returns the run with the given ID.
func (s *Store) GetRun(runID string) (*ml.TrainReport, error) {
	var report *ml.TrainReport
	suffix := []byte("_" + runID)

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(runsBucket)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if !bytes.HasSuffix(k, suffix) {
				continue
			}
			var r ml.TrainReport
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshal run %s: %w", runID, err)
			}
			report = &r
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return report, nil
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun() (*ml.TrainReport, error) {
	runs, err := s.ListRuns(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("latest run: %w", ErrNotFound)
	}
	return &runs[0], nil
}

// ListRuns returns up to limit runs, newest first. A limit of 0 or less
// returns every run. Malformed records are skipped.
func (s *Store) ListRuns(limit int) ([]ml.TrainReport, error) {
	var runs []ml.TrainReport

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(runsBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(runs) >= limit {
				break
			}
			var r ml.TrainReport
			if err := json.Unmarshal(v, &r); err != nil {
				continue
			}
			runs = append(runs, r)
		}
		return nil
	})

	return runs, err
}
