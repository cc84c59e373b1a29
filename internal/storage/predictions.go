package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"loan-approval/internal/loan"

	"go.etcd.io/bbolt"
)

// PredictionRecord is one served prediction.
type PredictionRecord struct {
	Timestamp   time.Time      `json:"timestamp"`
	RunID       string         `json:"run_id,omitempty"`
	Model       string         `json:"model,omitempty"`
	Source      string         `json:"source"`
	Applicant   loan.Applicant `json:"applicant"`
	Prediction  int            `json:"prediction"`
	Probability *float64       `json:"probability"`
	LatencyMs   float64        `json:"latency_ms"`
}

// StorePrediction appends a prediction to the audit trail. Records sharing a
// timestamp are kept apart by the bucket sequence.
func (s *Store) StorePrediction(record PredictionRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))

		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("prediction sequence: %w", err)
		}

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal prediction: %w", err)
		}

		key := fmt.Sprintf("%s_%010d", timeKey(record.Timestamp), seq)
		return b.Put([]byte(key), data)
	})
}

// GetPredictionsInRange returns predictions with timestamps in [start, end],
// oldest first.
func (s *Store) GetPredictionsInRange(start, end time.Time) ([]PredictionRecord, error) {
	var records []PredictionRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(predictionsBucket)).Cursor()

		startKey := []byte(timeKey(start))
		// "~" sorts after every digit and the separator, so every key for end is included.
		endKey := []byte(timeKey(end) + "~")

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			var r PredictionRecord
			if err := json.Unmarshal(v, &r); err != nil {
				continue // Skip malformed records
			}
			records = append(records, r)
		}
		return nil
	})

	return records, err
}

// CountPredictions returns the number of audited predictions.
func (s *Store) CountPredictions() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(predictionsBucket)).Stats().KeyN
		return nil
	})
	return n, err
}
