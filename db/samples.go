package db

import (
	"fmt"
	"time"

	"github.com/plantops/pumpwatch/internal/model"
)

// AppendSample inserts one sample row. Timestamps are stored as UTC text at
// second resolution.
func (s *Store) AppendSample(sample model.Sample) error {
	_, err := s.db.Exec(
		`INSERT INTO samples (ts, device_id, pressure, speed, ready, running, trip) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sample.TS.UTC().Format(TSLayout),
		sample.DeviceID,
		sample.Pressure,
		sample.Speed,
		boolToInt(sample.Ready),
		boolToInt(sample.Running),
		boolToInt(sample.Trip),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sample for %s: %w", sample.DeviceID, err)
	}
	return nil
}

// QuerySamples returns sample rows in [from, to), ordered by timestamp.
// Device "all" (or empty) matches every device.
func (s *Store) QuerySamples(device string, from, to time.Time) ([]model.Sample, error) {
	query := `SELECT ts, device_id, pressure, speed, ready, running, trip FROM samples WHERE ts >= ? AND ts < ?`
	args := []any{from.UTC().Format(TSLayout), to.UTC().Format(TSLayout)}
	if device != "" && device != "all" {
		query += ` AND device_id = ?`
		args = append(args, device)
	}
	query += ` ORDER BY ts, id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var samples []model.Sample
	for rows.Next() {
		var sm model.Sample
		var ts string
		var ready, running, trip int
		if err := rows.Scan(&ts, &sm.DeviceID, &sm.Pressure, &sm.Speed, &ready, &running, &trip); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		sm.TS, err = time.ParseInLocation(TSLayout, ts, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("failed to parse sample timestamp %q: %w", ts, err)
		}
		sm.Ready = ready != 0
		sm.Running = running != 0
		sm.Trip = trip != 0
		samples = append(samples, sm)
	}
	return samples, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
