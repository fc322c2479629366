package db

import (
	"fmt"
	"time"

	"github.com/plantops/pumpwatch/internal/model"
)

// AppendEvent inserts one event row.
func (s *Store) AppendEvent(event model.Event) error {
	_, err := s.db.Exec(
		`INSERT INTO events (ts, device_id, event, pressure, speed) VALUES (?, ?, ?, ?, ?)`,
		event.TS.UTC().Format(TSLayout),
		event.DeviceID,
		event.Kind,
		event.Pressure,
		event.Speed,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event for %s: %w", event.DeviceID, err)
	}
	return nil
}

// QueryEvents returns event rows in [from, to), ordered by timestamp.
// Device "all" (or empty) matches every device.
func (s *Store) QueryEvents(device string, from, to time.Time) ([]model.Event, error) {
	query := `SELECT ts, device_id, event, pressure, speed FROM events WHERE ts >= ? AND ts < ?`
	args := []any{from.UTC().Format(TSLayout), to.UTC().Format(TSLayout)}
	if device != "" && device != "all" {
		query += ` AND device_id = ?`
		args = append(args, device)
	}
	query += ` ORDER BY ts, id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var ev model.Event
		var ts string
		if err := rows.Scan(&ts, &ev.DeviceID, &ev.Kind, &ev.Pressure, &ev.Speed); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.TS, err = time.ParseInLocation(TSLayout, ts, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("failed to parse event timestamp %q: %w", ts, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
