package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/edgewatch/fleet-core/internal/infrastructure/database"
)

// SQLiteRecorder persists accepted attendance events to the
// attendance_events table. Implements Recorder.
type SQLiteRecorder struct {
	db *database.DB
}

// NewSQLiteRecorder creates a recorder backed by an open database.
func NewSQLiteRecorder(db *database.DB) *SQLiteRecorder {
	return &SQLiteRecorder{db: db}
}

// RecordAttendance inserts one attendance event.
func (r *SQLiteRecorder) RecordAttendance(ctx context.Context, a Attendance) error {
	var lat, lon any
	if a.HasLocation {
		lat, lon = a.Latitude, a.Longitude
	}

	flagged := 0
	if a.Flagged {
		flagged = 1
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_events (id, subject_id, device_id, recorded_at, latitude, longitude, flagged, flag_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		uuid.NewString(),
		a.SubjectID,
		a.DeviceID,
		a.Timestamp.UTC().Format(time.RFC3339),
		lat,
		lon,
		flagged,
		a.FlagReason,
	)
	if err != nil {
		return fmt.Errorf("inserting attendance event: %w", err)
	}
	return nil
}
