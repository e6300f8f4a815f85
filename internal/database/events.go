package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// File type tags stored in event_files.file_type
const (
	FileTypeVideoRGB  = "video_rgb"
	FileTypeVideoTIR  = "video_tid"
	FileTypeThumbnail = "thumbnail"

	DefaultThumbnail = "default_thumbnail.jpg"
)

// DetectionEventRecord is one persisted detection event
type DetectionEventRecord struct {
	ID             int64
	Timestamp      time.Time
	CameraID       int64
	DetectedObject string
	Confidence     float64
	UserIDOnDuty   *int64
}

// EventView is the client-facing representation of an event
type EventView struct {
	ID             int64  `json:"id"`
	Timestamp      string `json:"timestamp"`
	CameraID       int64  `json:"camera_id"`
	CameraName     string `json:"camera_name"`
	Location       string `json:"location"`
	DetectedObject string `json:"detected_object"`
	Confidence     string `json:"confidence"`
	UserName       string `json:"user_name"`
	ThumbnailPath  string `json:"thumbnail_path"`
	VideoPathRGB   string `json:"video_path_rgb"`
	VideoPathTIR   string `json:"video_path_tid"`
}

// CreateEvent inserts a detection event and returns its id
func (d *Database) CreateEvent(ctx context.Context, ev *DetectionEventRecord) (int64, error) {
	query := `INSERT INTO detection_events (timestamp, camera_id, detected_object, confidence, user_id_on_duty)
		VALUES (?, ?, ?, ?, ?) RETURNING id`

	var userID sql.NullInt64
	if ev.UserIDOnDuty != nil {
		userID = sql.NullInt64{Int64: *ev.UserIDOnDuty, Valid: true}
	}

	var id int64
	err := d.db.QueryRowContext(ctx, d.rebind(query),
		ev.Timestamp.UTC(), ev.CameraID, ev.DetectedObject, ev.Confidence, userID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save detection event: %w", err)
	}
	ev.ID = id
	return id, nil
}

// AddEventFile attaches a file reference to an event
func (d *Database) AddEventFile(ctx context.Context, eventID int64, fileType, path string) error {
	query := `INSERT INTO event_files (event_id, file_type, file_path) VALUES (?, ?, ?)`
	if _, err := d.db.ExecContext(ctx, d.rebind(query), eventID, fileType, path); err != nil {
		return fmt.Errorf("failed to save event file: %w", err)
	}
	return nil
}

// UpdateEventFilePath replaces the path of an event's file of the given type
func (d *Database) UpdateEventFilePath(ctx context.Context, eventID int64, fileType, path string) error {
	query := `UPDATE event_files SET file_path = ? WHERE event_id = ? AND file_type = ?`
	res, err := d.db.ExecContext(ctx, d.rebind(query), path, eventID, fileType)
	if err != nil {
		return fmt.Errorf("failed to update event file: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("no %s file for event %d", fileType, eventID)
	}
	return nil
}

// GetEventView retrieves an event joined with its camera, operator and files.
// A missing event yields (nil, nil).
func (d *Database) GetEventView(ctx context.Context, id int64) (*EventView, error) {
	query := `SELECT e.id, e.timestamp, e.camera_id, c.camera_name, c.location,
			e.detected_object, e.confidence, u.full_name
		FROM detection_events e
		LEFT JOIN cameras c ON c.id = e.camera_id
		LEFT JOIN users u ON u.id = e.user_id_on_duty
		WHERE e.id = ?`

	var (
		view       EventView
		ts         time.Time
		confidence float64
		cameraName sql.NullString
		location   sql.NullString
		fullName   sql.NullString
	)
	err := d.db.QueryRowContext(ctx, d.rebind(query), id).Scan(&view.ID, &ts, &view.CameraID,
		&cameraName, &location, &view.DetectedObject, &confidence, &fullName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get detection event: %w", err)
	}

	view.Timestamp = ts.UTC().Format("2006-01-02T15:04:05.999999") + "Z"
	view.Confidence = fmt.Sprintf("%.2f", confidence)
	view.CameraName, view.Location = "N/A", "N/A"
	if cameraName.Valid {
		view.CameraName = cameraName.String
		view.Location = location.String
	}
	view.UserName = "N/A"
	if fullName.Valid {
		view.UserName = fullName.String
	}

	files, err := d.eventFiles(ctx, id)
	if err != nil {
		return nil, err
	}
	view.ThumbnailPath = DefaultThumbnail
	if p, ok := files[FileTypeThumbnail]; ok {
		view.ThumbnailPath = p
	}
	view.VideoPathRGB = files[FileTypeVideoRGB]
	view.VideoPathTIR = files[FileTypeVideoTIR]

	return &view, nil
}

func (d *Database) eventFiles(ctx context.Context, eventID int64) (map[string]string, error) {
	rows, err := d.db.QueryContext(ctx,
		d.rebind("SELECT file_type, file_path FROM event_files WHERE event_id = ? ORDER BY id"), eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list event files: %w", err)
	}
	defer rows.Close()

	files := make(map[string]string)
	for rows.Next() {
		var fileType, path string
		if err := rows.Scan(&fileType, &path); err != nil {
			return nil, fmt.Errorf("failed to scan event file: %w", err)
		}
		files[fileType] = path
	}
	return files, rows.Err()
}

// ListRecentEvents returns the newest events first
func (d *Database) ListRecentEvents(ctx context.Context, limit int) ([]*EventView, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.QueryContext(ctx,
		d.rebind("SELECT id FROM detection_events ORDER BY timestamp DESC, id DESC LIMIT ?"), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list detection events: %w", err)
	}

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan detection event: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()

	events := make([]*EventView, 0, len(ids))
	for _, id := range ids {
		view, err := d.GetEventView(ctx, id)
		if err != nil {
			return nil, err
		}
		if view != nil {
			events = append(events, view)
		}
	}
	return events, nil
}
