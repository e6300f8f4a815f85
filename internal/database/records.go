package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UserRecord represents an operator account
type UserRecord struct {
	ID           int64
	Username     string
	PasswordHash string
	FullName     string
	Rank         string
	Role         string
	CreatedAt    time.Time
}

// CameraRecord represents a camera stored in the database
type CameraRecord struct {
	ID       int64
	Name     string
	Source   string
	Location string
	Status   string
}

// SaveUser inserts a user, or updates it when the username already exists
func (d *Database) SaveUser(ctx context.Context, u *UserRecord) (int64, error) {
	if u.Role == "" {
		u.Role = "USER"
	}
	query := `INSERT INTO users (username, password_hash, full_name, rank, role)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			password_hash = excluded.password_hash,
			full_name = excluded.full_name,
			rank = excluded.rank,
			role = excluded.role
		RETURNING id`

	var id int64
	err := d.db.QueryRowContext(ctx, d.rebind(query), u.Username, u.PasswordHash, u.FullName,
		nullString(u.Rank), u.Role).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save user: %w", err)
	}
	u.ID = id
	return id, nil
}

// GetUserByUsername retrieves a user; a missing user yields (nil, nil)
func (d *Database) GetUserByUsername(ctx context.Context, username string) (*UserRecord, error) {
	query := `SELECT id, username, password_hash, full_name, rank, role FROM users WHERE username = ?`

	var (
		u    UserRecord
		rank sql.NullString
	)
	err := d.db.QueryRowContext(ctx, d.rebind(query), username).Scan(&u.ID, &u.Username, &u.PasswordHash,
		&u.FullName, &rank, &u.Role)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.Rank = rank.String
	return &u, nil
}

// SaveCamera saves or updates a camera
func (d *Database) SaveCamera(ctx context.Context, cam *CameraRecord) error {
	if cam.Status == "" {
		cam.Status = "ACTIVE"
	}
	query := `INSERT INTO cameras (id, camera_name, source, location, status)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			camera_name = excluded.camera_name,
			source = excluded.source,
			location = excluded.location,
			status = excluded.status`

	_, err := d.db.ExecContext(ctx, d.rebind(query), cam.ID, cam.Name, cam.Source, nullString(cam.Location), cam.Status)
	if err != nil {
		return fmt.Errorf("failed to save camera: %w", err)
	}
	return nil
}

// GetCamera retrieves a camera by ID; a missing camera yields (nil, nil)
func (d *Database) GetCamera(ctx context.Context, id int64) (*CameraRecord, error) {
	query := `SELECT id, camera_name, source, location, status FROM cameras WHERE id = ?`

	var (
		cam      CameraRecord
		location sql.NullString
	)
	err := d.db.QueryRowContext(ctx, d.rebind(query), id).Scan(&cam.ID, &cam.Name, &cam.Source, &location, &cam.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get camera: %w", err)
	}
	cam.Location = location.String
	return &cam, nil
}

// EnsureCamera registers a placeholder row for a camera id used before it was configured
func (d *Database) EnsureCamera(ctx context.Context, id int64, source string) (*CameraRecord, error) {
	cam, err := d.GetCamera(ctx, id)
	if err != nil || cam != nil {
		return cam, err
	}
	cam = &CameraRecord{
		ID:     id,
		Name:   fmt.Sprintf("Camera %d", id),
		Source: source,
		Status: "ACTIVE",
	}
	if err := d.SaveCamera(ctx, cam); err != nil {
		return nil, err
	}
	return cam, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
