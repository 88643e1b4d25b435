package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glebk/weather-bot/internal/domain"
)

// SessionRepository implements domain.SessionRepository using SQLite
type SessionRepository struct {
	db  *Database
	mu  sync.Mutex // serializes writers
	now func() time.Time
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *Database) *SessionRepository {
	return &SessionRepository{db: db, now: time.Now}
}

// Get retrieves a session by user ID, creating the default session on first contact
func (r *SessionRepository) Get(ctx context.Context, userID int64) (*domain.Session, error) {
	session, err := r.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	query := `
		INSERT INTO sessions (user_id, notifications_enabled, created_at, updated_at)
		VALUES (?, 0, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`
	if _, err := r.db.GetDB().ExecContext(ctx, query, userID, now, now); err != nil {
		return nil, persistErr("failed to create session", err)
	}

	session, err = r.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, persistErr("failed to create session", fmt.Errorf("session %d missing after insert", userID))
	}
	return session, nil
}

// SetLocation stores the user's last shared location
func (r *SessionRepository) SetLocation(ctx context.Context, userID int64, location domain.Coordinate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
		INSERT INTO sessions (user_id, lat, lon, notifications_enabled, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET lat = excluded.lat, lon = excluded.lon, updated_at = excluded.updated_at
	`

	now := r.now()
	if _, err := r.db.GetDB().ExecContext(ctx, query, userID, location.Lat, location.Lon, now, now); err != nil {
		return persistErr("failed to set location", err)
	}
	return nil
}

// SetNotifications enables or disables periodic updates for the user
func (r *SessionRepository) SetNotifications(ctx context.Context, userID int64, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
		INSERT INTO sessions (user_id, notifications_enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET notifications_enabled = excluded.notifications_enabled, updated_at = excluded.updated_at
	`

	now := r.now()
	if _, err := r.db.GetDB().ExecContext(ctx, query, userID, boolToInt(enabled), now, now); err != nil {
		return persistErr("failed to set notifications", err)
	}
	return nil
}

// ListSubscribed returns every user with notifications on and a known location
func (r *SessionRepository) ListSubscribed(ctx context.Context) ([]domain.Subscriber, error) {
	query := `
		SELECT user_id, lat, lon
		FROM sessions
		WHERE notifications_enabled = 1 AND lat IS NOT NULL AND lon IS NOT NULL
	`

	rows, err := r.db.GetDB().QueryContext(ctx, query)
	if err != nil {
		return nil, persistErr("failed to list subscribers", err)
	}
	defer rows.Close()

	var subscribers []domain.Subscriber
	for rows.Next() {
		var s domain.Subscriber
		if err := rows.Scan(&s.UserID, &s.Location.Lat, &s.Location.Lon); err != nil {
			return nil, persistErr("failed to scan subscriber", err)
		}
		subscribers = append(subscribers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("failed to list subscribers", err)
	}

	return subscribers, nil
}

func (r *SessionRepository) find(ctx context.Context, userID int64) (*domain.Session, error) {
	query := `
		SELECT user_id, lat, lon, notifications_enabled, created_at, updated_at
		FROM sessions
		WHERE user_id = ?
	`

	session := &domain.Session{}
	var lat, lon sql.NullFloat64
	var enabled int

	err := r.db.GetDB().QueryRowContext(ctx, query, userID).Scan(
		&session.UserID,
		&lat,
		&lon,
		&enabled,
		&session.CreatedAt,
		&session.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("failed to get session", err)
	}

	session.NotificationsEnabled = intToBool(enabled)
	if lat.Valid && lon.Valid {
		session.Location = &domain.Coordinate{Lat: lat.Float64, Lon: lon.Float64}
	}

	return session, nil
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}

// Helper functions
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intToBool(i int) bool {
	return i != 0
}
