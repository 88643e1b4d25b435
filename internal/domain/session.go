package domain

import (
	"context"
	"time"
)

// Session holds the long-lived preferences of one chat user
type Session struct {
	UserID               int64
	Location             *Coordinate
	NotificationsEnabled bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// HasLocation reports whether the user has ever shared a location
func (s *Session) HasLocation() bool {
	return s != nil && s.Location != nil
}

// Subscriber is a user that should receive periodic weather updates
type Subscriber struct {
	UserID   int64
	Location Coordinate
}

// SessionRepository defines the interface for session storage.
// A missing session is never an error: Get creates and persists the defaults.
type SessionRepository interface {
	Get(ctx context.Context, userID int64) (*Session, error)
	SetLocation(ctx context.Context, userID int64, location Coordinate) error
	SetNotifications(ctx context.Context, userID int64, enabled bool) error
	ListSubscribed(ctx context.Context) ([]Subscriber, error)
}
