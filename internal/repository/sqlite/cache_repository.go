package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/glebk/weather-bot/internal/domain"
)

// CacheRepository implements domain.CacheRepository using SQLite.
// Entries older than ttl read as absent; nothing is deleted on read.
type CacheRepository struct {
	db     *Database
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewCacheRepository creates a new CacheRepository
func NewCacheRepository(db *Database, ttl time.Duration, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRepository{db: db, ttl: ttl, logger: logger, now: time.Now}
}

// Get returns the stored payload if present and fresh
func (r *CacheRepository) Get(ctx context.Context, location domain.Coordinate, kind domain.DataKind) ([]byte, bool) {
	key := domain.CacheKey(location, kind)
	query := `SELECT fetched_at, payload FROM weather_cache WHERE cache_key = ?`

	var fetchedAt int64
	var payload []byte
	err := r.db.GetDB().QueryRowContext(ctx, query, key).Scan(&fetchedAt, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		r.logger.Warn("cache read failed",
			zap.String("key", key),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return nil, false
	}

	if r.now().Sub(time.Unix(0, fetchedAt)) >= r.ttl {
		return nil, false
	}

	if !json.Valid(payload) {
		r.logger.Warn("cache entry corrupt, ignoring",
			zap.String("key", key),
			zap.String("kind", string(kind)))
		return nil, false
	}

	return payload, true
}

// Put overwrites the entry for the coordinate and kind
func (r *CacheRepository) Put(ctx context.Context, location domain.Coordinate, kind domain.DataKind, payload []byte) error {
	query := `
		INSERT INTO weather_cache (cache_key, lat, lon, kind, fetched_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			lat = excluded.lat, lon = excluded.lon, kind = excluded.kind,
			fetched_at = excluded.fetched_at, payload = excluded.payload
	`

	_, err := r.db.GetDB().ExecContext(ctx, query,
		domain.CacheKey(location, kind),
		location.Lat,
		location.Lon,
		string(kind),
		r.now().UnixNano(),
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w: %w", domain.ErrPersistence, err)
	}

	return nil
}

// Prune deletes entries fetched more than olderThan ago and returns how many were removed
func (r *CacheRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := r.now().Add(-olderThan).UnixNano()

	result, err := r.db.GetDB().ExecContext(ctx, `DELETE FROM weather_cache WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune cache: %w: %w", domain.ErrPersistence, err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned rows: %w: %w", domain.ErrPersistence, err)
	}
	return removed, nil
}
