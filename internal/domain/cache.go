package domain

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"
)

// Coordinate is a WGS84 point
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.4f,%.4f", c.Lat, c.Lon)
}

// DataKind identifies which upstream dataset a cache entry holds
type DataKind string

const (
	KindCurrentWeather DataKind = "weather"
	KindForecast5Day   DataKind = "forecast5d"
	KindHourly         DataKind = "hourly"
	KindAirPollution   DataKind = "air_pollution"
)

// CacheKey returns the deterministic key for a coordinate and kind.
// Coordinates are rounded to 4 decimal places so nearby points share an entry.
func CacheKey(c Coordinate, kind DataKind) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%.4f_%.4f_%s", c.Lat, c.Lon, kind)))
	return hex.EncodeToString(sum[:])
}

// CacheRepository defines the interface for the upstream response cache.
// Get never fails: unreadable or expired entries are reported as absent.
type CacheRepository interface {
	Get(ctx context.Context, location Coordinate, kind DataKind) ([]byte, bool)
	Put(ctx context.Context, location Coordinate, kind DataKind, payload []byte) error
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}
