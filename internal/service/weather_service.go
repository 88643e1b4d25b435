package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/glebk/weather-bot/internal/domain"
	"github.com/glebk/weather-bot/internal/observability"
	"github.com/glebk/weather-bot/internal/weather"
)

// Provider fetches raw upstream payloads
type Provider interface {
	CurrentByCoordinate(ctx context.Context, loc domain.Coordinate) ([]byte, error)
	Forecast(ctx context.Context, loc domain.Coordinate) ([]byte, error)
	Hourly(ctx context.Context, loc domain.Coordinate) ([]byte, error)
	AirPollution(ctx context.Context, loc domain.Coordinate) ([]byte, error)
	Geocode(ctx context.Context, name string) ([]byte, error)
}

// WeatherService is the cache-aside gateway in front of the provider.
// Every returned error matches exactly one domain taxonomy sentinel.
type WeatherService struct {
	provider     Provider
	cache        domain.CacheRepository
	logger       *zap.Logger
	inflight     singleflight.Group
	fetchTimeout time.Duration
}

const defaultFetchTimeout = time.Minute

// Option configures a WeatherService
type Option func(*WeatherService)

// WithFetchTimeout bounds a shared upstream fetch. It runs detached from the
// caller that started it, so this is its only deadline.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *WeatherService) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

// NewWeatherService creates a new WeatherService
func NewWeatherService(provider Provider, cache domain.CacheRepository, logger *zap.Logger, opts ...Option) *WeatherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &WeatherService{
		provider:     provider,
		cache:        cache,
		logger:       logger,
		fetchTimeout: defaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Geocode resolves a city name to the provider's best match. Results are not cached.
func (s *WeatherService) Geocode(ctx context.Context, name string) (*weather.Place, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("geocode: %w: empty city name", domain.ErrNotFound)
	}

	body, err := s.provider.Geocode(ctx, name)
	if err != nil {
		return nil, classify("geocode "+name, err)
	}
	place, err := weather.ParsePlace(body)
	if err != nil {
		return nil, classify("geocode "+name, err)
	}
	return place, nil
}

// CurrentByCity geocodes name, then serves current weather for the resolved coordinate
func (s *WeatherService) CurrentByCity(ctx context.Context, name string) (*weather.Current, error) {
	place, err := s.Geocode(ctx, name)
	if err != nil {
		return nil, err
	}

	cur, err := s.CurrentByCoordinate(ctx, place.Coordinate())
	if err != nil {
		return nil, err
	}
	if cur.Name == "" {
		cur.Name = place.Name
	}
	return cur, nil
}

// CurrentByCoordinate returns current weather at loc
func (s *WeatherService) CurrentByCoordinate(ctx context.Context, loc domain.Coordinate) (*weather.Current, error) {
	return fetchCached(ctx, s, loc, domain.KindCurrentWeather, s.provider.CurrentByCoordinate, weather.ParseCurrent)
}

// FiveDayForecast returns the 5 day / 3 hour forecast at loc
func (s *WeatherService) FiveDayForecast(ctx context.Context, loc domain.Coordinate) (*weather.Forecast, error) {
	return fetchCached(ctx, s, loc, domain.KindForecast5Day, s.provider.Forecast, weather.ParseForecast)
}

// HourlyForecast returns the hourly forecast at loc
func (s *WeatherService) HourlyForecast(ctx context.Context, loc domain.Coordinate) (*weather.Forecast, error) {
	return fetchCached(ctx, s, loc, domain.KindHourly, s.provider.Hourly, weather.ParseForecast)
}

// AirPollution returns the current air pollution sample at loc
func (s *WeatherService) AirPollution(ctx context.Context, loc domain.Coordinate) (*weather.Air, error) {
	return fetchCached(ctx, s, loc, domain.KindAirPollution, s.provider.AirPollution, weather.ParseAir)
}

// fetchCached serves kind at loc from the cache when fresh, otherwise fetches
// once per cache key across concurrent callers and stores the raw payload.
// Only payloads that parse are stored. A failed store is logged, not returned.
func fetchCached[T any](
	ctx context.Context,
	s *WeatherService,
	loc domain.Coordinate,
	kind domain.DataKind,
	fetch func(context.Context, domain.Coordinate) ([]byte, error),
	parse func([]byte) (T, error),
) (T, error) {
	var zero T
	op := string(kind) + " " + loc.String()

	if payload, ok := s.cache.Get(ctx, loc, kind); ok {
		v, err := parse(payload)
		if err == nil {
			observability.CacheLookupsTotal.WithLabelValues(string(kind), "hit").Inc()
			return v, nil
		}
		s.logger.Warn("cached payload does not parse, refetching",
			zap.String("kind", string(kind)),
			zap.Stringer("location", loc),
			zap.Error(err))
	}
	observability.CacheLookupsTotal.WithLabelValues(string(kind), "miss").Inc()

	// The shared fetch must outlive any single caller; each caller still
	// stops waiting when its own context ends.
	results := s.inflight.DoChan(domain.CacheKey(loc, kind), func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()

		body, err := fetch(fetchCtx, loc)
		if err != nil {
			return nil, err
		}
		if _, err := parse(body); err != nil {
			return nil, err
		}
		if err := s.cache.Put(fetchCtx, loc, kind, body); err != nil {
			observability.CacheWriteErrorsTotal.Inc()
			s.logger.Warn("cache write failed",
				zap.String("kind", string(kind)),
				zap.Stringer("location", loc),
				zap.Error(err))
		}
		return body, nil
	})

	var raw interface{}
	select {
	case res := <-results:
		if res.Err != nil {
			return zero, classify(op, res.Err)
		}
		raw = res.Val
	case <-ctx.Done():
		return zero, classify(op, ctx.Err())
	}

	// Parse per caller so coalesced callers never share a mutable value.
	v, err := parse(raw.([]byte))
	if err != nil {
		return zero, classify(op, err)
	}
	return v, nil
}

func classify(op string, err error) error {
	kind := domain.Classify(err)
	if errors.Is(err, kind) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, kind, err)
}
