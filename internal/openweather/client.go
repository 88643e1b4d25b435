package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/glebk/weather-bot/internal/domain"
	"github.com/glebk/weather-bot/internal/observability"
)

const maxBodyBytes = 4 << 20

// Options configures the OpenWeatherMap client
type Options struct {
	APIKey     string
	BaseURL    string
	ProBaseURL string
	Lang       string

	Timeout        time.Duration
	Retries        int
	RetryDelay     time.Duration
	RetryMaxDelay  time.Duration
	RateRPS        float64
	RateBurst      int
	BreakerTimeout time.Duration

	HTTPClient *http.Client
}

// Client fetches raw JSON payloads from OpenWeatherMap. Every call goes
// through a client-side rate limiter, a circuit breaker and a bounded retry
// loop. Returned errors always wrap one of the domain sentinels.
type Client struct {
	opts    Options
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewClient creates a new Client
func NewClient(opts Options, logger *zap.Logger) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("openweather: API key is required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil || opts.BaseURL == "" {
		return nil, fmt.Errorf("openweather: invalid base URL %q", opts.BaseURL)
	}
	if opts.ProBaseURL == "" {
		opts.ProBaseURL = opts.BaseURL
	}
	if opts.Lang == "" {
		opts.Lang = "en"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	if opts.RetryMaxDelay <= 0 {
		opts.RetryMaxDelay = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if opts.RateRPS > 0 {
		limit = rate.Limit(opts.RateRPS)
	}
	burst := opts.RateBurst
	if burst < 1 {
		burst = 1
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweather",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("client", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Client{
		opts:    opts,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
		breaker: breaker,
		logger:  logger,
	}, nil
}

// CurrentByCoordinate fetches current conditions
func (c *Client) CurrentByCoordinate(ctx context.Context, loc domain.Coordinate) ([]byte, error) {
	return c.get(ctx, "weather", c.opts.BaseURL, "/data/2.5/weather", c.pointParams(loc, true))
}

// Forecast fetches the 5 day / 3 hour forecast
func (c *Client) Forecast(ctx context.Context, loc domain.Coordinate) ([]byte, error) {
	return c.get(ctx, "forecast", c.opts.BaseURL, "/data/2.5/forecast", c.pointParams(loc, true))
}

// Hourly fetches the hourly forecast from the pro host
func (c *Client) Hourly(ctx context.Context, loc domain.Coordinate) ([]byte, error) {
	return c.get(ctx, "hourly", c.opts.ProBaseURL, "/data/2.5/forecast/hourly", c.pointParams(loc, true))
}

// AirPollution fetches current air pollution components
func (c *Client) AirPollution(ctx context.Context, loc domain.Coordinate) ([]byte, error) {
	return c.get(ctx, "air_pollution", c.opts.BaseURL, "/data/2.5/air_pollution", c.pointParams(loc, false))
}

// Geocode resolves a free-text city name. An empty result array is returned
// as-is; interpreting it is up to the caller.
func (c *Client) Geocode(ctx context.Context, name string) ([]byte, error) {
	params := url.Values{}
	params.Set("q", name)
	params.Set("limit", "1")
	return c.get(ctx, "geocode", c.opts.BaseURL, "/geo/1.0/direct", params)
}

func (c *Client) pointParams(loc domain.Coordinate, localized bool) url.Values {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(loc.Lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(loc.Lon, 'f', -1, 64))
	if localized {
		params.Set("units", "metric")
		params.Set("lang", c.opts.Lang)
	}
	return params
}

func (c *Client) get(ctx context.Context, endpoint, base, path string, params url.Values) ([]byte, error) {
	// Answers the provider gave on purpose (404, bad JSON) are not failures
	// of the provider, so they must not count towards tripping the breaker.
	var answered error
	out, err := c.breaker.Execute(func() (interface{}, error) {
		body, err := c.getWithRetry(ctx, endpoint, base, path, params)
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrMalformedResponse) {
			answered = err
			return nil, nil
		}
		return body, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "breaker_open").Inc()
		return nil, fmt.Errorf("%s: %w: %w", endpoint, domain.ErrUpstreamUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	if answered != nil {
		return nil, answered
	}
	return out.([]byte), nil
}

func (c *Client) getWithRetry(ctx context.Context, endpoint, base, path string, params url.Values) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < c.opts.Retries; attempt++ {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			c.logger.Debug("retrying weather API call",
				zap.String("endpoint", endpoint),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%s: %w: %w", endpoint, domain.ErrUpstreamUnavailable, ctx.Err())
			case <-time.After(delay):
			}
		}

		body, err := c.callAPI(ctx, endpoint, base, path, params)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrUpstreamUnavailable) || ctx.Err() != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *Client) callAPI(ctx context.Context, endpoint, base, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
		return nil, fmt.Errorf("%s: %w: rate limiter: %w", endpoint, domain.ErrUpstreamUnavailable, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("appid", c.opts.APIKey)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, base+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: build request: %w", endpoint, domain.ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	observability.WeatherAPIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		c.logger.Warn("weather API request failed",
			zap.String("endpoint", endpoint),
			zap.Error(err))
		return nil, fmt.Errorf("%s: %w: %w", endpoint, domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, statusLabel(resp.StatusCode)).Inc()

	if err := c.handleErrorResponse(endpoint, resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: read response body: %w", endpoint, domain.ErrUpstreamUnavailable, err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%s: %w: body is not JSON", endpoint, domain.ErrMalformedResponse)
	}
	return body, nil
}

func (c *Client) handleErrorResponse(endpoint string, resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", endpoint, domain.ErrNotFound)
	case resp.StatusCode == http.StatusUnauthorized:
		c.logger.Error("weather API rejected the API key", zap.String("endpoint", endpoint))
		return fmt.Errorf("%s: %w: HTTP %d", endpoint, domain.ErrUpstreamUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%s: %w: HTTP %d", endpoint, domain.ErrUpstreamUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.opts.RetryDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.opts.RetryMaxDelay) {
		delay = float64(c.opts.RetryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == http.StatusNotFound:
		return "not_found"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	}
	return "error"
}
