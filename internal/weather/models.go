package weather

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/glebk/weather-bot/internal/domain"
)

// MainBlock holds the provider's "main" measurements
type MainBlock struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	Humidity  int     `json:"humidity"`
	Pressure  int     `json:"pressure"`
}

// Condition is one entry of the provider's "weather" array
type Condition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
}

// Current is a current-weather response
type Current struct {
	Name    string            `json:"name"`
	Coord   domain.Coordinate `json:"coord"`
	Main    *MainBlock        `json:"main"`
	Weather []Condition       `json:"weather"`
	Wind    struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Clouds struct {
		All int `json:"all"`
	} `json:"clouds"`
	Sys struct {
		Country string `json:"country"`
		Sunrise int64  `json:"sunrise"`
		Sunset  int64  `json:"sunset"`
	} `json:"sys"`
}

// Description returns the first condition's text, capitalized
func (c *Current) Description() string {
	return describe(c.Weather)
}

// Sunrise returns the sunrise time, zero if unknown
func (c *Current) Sunrise() time.Time {
	return unixOrZero(c.Sys.Sunrise)
}

// Sunset returns the sunset time, zero if unknown
func (c *Current) Sunset() time.Time {
	return unixOrZero(c.Sys.Sunset)
}

// ForecastPoint is one sample of a forecast list
type ForecastPoint struct {
	Dt      int64       `json:"dt"`
	Main    MainBlock   `json:"main"`
	Weather []Condition `json:"weather"`
}

// Time returns the sample time
func (p ForecastPoint) Time() time.Time {
	return time.Unix(p.Dt, 0)
}

// Description returns the sample's condition text
func (p ForecastPoint) Description() string {
	return strings.ToLower(describe(p.Weather))
}

// Forecast is a 5 day / 3 hour or hourly forecast response
type Forecast struct {
	List []ForecastPoint `json:"list"`
	City struct {
		Name  string            `json:"name"`
		Coord domain.Coordinate `json:"coord"`
	} `json:"city"`
}

// Air is the current air pollution sample
type Air struct {
	AQI        int
	Components map[string]float64
}

// Place is a geocoding hit
type Place struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
	State   string  `json:"state"`
}

// Coordinate returns the place's location
func (p Place) Coordinate() domain.Coordinate {
	return domain.Coordinate{Lat: p.Lat, Lon: p.Lon}
}

// ParseCurrent decodes a current-weather payload
func ParseCurrent(data []byte) (*Current, error) {
	var c Current
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: current weather: %w", domain.ErrMalformedResponse, err)
	}
	if c.Main == nil || len(c.Weather) == 0 {
		return nil, fmt.Errorf("%w: current weather: missing main or weather block", domain.ErrMalformedResponse)
	}
	return &c, nil
}

// ParseForecast decodes a forecast payload
func ParseForecast(data []byte) (*Forecast, error) {
	var f Forecast
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: forecast: %w", domain.ErrMalformedResponse, err)
	}
	if f.List == nil {
		return nil, fmt.Errorf("%w: forecast: missing list", domain.ErrMalformedResponse)
	}
	return &f, nil
}

// ParseAir decodes an air pollution payload
func ParseAir(data []byte) (*Air, error) {
	var raw struct {
		List []struct {
			Main struct {
				AQI int `json:"aqi"`
			} `json:"main"`
			Components map[string]float64 `json:"components"`
		} `json:"list"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: air pollution: %w", domain.ErrMalformedResponse, err)
	}
	if len(raw.List) == 0 || raw.List[0].Components == nil {
		return nil, fmt.Errorf("%w: air pollution: empty list", domain.ErrMalformedResponse)
	}
	return &Air{AQI: raw.List[0].Main.AQI, Components: raw.List[0].Components}, nil
}

// ParsePlace decodes a geocoding payload and returns the best hit.
// An empty result set is ErrNotFound.
func ParsePlace(data []byte) (*Place, error) {
	var places []Place
	if err := json.Unmarshal(data, &places); err != nil {
		return nil, fmt.Errorf("%w: geocode: %w", domain.ErrMalformedResponse, err)
	}
	if len(places) == 0 {
		return nil, domain.ErrNotFound
	}
	return &places[0], nil
}

func describe(conds []Condition) string {
	if len(conds) == 0 {
		return ""
	}
	d := conds[0].Description
	if d == "" {
		d = conds[0].Main
	}
	if d == "" {
		return ""
	}
	return strings.ToUpper(d[:1]) + d[1:]
}

func unixOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
