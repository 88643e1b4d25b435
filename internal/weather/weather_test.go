package weather

import (
	"errors"
	"testing"
	"time"

	"github.com/glebk/weather-bot/internal/domain"
)

func TestParseCurrent(t *testing.T) {
	payload := []byte(`{
		"name": "Paris",
		"coord": {"lat": 48.8566, "lon": 2.3522},
		"main": {"temp": 18.4, "feels_like": 17.9, "humidity": 60, "pressure": 1015},
		"weather": [{"main": "Clouds", "description": "scattered clouds"}],
		"wind": {"speed": 3.6},
		"clouds": {"all": 40},
		"sys": {"country": "FR", "sunrise": 1700000000, "sunset": 1700030000}
	}`)

	c, err := ParseCurrent(payload)
	if err != nil {
		t.Fatalf("ParseCurrent() error = %v", err)
	}
	if c.Name != "Paris" || c.Main.Temp != 18.4 || c.Main.Humidity != 60 {
		t.Errorf("ParseCurrent() = %+v", c)
	}
	if got := c.Description(); got != "Scattered clouds" {
		t.Errorf("Description() = %q, want %q", got, "Scattered clouds")
	}
	if c.Sunrise().Unix() != 1700000000 {
		t.Errorf("Sunrise() = %v", c.Sunrise())
	}
}

func TestParseCurrent_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `nope`},
		{"missing main", `{"name":"X","weather":[{"description":"rain"}]}`},
		{"empty weather", `{"name":"X","main":{"temp":1},"weather":[]}`},
		{"wrong type", `{"main":"hot"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCurrent([]byte(tt.payload))
			if !errors.Is(err, domain.ErrMalformedResponse) {
				t.Errorf("ParseCurrent() error = %v, want ErrMalformedResponse", err)
			}
		})
	}
}

func TestParseForecast_MissingList(t *testing.T) {
	if _, err := ParseForecast([]byte(`{"cod":"200"}`)); !errors.Is(err, domain.ErrMalformedResponse) {
		t.Errorf("ParseForecast() error = %v, want ErrMalformedResponse", err)
	}
	f, err := ParseForecast([]byte(`{"list":[]}`))
	if err != nil {
		t.Fatalf("ParseForecast(empty list) error = %v", err)
	}
	if len(f.List) != 0 {
		t.Errorf("len(List) = %d, want 0", len(f.List))
	}
}

func TestParseAir(t *testing.T) {
	a, err := ParseAir([]byte(`{"list":[{"main":{"aqi":2},"components":{"co":201.9,"pm2_5":12.1}}]}`))
	if err != nil {
		t.Fatalf("ParseAir() error = %v", err)
	}
	if a.AQI != 2 || a.Components["pm2_5"] != 12.1 {
		t.Errorf("ParseAir() = %+v", a)
	}

	if _, err := ParseAir([]byte(`{"list":[]}`)); !errors.Is(err, domain.ErrMalformedResponse) {
		t.Errorf("ParseAir(empty) error = %v, want ErrMalformedResponse", err)
	}
}

func TestParsePlace(t *testing.T) {
	p, err := ParsePlace([]byte(`[{"name":"Paris","lat":48.8566,"lon":2.3522,"country":"FR"}]`))
	if err != nil {
		t.Fatalf("ParsePlace() error = %v", err)
	}
	if p.Coordinate() != (domain.Coordinate{Lat: 48.8566, Lon: 2.3522}) {
		t.Errorf("Coordinate() = %v", p.Coordinate())
	}

	if _, err := ParsePlace([]byte(`[]`)); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("ParsePlace([]) error = %v, want ErrNotFound", err)
	}
	if _, err := ParsePlace([]byte(`{}`)); !errors.Is(err, domain.ErrMalformedResponse) {
		t.Errorf("ParsePlace({}) error = %v, want ErrMalformedResponse", err)
	}
}

func TestBucketByDay_TwoDays(t *testing.T) {
	start := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)
	var f Forecast
	for i := 0; i < 5; i++ {
		f.List = append(f.List, ForecastPoint{
			Dt:   start.Add(time.Duration(i*3) * time.Hour).Unix(),
			Main: MainBlock{Temp: float64(i)},
		})
	}

	buckets := BucketByDay(&f, time.UTC)
	if len(buckets) != 2 {
		t.Fatalf("len(buckets) = %d, want 2", len(buckets))
	}
	want := []struct {
		date  string
		count int
	}{
		{"2024-03-10", 2},
		{"2024-03-11", 3},
	}
	for i, w := range want {
		if buckets[i].Date != w.date || len(buckets[i].Points) != w.count {
			t.Errorf("bucket %d = %s with %d points, want %s with %d", i, buckets[i].Date, len(buckets[i].Points), w.date, w.count)
		}
	}
	if got := buckets[1].MeanTemp(); got != 3 {
		t.Errorf("MeanTemp() = %v, want 3", got)
	}
}

func TestBucketByDay_UsesLocation(t *testing.T) {
	f := Forecast{List: []ForecastPoint{
		{Dt: time.Date(2024, 3, 10, 22, 0, 0, 0, time.UTC).Unix()},
		{Dt: time.Date(2024, 3, 11, 1, 0, 0, 0, time.UTC).Unix()},
	}}
	plus3 := time.FixedZone("UTC+3", 3*60*60)

	if got := len(BucketByDay(&f, time.UTC)); got != 2 {
		t.Errorf("UTC buckets = %d, want 2", got)
	}
	if got := len(BucketByDay(&f, plus3)); got != 1 {
		t.Errorf("UTC+3 buckets = %d, want 1", got)
	}
}

func TestFindDay(t *testing.T) {
	buckets := []DayBucket{{Date: "2024-03-10"}, {Date: "2024-03-11"}}
	if _, ok := FindDay(buckets, "2024-03-11"); !ok {
		t.Error("FindDay() did not find existing date")
	}
	if _, ok := FindDay(buckets, "2024-03-12"); ok {
		t.Error("FindDay() found missing date")
	}
}

func TestAnalyzeAir(t *testing.T) {
	tests := []struct {
		name        string
		components  map[string]float64
		wantOverall AirLevel
		wantWarning bool
	}{
		{"clean", map[string]float64{"so2": 1, "no2": 5, "pm10": 3, "pm2_5": 2, "o3": 30, "co": 200}, AirGood, false},
		{"band boundary is next level", map[string]float64{"pm2_5": 10}, AirFair, false},
		{"moderate", map[string]float64{"no2": 100}, AirModerate, true},
		{"worst wins", map[string]float64{"so2": 10, "pm10": 250}, AirVeryPoor, true},
		{"co poor", map[string]float64{"co": 13000}, AirPoor, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := AnalyzeAir(tt.components)
			if r.Overall != tt.wantOverall {
				t.Errorf("Overall = %v, want %v", r.Overall, tt.wantOverall)
			}
			if (r.Warning != "") != tt.wantWarning {
				t.Errorf("Warning = %q, want present=%v", r.Warning, tt.wantWarning)
			}
		})
	}
}

func TestAnalyzeAir_OtherComponentsSorted(t *testing.T) {
	r := AnalyzeAir(map[string]float64{"nh3": 1.2, "no": 0.5, "co": 100})
	if len(r.Readings) != 1 || r.Readings[0].Code != "co" {
		t.Errorf("Readings = %+v, want only co", r.Readings)
	}
	if len(r.Others) != 2 || r.Others[0].Code != "nh3" || r.Others[1].Code != "no" {
		t.Errorf("Others = %+v, want [nh3 no]", r.Others)
	}
}

func TestAirLevelString(t *testing.T) {
	if AirVeryPoor.String() != "Very poor" || AirLevel(9).String() != "Unknown" {
		t.Error("AirLevel.String() mismatch")
	}
}
