package weather

import (
	"math"
	"sort"
)

// AirLevel is a 1..5 air quality grade
type AirLevel int

const (
	AirGood AirLevel = iota + 1
	AirFair
	AirModerate
	AirPoor
	AirVeryPoor
)

func (l AirLevel) String() string {
	switch l {
	case AirGood:
		return "Good"
	case AirFair:
		return "Fair"
	case AirModerate:
		return "Moderate"
	case AirPoor:
		return "Poor"
	case AirVeryPoor:
		return "Very poor"
	default:
		return "Unknown"
	}
}

type band struct {
	upTo  float64
	level AirLevel
}

type pollutant struct {
	code  string
	name  string
	bands []band
}

// Concentrations in μg/m³; a value belongs to the first band whose upper
// bound it is below.
var pollutants = []pollutant{
	{"so2", "SO₂", []band{{20, AirGood}, {80, AirFair}, {250, AirModerate}, {350, AirPoor}, {math.Inf(1), AirVeryPoor}}},
	{"no2", "NO₂", []band{{40, AirGood}, {70, AirFair}, {150, AirModerate}, {200, AirPoor}, {math.Inf(1), AirVeryPoor}}},
	{"pm10", "PM₁₀", []band{{20, AirGood}, {50, AirFair}, {100, AirModerate}, {200, AirPoor}, {math.Inf(1), AirVeryPoor}}},
	{"pm2_5", "PM₂.₅", []band{{10, AirGood}, {25, AirFair}, {50, AirModerate}, {75, AirPoor}, {math.Inf(1), AirVeryPoor}}},
	{"o3", "O₃", []band{{60, AirGood}, {100, AirFair}, {140, AirModerate}, {180, AirPoor}, {math.Inf(1), AirVeryPoor}}},
	{"co", "CO", []band{{4400, AirGood}, {9400, AirFair}, {12400, AirModerate}, {15400, AirPoor}, {math.Inf(1), AirVeryPoor}}},
}

// Reading is a graded pollutant concentration
type Reading struct {
	Code  string
	Name  string
	Value float64
	Level AirLevel
}

// Component is an ungraded concentration
type Component struct {
	Code  string
	Value float64
}

// AirReport is the graded view of an air pollution sample
type AirReport struct {
	Overall  AirLevel
	Readings []Reading
	Others   []Component
	Warning  string
}

// AnalyzeAir grades each known pollutant and takes the worst as overall.
func AnalyzeAir(components map[string]float64) AirReport {
	report := AirReport{Overall: AirGood}
	known := make(map[string]bool, len(pollutants))

	for _, p := range pollutants {
		known[p.code] = true
		v, ok := components[p.code]
		if !ok {
			continue
		}
		level := gradeValue(v, p.bands)
		if level > report.Overall {
			report.Overall = level
		}
		report.Readings = append(report.Readings, Reading{Code: p.code, Name: p.name, Value: v, Level: level})
	}

	for code, v := range components {
		if !known[code] {
			report.Others = append(report.Others, Component{Code: code, Value: v})
		}
	}
	sort.Slice(report.Others, func(i, j int) bool { return report.Others[i].Code < report.Others[j].Code })

	switch {
	case report.Overall >= AirPoor:
		report.Warning = "High pollution level! Limit time outdoors."
	case report.Overall == AirModerate:
		report.Warning = "Moderate pollution. Sensitive people should take care."
	}
	return report
}

func gradeValue(v float64, bands []band) AirLevel {
	if v < 0 {
		return AirGood
	}
	for _, b := range bands {
		if v < b.upTo {
			return b.level
		}
	}
	return AirVeryPoor
}
