// internal/simulator/signals.go
package simulator

import (
	"math"
	"math/rand"

	"golang.org/x/exp/slices"
)

// Profile is a device's power draw model: Peak watts while on, Base while
// off, on in a given cycle with probability Duty.
type Profile struct {
	ID   string  `json:"id"`
	Base float64 `json:"base"`
	Peak float64 `json:"peak"`
	Duty float64 `json:"duty"`
}

// DefaultProfiles are the devices of the demo home.
var DefaultProfiles = map[string][]Profile{
	"cocina": {
		{ID: "heladera", Base: 120, Peak: 180, Duty: 0.6},
		{ID: "microondas", Base: 0, Peak: 1100, Duty: 0.05},
		{ID: "cafetera", Base: 0, Peak: 800, Duty: 0.03},
	},
	"jardin": {
		{ID: "bomba_agua", Base: 0, Peak: 400, Duty: 0.1},
		{ID: "luces_exterior", Base: 20, Peak: 60, Duty: 0.7},
		{ID: "cortadora", Base: 0, Peak: 1200, Duty: 0.01},
	},
	"bano": {
		{ID: "calentador_agua", Base: 0, Peak: 1500, Duty: 0.15},
		{ID: "extractor", Base: 0, Peak: 60, Duty: 0.3},
		{ID: "luces", Base: 5, Peak: 25, Duty: 0.5},
	},
	"habitacion": {
		{ID: "aire_acondicionado", Base: 0, Peak: 1200, Duty: 0.2},
		{ID: "pc", Base: 40, Peak: 250, Duty: 0.5},
		{ID: "lampara", Base: 5, Peak: 20, Duty: 0.6},
	},
}

func findProfile(profiles []Profile, id string) (Profile, bool) {
	i := slices.IndexFunc(profiles, func(p Profile) bool { return p.ID == id })
	if i < 0 {
		return Profile{}, false
	}
	return profiles[i], true
}

// Generator produces noisy readings. It is not safe for concurrent use.
type Generator struct {
	rng *rand.Rand
}

func NewGenerator(rng *rand.Rand) *Generator {
	return &Generator{rng: rng}
}

func (g *Generator) gaussian(mean, stdev float64) float64 {
	return mean + stdev*g.rng.NormFloat64()
}

// dailyWave peaks mid-afternoon and bottoms out before dawn.
func dailyWave(hour float64) float64 {
	return math.Sin(2 * math.Pi / 24 * (hour - 3))
}

// Temperature in °C for a fractional hour of the day.
func (g *Generator) Temperature(hour float64) float64 {
	return round(21+3*dailyWave(hour)+g.gaussian(0, 0.4), 2)
}

// Humidity in % moves against temperature and stays within 20-90.
func (g *Generator) Humidity(hour float64) float64 {
	v := 55 - 6*dailyWave(hour) + g.gaussian(0, 1.2)
	return round(math.Min(90, math.Max(20, v)), 2)
}

// Co2 in ppm is higher in the occupied morning and evening hours.
func (g *Generator) Co2(hour int) float64 {
	base := 500.0
	if (hour >= 8 && hour <= 10) || (hour >= 19 && hour <= 22) {
		base = 900
	}
	return round(math.Max(380, base+g.gaussian(0, 80)), 0)
}

// DeviceSample is one cycle of a device.
type DeviceSample struct {
	On       bool
	Expected float64
	Value    float64
}

// Device samples p, deciding on/off by its duty cycle.
func (g *Generator) Device(p Profile) DeviceSample {
	return g.DeviceAt(p, g.rng.Float64() < p.Duty)
}

// DeviceAt samples p in a fixed state.
func (g *Generator) DeviceAt(p Profile, on bool) DeviceSample {
	expected := p.Base
	if on {
		expected = p.Peak
	}
	value := math.Max(0, expected+g.gaussian(0, math.Max(5, expected*0.05)))
	return DeviceSample{On: on, Expected: round(expected, 0), Value: round(value, 0)}
}

// Off is the sample of a device switched off by an override.
func Off() DeviceSample {
	return DeviceSample{}
}

// Leak reports whether a leak occurs this cycle.
func (g *Generator) Leak(probability float64) bool {
	return g.rng.Float64() < probability
}

func round(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}
