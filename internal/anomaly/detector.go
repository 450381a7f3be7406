// internal/anomaly/detector.go
package anomaly

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/NoahEritier/Smart-Home-IoT/internal/config"
	"github.com/NoahEritier/Smart-Home-IoT/internal/data"
	"github.com/NoahEritier/Smart-Home-IoT/internal/projection"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelAlert Level = "alert"
)

// Rule identifiers, used in alert keys.
const (
	RulePower          = "power_total"
	RuleTemperature    = "temperature_range"
	RuleHumidity       = "humidity_range"
	RuleCo2            = "co2_max"
	RuleDeviceOverDraw = "device_over_expected"
	RuleDeviceZeroDraw = "device_zero_draw"
)

// Alert is an advisory derived from the latest readings. Key identifies the
// underlying condition (rule, room and device) independently of Message.
type Alert struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
	Key     string `json:"key"`
	Rule    string `json:"rule"`
	Room    string `json:"room"`
	Device  string `json:"device,omitempty"`
}

func newAlert(level Level, rule, room, device, msg string) Alert {
	key := rule + ":" + room
	if device != "" {
		key += ":" + device
	}
	return Alert{Level: level, Message: msg, Key: key, Rule: rule, Room: room, Device: device}
}

type Detector struct {
	rules config.Rules
}

func NewDetector(rules config.Rules) *Detector {
	return &Detector{rules: rules}
}

// Evaluate applies the rule set to a room's latest readings and devices. The
// order of the result is fixed: total power, temperature, humidity, co2, then
// each device in projection order. Rules without input are skipped.
func (d *Detector) Evaluate(latest projection.Latest, devices []projection.DeviceEntry, room string) []Alert {
	var alerts []Alert
	r := d.rules

	if p := latest.Power; p != nil && p.Value > r.PowerMax {
		where := roomOf(p.Location, room)
		alerts = append(alerts, newAlert(LevelWarn, RulePower, where, "",
			fmt.Sprintf("High total consumption in %s: %s W (> %s W)", where, fixed(p.Value, 0), fixed(r.PowerMax, 0))))
	}

	if t := latest.Temperature; t != nil && (t.Value < r.TemperatureMin || t.Value > r.TemperatureMax) {
		rec := "raise heating"
		if t.Value > r.TemperatureMax {
			rec = "lower the AC"
		}
		where := roomOf(t.Location, room)
		alerts = append(alerts, newAlert(LevelInfo, RuleTemperature, where, "",
			fmt.Sprintf("Temperature out of range in %s (%s°C). Recommendation: %s.", where, fixed(t.Value, 1), rec)))
	}

	if h := latest.Humidity; h != nil && (h.Value < r.HumidityMin || h.Value > r.HumidityMax) {
		rec := "use a humidifier"
		if h.Value > r.HumidityMax {
			rec = "use a dehumidifier"
		}
		where := roomOf(h.Location, room)
		alerts = append(alerts, newAlert(LevelInfo, RuleHumidity, where, "",
			fmt.Sprintf("Humidity out of range in %s (%s%%). Recommendation: %s.", where, fixed(h.Value, 1), rec)))
	}

	if c := latest.Co2; c != nil && c.Value > r.Co2Max {
		where := roomOf(c.Location, room)
		alerts = append(alerts, newAlert(LevelAlert, RuleCo2, where, "",
			fmt.Sprintf("Poor air quality in %s (CO₂ %s ppm). Recommendation: ventilate the room.", where, plain(c.Value))))
	}

	for _, dev := range devices {
		reading := dev.Reading
		if reading.Expected == nil {
			continue
		}
		expected := *reading.Expected
		where := roomOf(reading.Location, room)
		if reading.Value > expected*(1+r.DeviceOverRatio) {
			alerts = append(alerts, newAlert(LevelWarn, RuleDeviceOverDraw, where, dev.Device,
				fmt.Sprintf("Device %s in %s is consuming more than expected (%sW vs %sW).", dev.Device, where, plain(reading.Value), plain(expected))))
		}
		if expected > r.DeviceExpectedMin && reading.Value < r.DeviceZeroMax {
			alerts = append(alerts, newAlert(LevelError, RuleDeviceZeroDraw, where, dev.Device,
				fmt.Sprintf("Possible anomaly in %s (%s): zero draw while expected active.", dev.Device, where)))
		}
	}

	return alerts
}

// LeakStatus reports water leaks seen anywhere in the log.
type LeakStatus struct {
	Active bool     `json:"active"`
	Rooms  []string `json:"rooms"`
}

const maxLeakRooms = 5

// DetectLeaks scans the whole log for leak events with a truthy value. Rooms
// lists up to five distinct rooms with a leak, most recent first.
func DetectLeaks(events []data.Event) LeakStatus {
	status := LeakStatus{Rooms: []string{}}
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if ev.Kind != data.KindLeak || ev.Sensor.Value == 0 {
			continue
		}
		status.Active = true
		if len(status.Rooms) == maxLeakRooms {
			break
		}
		if !slices.Contains(status.Rooms, ev.Sensor.Location) {
			status.Rooms = append(status.Rooms, ev.Sensor.Location)
		}
	}
	return status
}

func roomOf(location, room string) string {
	if location != "" {
		return location
	}
	return room
}

// fixed formats v with the given decimals, rounding the exact binary value.
// A value exactly halfway rounds away from zero, so 30.15 renders as 30.1
// but 2.5 renders as 3.
func fixed(v float64, decimals int) string {
	s := strconv.FormatFloat(v, 'f', decimals, 64)
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return s
	}
	scaled := new(big.Float).SetPrec(256).SetFloat64(math.Abs(v))
	scaled.Mul(scaled, new(big.Float).SetPrec(256).SetFloat64(math.Pow(10, float64(decimals))))
	whole, _ := scaled.Int(nil)
	frac := new(big.Float).SetPrec(256).Sub(scaled, new(big.Float).SetInt(whole))
	if frac.Cmp(big.NewFloat(0.5)) != 0 {
		return s
	}
	digits := whole.Add(whole, big.NewInt(1)).String()
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}
	if decimals > 0 {
		digits = digits[:len(digits)-decimals] + "." + digits[len(digits)-decimals:]
	}
	if v < 0 {
		digits = "-" + digits
	}
	return digits
}

// plain formats v with the precision it was received with.
func plain(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
