// internal/data/models.go
package data

import (
	"fmt"
	"time"
)

// Kind discriminates the variants of Event.
type Kind int

const (
	KindRaw Kind = iota
	KindTemperature
	KindHumidity
	KindPower
	KindCo2
	KindLeak
	KindSensor // sensor type this build does not interpret
	KindDevicePower
	KindDeviceState
	KindDeviceSet
	KindAwayState
	KindAwaySet
	KindRoomSnapshot
)

var kindNames = map[Kind]string{
	KindRaw:          "raw",
	KindTemperature:  "temperature",
	KindHumidity:     "humidity",
	KindPower:        "power",
	KindCo2:          "co2",
	KindLeak:         "leak",
	KindSensor:       "sensor",
	KindDevicePower:  "device_power",
	KindDeviceState:  "device_state",
	KindDeviceSet:    "device_set",
	KindAwayState:    "away_state",
	KindAwaySet:      "away_set",
	KindRoomSnapshot: "room_snapshot",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// IsSensor reports whether the kind carries a SensorReading.
func (k Kind) IsSensor() bool {
	switch k {
	case KindTemperature, KindHumidity, KindPower, KindCo2, KindLeak, KindSensor:
		return true
	}
	return false
}

// SensorKind maps a payload "type" value to its Kind. Unknown types map to
// KindSensor so the reading is kept.
func SensorKind(t string) Kind {
	switch t {
	case "temperature":
		return KindTemperature
	case "humidity":
		return KindHumidity
	case "power":
		return KindPower
	case "co2":
		return KindCo2
	case "leak":
		return KindLeak
	}
	return KindSensor
}

// SensorReading is a single metric published on home/<room>/sensor/<kind>.
type SensorReading struct {
	DeviceID  string    `json:"deviceId"`
	Type      string    `json:"type"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
	Time      time.Time `json:"-"`
	Location  string    `json:"location"`
}

// DeviceReading is a per-device power sample.
type DeviceReading struct {
	DeviceID  string    `json:"deviceId"`
	Type      string    `json:"type"`
	Value     float64   `json:"value"`
	Expected  *float64  `json:"expected,omitempty"` // nil when the publisher sent no baseline
	Active    bool      `json:"active"`
	Unit      string    `json:"unit,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
	Time      time.Time `json:"-"`
	Location  string    `json:"location"`
	Device    string    `json:"device"`
}

// DeviceState is the retained on/off state of a device.
type DeviceState struct {
	Device    string    `json:"device"`
	Room      string    `json:"room"`
	Active    bool      `json:"active"`
	Timestamp string    `json:"timestamp,omitempty"`
	Time      time.Time `json:"-"`
}

// DeviceCommand is a request to switch a device, received on .../set.
type DeviceCommand struct {
	Room   string `json:"room"`
	Device string `json:"device"`
	On     bool   `json:"on"`
}

// AwayState is the system-wide away flag. It is used both for the retained
// state topic and for set requests.
type AwayState struct {
	Value     bool      `json:"value"`
	Timestamp string    `json:"timestamp,omitempty"`
	Time      time.Time `json:"-"`
}

// RoomSnapshot is the optional consolidated per-room publication.
type RoomSnapshot struct {
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Co2         float64   `json:"co2"`
	Power       float64   `json:"power"`
	Timestamp   string    `json:"timestamp,omitempty"`
	Time        time.Time `json:"-"`
	Location    string    `json:"location"`
}

// RawMessage keeps a message the decoder could not interpret.
type RawMessage struct {
	Topic string `json:"topic"`
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Event is a decoded MQTT message. Exactly one payload pointer matching Kind
// is set.
type Event struct {
	Kind     Kind           `json:"kind"`
	Topic    string         `json:"topic"`
	Sensor   *SensorReading `json:"sensor,omitempty"`
	Device   *DeviceReading `json:"device,omitempty"`
	State    *DeviceState   `json:"state,omitempty"`
	Command  *DeviceCommand `json:"command,omitempty"`
	Away     *AwayState     `json:"away,omitempty"`
	Snapshot *RoomSnapshot  `json:"snapshot,omitempty"`
	Raw      *RawMessage    `json:"raw,omitempty"`
}

// Room returns the room the event belongs to, or "" for system and raw events.
func (e Event) Room() string {
	switch e.Kind {
	case KindTemperature, KindHumidity, KindPower, KindCo2, KindLeak, KindSensor:
		return e.Sensor.Location
	case KindDevicePower:
		return e.Device.Location
	case KindDeviceState:
		return e.State.Room
	case KindDeviceSet:
		return e.Command.Room
	case KindRoomSnapshot:
		return e.Snapshot.Location
	case KindAwayState, KindAwaySet, KindRaw:
		return ""
	}
	return ""
}
