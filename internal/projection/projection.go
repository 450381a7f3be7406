// Package projection derives the current state of the home from a snapshot
// of the event log. Every function is a backward scan over the snapshot, so
// "latest" always means latest in arrival order, never by payload timestamp.
package projection

import (
	"golang.org/x/exp/slices"

	"github.com/NoahEritier/Smart-Home-IoT/internal/data"
)

// Latest holds the most recent reading of each single-value sensor type.
// A nil field means no reading has arrived yet.
type Latest struct {
	Temperature *data.SensorReading `json:"temperature"`
	Humidity    *data.SensorReading `json:"humidity"`
	Power       *data.SensorReading `json:"power"`
	Co2         *data.SensorReading `json:"co2"`
}

func (l *Latest) slot(k data.Kind) **data.SensorReading {
	switch k {
	case data.KindTemperature:
		return &l.Temperature
	case data.KindHumidity:
		return &l.Humidity
	case data.KindPower:
		return &l.Power
	case data.KindCo2:
		return &l.Co2
	}
	return nil
}

func (l *Latest) complete() bool {
	return l.Temperature != nil && l.Humidity != nil && l.Power != nil && l.Co2 != nil
}

// LatestValues returns the newest temperature, humidity, power and co2
// readings. An empty room matches every room.
func LatestValues(events []data.Event, room string) Latest {
	var out Latest
	for i := len(events) - 1; i >= 0 && !out.complete(); i-- {
		ev := events[i]
		slot := out.slot(ev.Kind)
		if slot == nil || *slot != nil {
			continue
		}
		if room != "" && ev.Sensor.Location != room {
			continue
		}
		*slot = ev.Sensor
	}
	return out
}

// DeviceEntry is the newest power reading of one device, optionally overlaid
// by a retained state message that arrived after it.
type DeviceEntry struct {
	Device  string             `json:"device"`
	Reading data.DeviceReading `json:"data"`
	State   *data.DeviceState  `json:"state,omitempty"`
}

// Active reports whether the device is on, preferring a newer retained state.
func (d DeviceEntry) Active() bool {
	if d.State != nil {
		return d.State.Active
	}
	return d.Reading.Active
}

// Devices returns one entry per device that has reported power in room, most
// recently reporting device first. Devices never seen have no entry.
func Devices(events []data.Event, room string) []DeviceEntry {
	var out []DeviceEntry
	index := make(map[string]int)
	// States seen so far in the backward scan, i.e. newer than anything after.
	newerStates := make(map[string]*data.DeviceState)

	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		switch ev.Kind {
		case data.KindDeviceState:
			if room != "" && ev.State.Room != room {
				continue
			}
			key := ev.State.Room + "/" + ev.State.Device
			if _, ok := newerStates[key]; !ok {
				newerStates[key] = ev.State
			}
		case data.KindDevicePower:
			r := ev.Device
			if room != "" && r.Location != room {
				continue
			}
			key := r.Location + "/" + r.Device
			if _, seen := index[key]; seen {
				continue
			}
			index[key] = len(out)
			out = append(out, DeviceEntry{Device: r.Device, Reading: *r, State: newerStates[key]})
		}
	}
	return out
}

// Filter selects devices by their on/off state.
type Filter string

const (
	FilterActive   Filter = "active"
	FilterInactive Filter = "inactive"
	FilterAll      Filter = "all"
)

// FilterDevices returns the entries matching f. Unknown filters return all entries.
func FilterDevices(devices []DeviceEntry, f Filter) []DeviceEntry {
	if f != FilterActive && f != FilterInactive {
		return devices
	}
	out := make([]DeviceEntry, 0, len(devices))
	for _, d := range devices {
		if d.Active() == (f == FilterActive) {
			out = append(out, d)
		}
	}
	return out
}

// Away returns the most recent away flag and whether one has been seen.
func Away(events []data.Event) (value bool, known bool) {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind == data.KindAwayState {
			return events[i].Away.Value, true
		}
	}
	return false, false
}

// Series returns the readings of one sensor type in a room, oldest first.
func Series(events []data.Event, room, sensorType string) []data.SensorReading {
	var out []data.SensorReading
	for _, ev := range events {
		if !ev.Kind.IsSensor() || ev.Sensor.Type != sensorType {
			continue
		}
		if room != "" && ev.Sensor.Location != room {
			continue
		}
		out = append(out, *ev.Sensor)
	}
	return out
}

// Rooms returns the configured rooms followed by any other room seen in the
// log, in order of first appearance.
func Rooms(events []data.Event, configured []string) []string {
	out := append([]string(nil), configured...)
	for _, ev := range events {
		room := ev.Room()
		if room == "" || slices.Contains(out, room) {
			continue
		}
		out = append(out, room)
	}
	return out
}
