// internal/data/parser.go
package data

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/relvacode/iso8601"
)

// Decode turns a raw MQTT message into an Event. It never fails: payloads it
// cannot interpret come back as a KindRaw event carrying the topic and text.
func Decode(topic string, payload []byte) Event {
	shape := parseTopic(topic)

	if !utf8.Valid(payload) {
		return rawEvent(topic, payload, "payload is not valid UTF-8")
	}

	var generic interface{}
	if err := json.Unmarshal(payload, &generic); err != nil {
		// Command topics also accept a bare on/off/true/false body.
		if ev, ok := decodeScalarCommand(topic, shape, strings.TrimSpace(string(payload))); ok {
			return ev
		}
		return rawEvent(topic, payload, err.Error())
	}

	fields, ok := generic.(map[string]interface{})
	if !ok {
		if ev, ok := decodeScalarCommand(topic, shape, generic); ok {
			return ev
		}
		return rawEvent(topic, payload, "payload is not a JSON object")
	}

	kind := shape.kind
	if t, ok := fields["type"].(string); ok && t != "" {
		switch t {
		case "device_power":
			kind = KindDevicePower
		case "away_state":
			kind = KindAwayState
		default:
			if kind == KindRaw || kind.IsSensor() {
				kind = SensorKind(t)
			}
		}
	}

	var err error
	ev := Event{Kind: kind, Topic: topic}
	switch kind {
	case KindTemperature, KindHumidity, KindPower, KindCo2, KindLeak, KindSensor:
		ev.Sensor, err = decodeSensor(fields, shape)
	case KindDevicePower:
		ev.Device, err = decodeDevicePower(fields, shape)
	case KindDeviceState:
		ev.State, err = decodeDeviceState(fields, shape)
	case KindDeviceSet:
		ev.Command, err = decodeDeviceCommand(fields["value"], shape)
	case KindAwayState, KindAwaySet:
		ev.Away, err = decodeAway(fields)
	case KindRoomSnapshot:
		ev.Snapshot, err = decodeSnapshot(fields, shape)
	case KindRaw:
		err = fmt.Errorf("unrecognised topic %q", topic)
	}
	if err != nil {
		return rawEvent(topic, payload, err.Error())
	}
	return ev
}

func rawEvent(topic string, payload []byte, reason string) Event {
	return Event{
		Kind:  KindRaw,
		Topic: topic,
		Raw:   &RawMessage{Topic: topic, Text: string(payload), Error: reason},
	}
}

func decodeScalarCommand(topic string, shape topicShape, v interface{}) (Event, bool) {
	switch shape.kind {
	case KindAwaySet:
		on, ok := Truthy(v)
		if !ok {
			return Event{}, false
		}
		return Event{Kind: KindAwaySet, Topic: topic, Away: &AwayState{Value: on}}, true
	case KindDeviceSet:
		cmd, err := decodeDeviceCommand(v, shape)
		if err != nil {
			return Event{}, false
		}
		return Event{Kind: KindDeviceSet, Topic: topic, Command: cmd}, true
	}
	return Event{}, false
}

func decodeSensor(fields map[string]interface{}, shape topicShape) (*SensorReading, error) {
	sensorType := stringField(fields, "type")
	if sensorType == "" {
		sensorType = shape.sensor
	}
	value, ok := sensorValue(sensorType, fields["value"])
	if !ok {
		return nil, fmt.Errorf("sensor payload has no numeric value")
	}
	r := &SensorReading{
		DeviceID:  stringField(fields, "deviceId"),
		Type:      sensorType,
		Value:     value,
		Unit:      stringField(fields, "unit"),
		Timestamp: stringField(fields, "timestamp"),
		Location:  stringField(fields, "location"),
	}
	if r.Location == "" {
		r.Location = shape.room
	}
	r.Time = parseTime(r.Timestamp)
	return r, nil
}

// sensorValue reads a sensor value. Leak sensors also report "true"/"false".
func sensorValue(sensorType string, v interface{}) (float64, bool) {
	if SensorKind(sensorType) == KindLeak {
		if b, ok := Truthy(v); ok {
			if b {
				return 1, true
			}
			return 0, true
		}
	}
	return Number(v)
}

func decodeDevicePower(fields map[string]interface{}, shape topicShape) (*DeviceReading, error) {
	value, ok := Number(fields["value"])
	if !ok {
		return nil, fmt.Errorf("device payload has no numeric value")
	}
	r := &DeviceReading{
		DeviceID:  stringField(fields, "deviceId"),
		Type:      "device_power",
		Value:     value,
		Unit:      stringField(fields, "unit"),
		Timestamp: stringField(fields, "timestamp"),
		Location:  stringField(fields, "location"),
		Device:    stringField(fields, "device"),
	}
	if expected, ok := fields["expected"].(float64); ok {
		r.Expected = &expected
	}
	if active, ok := Truthy(fields["active"]); ok {
		r.Active = active
	}
	if r.Location == "" {
		r.Location = shape.room
	}
	if r.Device == "" {
		r.Device = shape.device
	}
	if r.Device == "" {
		return nil, fmt.Errorf("device payload has no device id")
	}
	r.Time = parseTime(r.Timestamp)
	return r, nil
}

func decodeDeviceState(fields map[string]interface{}, shape topicShape) (*DeviceState, error) {
	active, ok := Truthy(fields["active"])
	if !ok {
		return nil, fmt.Errorf("device state payload has no active flag")
	}
	s := &DeviceState{
		Device:    stringField(fields, "device"),
		Room:      stringField(fields, "room"),
		Active:    active,
		Timestamp: stringField(fields, "timestamp"),
	}
	if s.Device == "" {
		s.Device = shape.device
	}
	if s.Room == "" {
		s.Room = shape.room
	}
	s.Time = parseTime(s.Timestamp)
	return s, nil
}

func decodeDeviceCommand(v interface{}, shape topicShape) (*DeviceCommand, error) {
	on, ok := Truthy(v)
	if !ok {
		return nil, fmt.Errorf("device command value %v is not on/off", v)
	}
	return &DeviceCommand{Room: shape.room, Device: shape.device, On: on}, nil
}

func decodeAway(fields map[string]interface{}) (*AwayState, error) {
	value, ok := Truthy(fields["value"])
	if !ok {
		return nil, fmt.Errorf("away payload has no boolean value")
	}
	a := &AwayState{Value: value, Timestamp: stringField(fields, "timestamp")}
	a.Time = parseTime(a.Timestamp)
	return a, nil
}

func decodeSnapshot(fields map[string]interface{}, shape topicShape) (*RoomSnapshot, error) {
	s := &RoomSnapshot{
		Timestamp: stringField(fields, "timestamp"),
		Location:  stringField(fields, "location"),
	}
	s.Temperature, _ = Number(fields["temperature"])
	s.Humidity, _ = Number(fields["humidity"])
	s.Co2, _ = Number(fields["co2"])
	s.Power, _ = Number(fields["power"])
	if s.Location == "" {
		s.Location = shape.room
	}
	s.Time = parseTime(s.Timestamp)
	return s, nil
}

// Number converts a decoded JSON value to float64. Booleans count as 1 and 0.
func Number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// Truthy interprets the boolean-ish values used on command and state topics.
func Truthy(v interface{}) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case float64:
		return b != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "on", "1", "yes":
			return true, true
		case "false", "off", "0", "no":
			return false, true
		}
	}
	return false, false
}

func stringField(fields map[string]interface{}, key string) string {
	s, _ := fields[key].(string)
	return s
}

func parseTime(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	t, err := iso8601.ParseString(ts)
	if err != nil {
		return time.Time{}
	}
	return t
}
