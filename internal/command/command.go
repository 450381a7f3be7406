// Package command formats user intents as outbound MQTT messages. It holds no
// state; delivery is the transport's concern.
package command

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/NoahEritier/Smart-Home-IoT/internal/data"
)

var ErrInvalidTarget = errors.New("invalid command target")

// Message is an outbound publication.
type Message struct {
	Topic   string
	Payload []byte
	Retain  bool
}

type awayBody struct {
	Value bool `json:"value"`
}

type deviceBody struct {
	Value string `json:"value"`
}

// Away requests the system-wide away mode to be set to desired.
func Away(desired bool) Message {
	payload, _ := json.Marshal(awayBody{Value: desired})
	return Message{Topic: data.AwaySetTopic, Payload: payload}
}

// Device requests a device in room to be switched on or off.
func Device(room, device string, on bool) (Message, error) {
	if !data.ValidSegment(room) || !data.ValidSegment(device) {
		return Message{}, fmt.Errorf("%w: room %q device %q", ErrInvalidTarget, room, device)
	}
	value := "off"
	if on {
		value = "on"
	}
	payload, _ := json.Marshal(deviceBody{Value: value})
	return Message{Topic: data.DeviceSetTopic(room, device), Payload: payload}, nil
}

type deviceStateBody struct {
	Device    string `json:"device"`
	Room      string `json:"room"`
	Active    bool   `json:"active"`
	Timestamp string `json:"timestamp"`
}

type awayStateBody struct {
	Type      string `json:"type"`
	Value     bool   `json:"value"`
	Timestamp string `json:"timestamp"`
}

// DeviceState is the retained acknowledgement of a device's on/off state.
func DeviceState(room, device string, active bool, timestamp string) (Message, error) {
	if !data.ValidSegment(room) || !data.ValidSegment(device) {
		return Message{}, fmt.Errorf("%w: room %q device %q", ErrInvalidTarget, room, device)
	}
	payload, err := json.Marshal(deviceStateBody{Device: device, Room: room, Active: active, Timestamp: timestamp})
	if err != nil {
		return Message{}, err
	}
	return Message{Topic: data.DeviceStateTopic(room, device), Payload: payload, Retain: true}, nil
}

// AwayState is the retained system-wide away flag.
func AwayState(value bool, timestamp string) Message {
	payload, _ := json.Marshal(awayStateBody{Type: "away_state", Value: value, Timestamp: timestamp})
	return Message{Topic: data.AwayStateTopic, Payload: payload, Retain: true}
}
