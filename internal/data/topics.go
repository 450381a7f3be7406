// internal/data/topics.go
package data

import "strings"

// Root is the first segment of every topic in the home namespace.
const Root = "home"

const (
	AwayStateTopic = Root + "/system/away/state"
	AwaySetTopic   = Root + "/system/away/set"
)

// Subscription filters used by the dashboard and the simulator's command listener.
var (
	DashboardFilters = []string{
		Root + "/+/sensor/+",
		Root + "/+/device/+/power",
		Root + "/+/device/+/state",
		Root + "/+/sensors",
		AwayStateTopic,
	}
	CommandFilters = []string{
		AwaySetTopic,
		Root + "/+/device/+/set",
	}
)

func SensorTopic(room, kind string) string {
	return Root + "/" + room + "/sensor/" + kind
}

func DevicePowerTopic(room, device string) string {
	return Root + "/" + room + "/device/" + device + "/power"
}

func DeviceStateTopic(room, device string) string {
	return Root + "/" + room + "/device/" + device + "/state"
}

func DeviceSetTopic(room, device string) string {
	return Root + "/" + room + "/device/" + device + "/set"
}

func RoomSnapshotTopic(room string) string {
	return Root + "/" + room + "/sensors"
}

// ValidSegment reports whether s can be used as a single topic level.
func ValidSegment(s string) bool {
	return s != "" && !strings.ContainsAny(s, "/+#\x00")
}

// topicShape is the parsed form of a topic in the home namespace.
type topicShape struct {
	kind   Kind // zero (KindRaw) when the shape is not recognised
	room   string
	device string
	sensor string
}

func parseTopic(topic string) topicShape {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != Root {
		return topicShape{}
	}
	if parts[1] == "system" && len(parts) == 4 && parts[2] == "away" {
		switch parts[3] {
		case "state":
			return topicShape{kind: KindAwayState}
		case "set":
			return topicShape{kind: KindAwaySet}
		}
		return topicShape{}
	}

	room := parts[1]
	switch {
	case len(parts) == 3 && parts[2] == "sensors":
		return topicShape{kind: KindRoomSnapshot, room: room}
	case len(parts) == 4 && parts[2] == "sensor":
		return topicShape{kind: SensorKind(parts[3]), room: room, sensor: parts[3]}
	case len(parts) == 5 && parts[2] == "device":
		shape := topicShape{room: room, device: parts[3]}
		switch parts[4] {
		case "power":
			shape.kind = KindDevicePower
		case "state":
			shape.kind = KindDeviceState
		case "set":
			shape.kind = KindDeviceSet
		}
		return shape
	}
	return topicShape{}
}
