package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSensor(t *testing.T) {
	payload := []byte(`{"deviceId":"sim-cocina-temperature","type":"temperature","value":22.5,"unit":"C","timestamp":"2025-03-01T10:00:00.000Z","location":"cocina"}`)

	ev := Decode("home/cocina/sensor/temperature", payload)

	require.Equal(t, KindTemperature, ev.Kind)
	require.NotNil(t, ev.Sensor)
	assert.Equal(t, 22.5, ev.Sensor.Value)
	assert.Equal(t, "cocina", ev.Sensor.Location)
	assert.Equal(t, "C", ev.Sensor.Unit)
	assert.Equal(t, 2025, ev.Sensor.Time.Year())
	assert.Equal(t, "cocina", ev.Room())
}

func TestDecodeSensorFallsBackToTopic(t *testing.T) {
	ev := Decode("home/bano/sensor/humidity", []byte(`{"value":64}`))

	require.Equal(t, KindHumidity, ev.Kind)
	assert.Equal(t, "bano", ev.Sensor.Location)
	assert.Equal(t, "humidity", ev.Sensor.Type)
	assert.True(t, ev.Sensor.Time.IsZero())
}

func TestDecodeUnknownSensorTypeIsKept(t *testing.T) {
	ev := Decode("home/jardin/sensor/lux", []byte(`{"type":"lux","value":340,"location":"jardin"}`))

	require.Equal(t, KindSensor, ev.Kind)
	assert.Equal(t, "lux", ev.Sensor.Type)
	assert.Equal(t, 340.0, ev.Sensor.Value)
}

func TestDecodeLeakAcceptsBoolean(t *testing.T) {
	ev := Decode("home/cocina/sensor/leak", []byte(`{"type":"leak","value":true,"location":"cocina"}`))

	require.Equal(t, KindLeak, ev.Kind)
	assert.Equal(t, 1.0, ev.Sensor.Value)
}

func TestDecodeLeakAcceptsStringTrue(t *testing.T) {
	for _, value := range []string{`"true"`, `"1"`, `true`, `1`} {
		ev := Decode("home/cocina/sensor/leak", []byte(`{"type":"leak","value":`+value+`,"location":"cocina"}`))

		require.Equal(t, KindLeak, ev.Kind, value)
		assert.Equal(t, 1.0, ev.Sensor.Value, value)
	}

	ev := Decode("home/cocina/sensor/leak", []byte(`{"type":"leak","value":"false"}`))
	require.Equal(t, KindLeak, ev.Kind)
	assert.Equal(t, 0.0, ev.Sensor.Value)
}

func TestDecodeDevicePower(t *testing.T) {
	payload := []byte(`{"deviceId":"sim-cocina-heladera","type":"device_power","value":131,"expected":120,"active":false,"unit":"W","timestamp":"2025-03-01T10:00:00Z","location":"cocina","device":"heladera"}`)

	ev := Decode("home/cocina/device/heladera/power", payload)

	require.Equal(t, KindDevicePower, ev.Kind)
	require.NotNil(t, ev.Device.Expected)
	assert.Equal(t, 120.0, *ev.Device.Expected)
	assert.Equal(t, 131.0, ev.Device.Value)
	assert.Equal(t, "heladera", ev.Device.Device)
	assert.False(t, ev.Device.Active)
}

func TestDecodeDevicePowerWithoutBaseline(t *testing.T) {
	ev := Decode("home/cocina/device/cafetera/power", []byte(`{"type":"device_power","value":3}`))

	require.Equal(t, KindDevicePower, ev.Kind)
	assert.Nil(t, ev.Device.Expected)
	assert.Equal(t, "cafetera", ev.Device.Device)
	assert.Equal(t, "cocina", ev.Device.Location)
}

func TestDecodeDeviceState(t *testing.T) {
	ev := Decode("home/bano/device/extractor/state", []byte(`{"device":"extractor","room":"bano","active":true,"timestamp":"2025-03-01T10:00:00Z"}`))

	require.Equal(t, KindDeviceState, ev.Kind)
	assert.True(t, ev.State.Active)
	assert.Equal(t, "bano", ev.Room())
}

func TestDecodeAway(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		kind    Kind
		want    bool
	}{
		{"retained state", "home/system/away/state", `{"type":"away_state","value":true,"timestamp":"2025-03-01T10:00:00Z"}`, KindAwayState, true},
		{"set object", "home/system/away/set", `{"value":false}`, KindAwaySet, false},
		{"set json bool", "home/system/away/set", `true`, KindAwaySet, true},
		{"set json string", "home/system/away/set", `"on"`, KindAwaySet, true},
		{"set plain text", "home/system/away/set", `off`, KindAwaySet, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Decode(tt.topic, []byte(tt.payload))
			require.Equal(t, tt.kind, ev.Kind)
			assert.Equal(t, tt.want, ev.Away.Value)
		})
	}
}

func TestDecodeDeviceCommand(t *testing.T) {
	ev := Decode("home/jardin/device/bomba_agua/set", []byte(`{"value":"on"}`))

	require.Equal(t, KindDeviceSet, ev.Kind)
	assert.Equal(t, &DeviceCommand{Room: "jardin", Device: "bomba_agua", On: true}, ev.Command)

	ev = Decode("home/jardin/device/bomba_agua/set", []byte(`false`))
	require.Equal(t, KindDeviceSet, ev.Kind)
	assert.False(t, ev.Command.On)
}

func TestDecodeRoomSnapshot(t *testing.T) {
	ev := Decode("home/habitacion/sensors", []byte(`{"temperature":21.3,"humidity":50,"co2":640,"power":310,"timestamp":"2025-03-01T10:00:00Z"}`))

	require.Equal(t, KindRoomSnapshot, ev.Kind)
	assert.Equal(t, "habitacion", ev.Snapshot.Location)
	assert.Equal(t, 640.0, ev.Snapshot.Co2)
}

func TestDecodeMalformedPayloadBecomesRaw(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload []byte
	}{
		{"not json", "home/cocina/sensor/temperature", []byte("hello world")},
		{"json array", "home/cocina/sensor/temperature", []byte(`[1,2,3]`)},
		{"missing value", "home/cocina/sensor/co2", []byte(`{"type":"co2"}`)},
		{"unknown topic", "office/printer", []byte(`{"status":"ok"}`)},
		{"invalid utf8", "home/cocina/sensor/temperature", []byte{0xff, 0xfe, 0x01}},
		{"bad command", "home/system/away/set", []byte(`maybe`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ev Event
			require.NotPanics(t, func() { ev = Decode(tt.topic, tt.payload) })
			require.Equal(t, KindRaw, ev.Kind)
			require.NotNil(t, ev.Raw)
			assert.Equal(t, tt.topic, ev.Raw.Topic)
			assert.Equal(t, string(tt.payload), ev.Raw.Text)
			assert.NotEmpty(t, ev.Raw.Error)
			assert.Equal(t, "", ev.Room())
		})
	}
}

func TestTruthy(t *testing.T) {
	for _, v := range []interface{}{true, 1.0, "on", "TRUE", "1", "yes"} {
		got, ok := Truthy(v)
		assert.True(t, ok, "%v", v)
		assert.True(t, got, "%v", v)
	}
	for _, v := range []interface{}{false, 0.0, "off", "false", "0"} {
		got, ok := Truthy(v)
		assert.True(t, ok, "%v", v)
		assert.False(t, got, "%v", v)
	}
	_, ok := Truthy(nil)
	assert.False(t, ok)
}

func TestValidSegment(t *testing.T) {
	assert.True(t, ValidSegment("cocina"))
	assert.False(t, ValidSegment(""))
	assert.False(t, ValidSegment("a/b"))
	assert.False(t, ValidSegment("+"))
	assert.False(t, ValidSegment("#"))
}
