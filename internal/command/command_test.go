package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NoahEritier/Smart-Home-IoT/internal/data"
)

func TestAway(t *testing.T) {
	msg := Away(true)
	assert.Equal(t, "home/system/away/set", msg.Topic)
	assert.JSONEq(t, `{"value":true}`, string(msg.Payload))
	assert.False(t, msg.Retain)

	assert.JSONEq(t, `{"value":false}`, string(Away(false).Payload))
}

func TestDevice(t *testing.T) {
	msg, err := Device("cocina", "cafetera", true)
	require.NoError(t, err)
	assert.Equal(t, "home/cocina/device/cafetera/set", msg.Topic)
	assert.JSONEq(t, `{"value":"on"}`, string(msg.Payload))

	msg, err = Device("cocina", "cafetera", false)
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"off"}`, string(msg.Payload))
}

func TestDeviceRejectsInvalidTargets(t *testing.T) {
	for _, tc := range [][2]string{{"", "pc"}, {"cocina", ""}, {"a/b", "pc"}, {"cocina", "+"}, {"#", "pc"}} {
		_, err := Device(tc[0], tc[1], true)
		assert.ErrorIs(t, err, ErrInvalidTarget, "%v", tc)
	}
}

func TestCommandsDecodeBack(t *testing.T) {
	msg, err := Device("jardin", "bomba_agua", true)
	require.NoError(t, err)
	ev := data.Decode(msg.Topic, msg.Payload)
	require.Equal(t, data.KindDeviceSet, ev.Kind)
	assert.True(t, ev.Command.On)

	away := Away(true)
	ev = data.Decode(away.Topic, away.Payload)
	require.Equal(t, data.KindAwaySet, ev.Kind)
	assert.True(t, ev.Away.Value)
}

func TestStateMessages(t *testing.T) {
	msg, err := DeviceState("bano", "extractor", true, "2025-03-01T10:00:00Z")
	require.NoError(t, err)
	assert.True(t, msg.Retain)
	ev := data.Decode(msg.Topic, msg.Payload)
	require.Equal(t, data.KindDeviceState, ev.Kind)
	assert.Equal(t, &data.DeviceState{Device: "extractor", Room: "bano", Active: true, Timestamp: "2025-03-01T10:00:00Z", Time: ev.State.Time}, ev.State)

	away := AwayState(true, "2025-03-01T10:00:00Z")
	assert.True(t, away.Retain)
	ev = data.Decode(away.Topic, away.Payload)
	require.Equal(t, data.KindAwayState, ev.Kind)
	assert.True(t, ev.Away.Value)
}
