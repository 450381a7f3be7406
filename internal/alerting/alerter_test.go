package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NoahEritier/Smart-Home-IoT/internal/anomaly"
)

type recordingHub struct {
	alerts []interface{}
}

func (h *recordingHub) BroadcastAlert(alert interface{}) {
	h.alerts = append(h.alerts, alert)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func alert(rule, room string) anomaly.Alert {
	return anomaly.Alert{Level: anomaly.LevelWarn, Rule: rule, Room: room, Key: rule + ":" + room, Message: rule + " in " + room}
}

func newTestAlerter() (*Alerter, *recordingHub, *clock) {
	hub := &recordingHub{}
	c := &clock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	return NewAlerter(hub, WithClock(c.now)), hub, c
}

func TestNewAlertsAreBroadcastOnce(t *testing.T) {
	a, hub, _ := newTestAlerter()
	power := alert(anomaly.RulePower, "cocina")

	visible := a.ProcessAlerts("cocina", []anomaly.Alert{power})
	assert.Equal(t, []anomaly.Alert{power}, visible)

	visible = a.ProcessAlerts("cocina", []anomaly.Alert{power})
	assert.Equal(t, []anomaly.Alert{power}, visible)
	require.Len(t, hub.alerts, 1)
}

func TestAlertsExpireAfterTTL(t *testing.T) {
	a, _, c := newTestAlerter()
	power := alert(anomaly.RulePower, "cocina")
	a.ProcessAlerts("cocina", []anomaly.Alert{power})

	c.advance(5 * time.Second)
	assert.Len(t, a.ProcessAlerts("cocina", []anomaly.Alert{power}), 1)

	c.advance(time.Second)
	assert.Empty(t, a.ProcessAlerts("cocina", []anomaly.Alert{power}))
}

func TestClearedAlertIsShownAgain(t *testing.T) {
	a, hub, c := newTestAlerter()
	power := alert(anomaly.RulePower, "cocina")
	a.ProcessAlerts("cocina", []anomaly.Alert{power})
	c.advance(10 * time.Second)
	assert.Empty(t, a.ProcessAlerts("cocina", []anomaly.Alert{power}))

	a.ProcessAlerts("cocina", nil)
	assert.Len(t, a.ProcessAlerts("cocina", []anomaly.Alert{power}), 1)
	assert.Len(t, hub.alerts, 2)
}

func TestDismiss(t *testing.T) {
	a, _, _ := newTestAlerter()
	power := alert(anomaly.RulePower, "cocina")
	co2 := alert(anomaly.RuleCo2, "cocina")
	a.ProcessAlerts("cocina", []anomaly.Alert{power, co2})

	assert.True(t, a.Dismiss(power.Key))
	assert.False(t, a.Dismiss("unknown"))
	assert.Equal(t, []anomaly.Alert{co2}, a.ProcessAlerts("cocina", []anomaly.Alert{power, co2}))
	assert.Equal(t, []anomaly.Alert{co2}, a.Active([]anomaly.Alert{power, co2}))
}

func TestOtherRoomsAreNotForgotten(t *testing.T) {
	a, hub, _ := newTestAlerter()
	a.ProcessAlerts("cocina", []anomaly.Alert{alert(anomaly.RulePower, "cocina")})
	a.ProcessAlerts("jardin", nil)
	a.ProcessAlerts("cocina", []anomaly.Alert{alert(anomaly.RulePower, "cocina")})

	assert.Len(t, hub.alerts, 1)
}
