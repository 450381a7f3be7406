// internal/metrics/metrics.go
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/exp/slices"

	"github.com/NoahEritier/Smart-Home-IoT/internal/data"
)

// maxDevicesPerRoom caps the device power series kept for one room.
const maxDevicesPerRoom = 32

// Metrics groups the collectors shared by the dashboard and the simulator.
// A nil *Metrics is valid and records nothing.
//
// Room and device labels come from MQTT topics anyone on the broker can
// publish to, so readings are only recorded for the rooms given with
// WithRooms and for at most maxDevicesPerRoom devices per room.
type Metrics struct {
	messages       *prometheus.CounterVec
	decodeFailures prometheus.Counter
	evictions      prometheus.Counter
	alerts         *prometheus.CounterVec
	roomReading    *prometheus.GaugeVec
	devicePower    *prometheus.GaugeVec
	published      *prometheus.CounterVec
	publishErrors  prometheus.Counter

	rooms   []string
	mu      sync.Mutex
	devices map[string]map[string]struct{}
}

type Option func(*Metrics)

// WithRooms sets the rooms whose readings are exported as gauges.
func WithRooms(rooms ...string) Option {
	return func(m *Metrics) {
		m.rooms = append([]string(nil), rooms...)
	}
}

// NewRegistry returns a registry with the Go runtime and build info collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewBuildInfoCollector())
	reg.MustRegister(collectors.NewGoCollector())
	return reg
}

func New(reg prometheus.Registerer, opts ...Option) *Metrics {
	m := &Metrics{
		devices: map[string]map[string]struct{}{},
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smarthome_messages_total",
				Help: "MQTT messages ingested, by decoded kind.",
			},
			[]string{"kind"}),
		decodeFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "smarthome_decode_failures_total",
				Help: "Messages that could not be decoded and were kept as raw entries.",
			}),
		evictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "smarthome_log_evictions_total",
				Help: "Events dropped from the bounded event log.",
			}),
		alerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smarthome_alerts_raised_total",
				Help: "Alerts raised, by level and rule.",
			},
			[]string{"level", "rule"}),
		roomReading: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "smarthome_room_reading",
				Help: "Latest sensor reading per room and sensor type.",
			},
			[]string{"room", "type"}),
		devicePower: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "smarthome_device_power_watts",
				Help: "Latest power draw per device.",
			},
			[]string{"room", "device"}),
		published: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smarthome_published_total",
				Help: "Messages published, by kind.",
			},
			[]string{"kind"}),
		publishErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "smarthome_publish_errors_total",
				Help: "Publish attempts that failed.",
			}),
	}
	for _, opt := range opts {
		opt(m)
	}
	reg.MustRegister(m.messages)
	reg.MustRegister(m.decodeFailures)
	reg.MustRegister(m.evictions)
	reg.MustRegister(m.alerts)
	reg.MustRegister(m.roomReading)
	reg.MustRegister(m.devicePower)
	reg.MustRegister(m.published)
	reg.MustRegister(m.publishErrors)
	return m
}

// ObserveEvent records an ingested event.
func (m *Metrics) ObserveEvent(ev data.Event) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(ev.Kind.String()).Inc()
	switch {
	case ev.Kind == data.KindRaw:
		m.decodeFailures.Inc()
	case ev.Kind.IsSensor() && ev.Kind != data.KindSensor:
		if slices.Contains(m.rooms, ev.Sensor.Location) {
			m.roomReading.WithLabelValues(ev.Sensor.Location, ev.Kind.String()).Set(ev.Sensor.Value)
		}
	case ev.Kind == data.KindDevicePower:
		if m.trackDevice(ev.Device.Location, ev.Device.Device) {
			m.devicePower.WithLabelValues(ev.Device.Location, ev.Device.Device).Set(ev.Device.Value)
		}
	}
}

func (m *Metrics) trackDevice(room, device string) bool {
	if !slices.Contains(m.rooms, room) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	seen, ok := m.devices[room]
	if !ok {
		seen = map[string]struct{}{}
		m.devices[room] = seen
	}
	if _, ok := seen[device]; ok {
		return true
	}
	if len(seen) >= maxDevicesPerRoom {
		return false
	}
	seen[device] = struct{}{}
	return true
}

func (m *Metrics) ObserveEviction() {
	if m == nil {
		return
	}
	m.evictions.Inc()
}

func (m *Metrics) ObserveAlert(level, rule string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(level, rule).Inc()
}

// ObservePublish records a publish attempt of the given kind.
func (m *Metrics) ObservePublish(kind string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.publishErrors.Inc()
		return
	}
	m.published.WithLabelValues(kind).Inc()
}
