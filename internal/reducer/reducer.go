// Package reducer folds the MQTT telemetry stream into bounded, queryable
// state. It owns the event log; every query is a projection over a snapshot
// of that log taken at call time.
package reducer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/NoahEritier/Smart-Home-IoT/internal/anomaly"
	"github.com/NoahEritier/Smart-Home-IoT/internal/command"
	"github.com/NoahEritier/Smart-Home-IoT/internal/config"
	"github.com/NoahEritier/Smart-Home-IoT/internal/data"
	"github.com/NoahEritier/Smart-Home-IoT/internal/metrics"
	"github.com/NoahEritier/Smart-Home-IoT/internal/projection"
	"github.com/NoahEritier/Smart-Home-IoT/internal/storage"
)

// ErrUnknownDevice is returned when a toggle targets a device that has not
// reported in the room yet, so its current state is unknown.
var ErrUnknownDevice = errors.New("device has not reported yet")

// Publisher delivers outbound messages. The MQTT transport implements it.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, retain bool) error
}

// View is everything the dashboard renders for one room.
type View struct {
	Room      string                   `json:"room"`
	Latest    projection.Latest        `json:"latest"`
	Devices   []projection.DeviceEntry `json:"devices"`
	Alerts    []anomaly.Alert          `json:"alerts"`
	Leak      anomaly.LeakStatus       `json:"leak"`
	Away      bool                     `json:"away"`
	AwayKnown bool                     `json:"awayKnown"`
}

type Reducer struct {
	log      *storage.EventLog
	detector *anomaly.Detector
	pub      Publisher
	rooms    []string
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu        sync.RWMutex
	listeners []func(data.Event)
}

func New(cfg *config.Config, pub Publisher, logger *zap.Logger, m *metrics.Metrics) *Reducer {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reducer{
		detector: anomaly.NewDetector(cfg.Rules),
		pub:      pub,
		rooms:    append([]string(nil), cfg.Dashboard.Rooms...),
		logger:   logger,
		metrics:  m,
	}
	r.log = storage.NewEventLog(cfg.Dashboard.LogCapacity,
		storage.WithEvictCallback(func(data.Event) { m.ObserveEviction() }))
	return r
}

// Subscribe registers fn to be called with every event after it is appended.
func (r *Reducer) Subscribe(fn func(data.Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// HandleMessage decodes one MQTT message and appends it to the log. It never
// fails; undecodable messages are kept as raw events.
func (r *Reducer) HandleMessage(topic string, payload []byte) data.Event {
	ev := data.Decode(topic, payload)
	if ev.Kind == data.KindRaw {
		r.logger.Debug("kept undecodable message",
			zap.String("topic", topic),
			zap.String("reason", ev.Raw.Error))
	}
	r.log.Append(ev)
	r.metrics.ObserveEvent(ev)

	r.mu.RLock()
	listeners := r.listeners
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
	return ev
}

// Events returns a snapshot of the log, oldest first.
func (r *Reducer) Events() []data.Event {
	return r.log.Snapshot()
}

// Recent returns the newest count events, oldest first.
func (r *Reducer) Recent(count int) []data.Event {
	return r.log.GetRecent(count)
}

// RoomView projects the state of room. An empty room aggregates every room.
func (r *Reducer) RoomView(room string) View {
	events := r.log.Snapshot()
	latest := projection.LatestValues(events, room)
	devices := projection.Devices(events, room)
	away, known := projection.Away(events)
	return View{
		Room:      room,
		Latest:    latest,
		Devices:   devices,
		Alerts:    r.detector.Evaluate(latest, devices, room),
		Leak:      anomaly.DetectLeaks(events),
		Away:      away,
		AwayKnown: known,
	}
}

// Alerts evaluates the rule set for room.
func (r *Reducer) Alerts(room string) []anomaly.Alert {
	events := r.log.Snapshot()
	return r.detector.Evaluate(projection.LatestValues(events, room), projection.Devices(events, room), room)
}

func (r *Reducer) Rooms() []string {
	return projection.Rooms(r.log.Snapshot(), r.rooms)
}

func (r *Reducer) Series(room, sensorType string) []data.SensorReading {
	return projection.Series(r.log.Snapshot(), room, sensorType)
}

func (r *Reducer) Leaks() anomaly.LeakStatus {
	return anomaly.DetectLeaks(r.log.Snapshot())
}

// Away returns the last known away flag.
func (r *Reducer) Away() (value bool, known bool) {
	return projection.Away(r.log.Snapshot())
}

// SetAway requests away mode to be set to desired.
func (r *Reducer) SetAway(ctx context.Context, desired bool) error {
	return r.send(ctx, "away_set", command.Away(desired))
}

// ToggleAway requests the opposite of the last known away flag. An unknown
// flag counts as off.
func (r *Reducer) ToggleAway(ctx context.Context) (bool, error) {
	current, _ := r.Away()
	return !current, r.SetAway(ctx, !current)
}

// SetDevice requests a device to be switched on or off.
func (r *Reducer) SetDevice(ctx context.Context, room, device string, on bool) error {
	msg, err := command.Device(room, device, on)
	if err != nil {
		return err
	}
	return r.send(ctx, "device_set", msg)
}

// ToggleDevice requests the opposite of the device's current state and
// returns the requested state.
func (r *Reducer) ToggleDevice(ctx context.Context, room, device string) (bool, error) {
	for _, d := range projection.Devices(r.log.Snapshot(), room) {
		if d.Device != device {
			continue
		}
		desired := !d.Active()
		return desired, r.SetDevice(ctx, room, device, desired)
	}
	return false, fmt.Errorf("%w: %s/%s", ErrUnknownDevice, room, device)
}

func (r *Reducer) send(ctx context.Context, kind string, msg command.Message) error {
	if r.pub == nil {
		return errors.New("no publisher configured")
	}
	err := r.pub.Publish(ctx, msg.Topic, msg.Payload, msg.Retain)
	r.metrics.ObservePublish(kind, err)
	if err != nil {
		r.logger.Warn("command publish failed", zap.String("topic", msg.Topic), zap.Error(err))
		return fmt.Errorf("publishing %s: %w", msg.Topic, err)
	}
	r.logger.Info("command published", zap.String("topic", msg.Topic), zap.ByteString("payload", msg.Payload))
	return nil
}
