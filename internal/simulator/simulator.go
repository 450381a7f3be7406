// Package simulator publishes synthetic telemetry for a small home and obeys
// the away and device commands sent by dashboards.
package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/NoahEritier/Smart-Home-IoT/internal/command"
	"github.com/NoahEritier/Smart-Home-IoT/internal/config"
	"github.com/NoahEritier/Smart-Home-IoT/internal/data"
	"github.com/NoahEritier/Smart-Home-IoT/internal/history"
	"github.com/NoahEritier/Smart-Home-IoT/internal/metrics"
	"github.com/NoahEritier/Smart-Home-IoT/internal/overrides"
)

// TimestampLayout matches JavaScript's Date.toISOString.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

const commandTimeout = 5 * time.Second

// Publisher delivers messages to the broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, retain bool) error
}

type Simulator struct {
	cfg      config.Simulator
	pub      Publisher
	store    overrides.Store
	sink     history.Sink
	logger   *zap.Logger
	metrics  *metrics.Metrics
	profiles map[string][]Profile
	now      func() time.Time

	mu    sync.Mutex // guards gen and state
	gen   *Generator
	state overrides.State
}

type Option func(*Simulator)

func WithRand(rng *rand.Rand) Option {
	return func(s *Simulator) { s.gen = NewGenerator(rng) }
}

func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Simulator) { s.metrics = m }
}

func WithProfiles(p map[string][]Profile) Option {
	return func(s *Simulator) { s.profiles = p }
}

// New builds a simulator. store and sink may be nil.
func New(cfg config.Simulator, pub Publisher, store overrides.Store, sink history.Sink, logger *zap.Logger, opts ...Option) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Simulator{
		cfg:      cfg,
		pub:      pub,
		store:    store,
		sink:     sink,
		logger:   logger,
		profiles: DefaultProfiles,
		now:      time.Now,
		gen:      NewGenerator(rand.New(rand.NewSource(time.Now().UnixNano()))),
		state:    overrides.State{Overrides: map[string]string{}},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads persisted overrides and republishes them as retained state.
func (s *Simulator) Start(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	state, err := s.store.Load()
	if err != nil {
		s.logger.Warn("loading overrides, starting clean", zap.Error(err))
	}
	return s.ApplyState(ctx, state)
}

// Run publishes a cycle immediately and then on every interval until ctx is done.
func (s *Simulator) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		if err := s.PublishCycle(ctx); err != nil {
			s.logger.Warn("publish cycle incomplete", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// State returns a copy of the current away flag and overrides.
func (s *Simulator) State() overrides.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyStateLocked()
}

// ApplyState replaces the in-memory state, for example after the override
// file was edited, and publishes it as retained state.
func (s *Simulator) ApplyState(ctx context.Context, state overrides.State) error {
	if state.Overrides == nil {
		state.Overrides = map[string]string{}
	}
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	ts := s.timestamp()
	errs := []error{s.publish(ctx, "away_state", command.AwayState(state.AwayMode, ts))}
	for room, devices := range s.profiles {
		for _, p := range devices {
			value, ok := state.Overrides[overrides.Key(room, p.ID)]
			if !ok {
				continue
			}
			msg, err := command.DeviceState(room, p.ID, value == "on", ts)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			errs = append(errs, s.publish(ctx, "device_state", msg))
		}
	}
	return errors.Join(errs...)
}

// HandleCommand is the transport handler for the command topics.
func (s *Simulator) HandleCommand(topic string, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	ev := data.Decode(topic, payload)
	var err error
	switch ev.Kind {
	case data.KindAwaySet:
		err = s.SetAway(ctx, ev.Away.Value)
	case data.KindDeviceSet:
		err = s.SetDevice(ctx, ev.Command.Room, ev.Command.Device, ev.Command.On)
	default:
		s.logger.Debug("ignoring message on command topic", zap.String("topic", topic), zap.Stringer("kind", ev.Kind))
		return
	}
	if err != nil {
		s.logger.Warn("command failed", zap.String("topic", topic), zap.Error(err))
	}
}

// SetAway persists the away flag and publishes it retained.
func (s *Simulator) SetAway(ctx context.Context, away bool) error {
	s.mu.Lock()
	s.state.AwayMode = away
	snapshot := s.copyStateLocked()
	s.mu.Unlock()

	s.logger.Info("away mode set", zap.Bool("away", away))
	saveErr := s.save(snapshot)
	pubErr := s.publish(ctx, "away_state", command.AwayState(away, s.timestamp()))
	return errors.Join(saveErr, pubErr)
}

// SetDevice forces a device on or off, persists the override and publishes
// the retained device state.
func (s *Simulator) SetDevice(ctx context.Context, room, device string, on bool) error {
	if _, ok := findProfile(s.profiles[room], device); !ok {
		return fmt.Errorf("unknown device %s/%s", room, device)
	}
	value := "off"
	if on {
		value = "on"
	}
	s.mu.Lock()
	s.state.Overrides[overrides.Key(room, device)] = value
	snapshot := s.copyStateLocked()
	s.mu.Unlock()

	s.logger.Info("device override set", zap.String("room", room), zap.String("device", device), zap.String("value", value))
	msg, err := command.DeviceState(room, device, on, s.timestamp())
	if err != nil {
		return err
	}
	return errors.Join(s.save(snapshot), s.publish(ctx, "device_state", msg))
}

// PublishCycle publishes one round of readings for every room and records
// history. Publish failures are logged and do not stop the cycle.
func (s *Simulator) PublishCycle(ctx context.Context) error {
	now := s.now().UTC()
	ts := now.Format(TimestampLayout)
	hour := float64(now.Hour()) + float64(now.Minute())/60

	var errs []error
	for _, room := range s.cfg.Rooms {
		rec := s.sampleRoom(room, now, hour)
		errs = append(errs, s.publishRoom(ctx, rec, ts)...)
		if s.sink != nil {
			if err := s.sink.Write(ctx, rec); err != nil {
				s.logger.Warn("writing history", zap.String("room", room), zap.Error(err))
				errs = append(errs, err)
			}
		}
	}
	s.logger.Debug("publish cycle done", zap.Int("rooms", len(s.cfg.Rooms)))
	return errors.Join(errs...)
}

func (s *Simulator) sampleRoom(room string, now time.Time, hour float64) history.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := history.Record{
		TS:          now,
		Room:        room,
		Away:        s.state.AwayMode,
		Temperature: s.gen.Temperature(hour),
		Humidity:    s.gen.Humidity(hour),
		Co2:         s.gen.Co2(now.Hour()),
		Devices:     []history.DeviceRecord{},
	}
	for _, p := range s.profiles[room] {
		var sample DeviceSample
		switch s.state.Overrides[overrides.Key(room, p.ID)] {
		case "on":
			sample = s.gen.DeviceAt(p, true)
		case "off":
			sample = Off()
		default:
			sample = s.gen.Device(p)
		}
		rec.Power += sample.Value
		rec.Devices = append(rec.Devices, history.DeviceRecord{
			Device:   p.ID,
			Value:    sample.Value,
			Expected: sample.Expected,
			Active:   sample.On,
		})
	}
	probability := s.cfg.LeakProbability
	if s.state.AwayMode {
		probability *= s.cfg.AwayDamping
	}
	rec.Leak = s.gen.Leak(probability)
	return rec
}

func (s *Simulator) publishRoom(ctx context.Context, rec history.Record, ts string) []error {
	room := rec.Room
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	for _, d := range rec.Devices {
		expected := d.Expected
		add(s.publishJSON(ctx, "device_power", data.DevicePowerTopic(room, d.Device), data.DeviceReading{
			DeviceID:  "sim-" + room + "-" + d.Device,
			Type:      "device_power",
			Value:     d.Value,
			Expected:  &expected,
			Active:    d.Active,
			Unit:      "W",
			Timestamp: ts,
			Location:  room,
			Device:    d.Device,
		}))
	}

	leak := 0.0
	if rec.Leak {
		leak = 1
	}
	for _, r := range []struct {
		kind  string
		value float64
		unit  string
	}{
		{"temperature", rec.Temperature, "C"},
		{"humidity", rec.Humidity, "%"},
		{"co2", rec.Co2, "ppm"},
		{"power", rec.Power, "W"},
		{"leak", leak, ""},
	} {
		add(s.publishJSON(ctx, r.kind, data.SensorTopic(room, r.kind), data.SensorReading{
			DeviceID:  "sim-" + room + "-" + r.kind,
			Type:      r.kind,
			Value:     r.value,
			Unit:      r.unit,
			Timestamp: ts,
			Location:  room,
		}))
	}

	add(s.publishJSON(ctx, "room_snapshot", data.RoomSnapshotTopic(room), data.RoomSnapshot{
		Temperature: rec.Temperature,
		Humidity:    rec.Humidity,
		Co2:         rec.Co2,
		Power:       rec.Power,
		Timestamp:   ts,
		Location:    room,
	}))
	return errs
}

func (s *Simulator) publishJSON(ctx context.Context, kind, topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", kind, err)
	}
	return s.publish(ctx, kind, command.Message{Topic: topic, Payload: payload})
}

func (s *Simulator) publish(ctx context.Context, kind string, msg command.Message) error {
	err := s.pub.Publish(ctx, msg.Topic, msg.Payload, msg.Retain)
	s.metrics.ObservePublish(kind, err)
	if err != nil {
		s.logger.Warn("publish failed", zap.String("topic", msg.Topic), zap.Error(err))
		return fmt.Errorf("publishing %s: %w", msg.Topic, err)
	}
	return nil
}

func (s *Simulator) save(state overrides.State) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Save(state); err != nil {
		s.logger.Warn("saving overrides", zap.Error(err))
		return err
	}
	return nil
}

func (s *Simulator) copyStateLocked() overrides.State {
	out := overrides.State{AwayMode: s.state.AwayMode, Overrides: make(map[string]string, len(s.state.Overrides))}
	for k, v := range s.state.Overrides {
		out.Overrides[k] = v
	}
	return out
}

func (s *Simulator) timestamp() string {
	return s.now().UTC().Format(TimestampLayout)
}
