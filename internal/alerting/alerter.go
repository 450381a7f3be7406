// internal/alerting/alerter.go
package alerting

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/NoahEritier/Smart-Home-IoT/internal/anomaly"
	"github.com/NoahEritier/Smart-Home-IoT/internal/metrics"
)

// DefaultTTL is how long an alert stays visible after it is first raised.
const DefaultTTL = 6 * time.Second

// Broadcaster fans a newly raised alert out to connected dashboards.
type Broadcaster interface {
	BroadcastAlert(alert interface{})
}

type tracked struct {
	room      string
	firstSeen time.Time
	dismissed bool
}

// Alerter decides which of the alerts evaluated for a room are shown. Each
// condition, identified by its key, is announced once, hidden after the TTL or
// a manual dismissal, and forgotten once it stops firing so that a recurrence
// is shown again.
type Alerter struct {
	hub     Broadcaster
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu   sync.Mutex
	keys map[string]*tracked
}

type Option func(*Alerter)

func WithTTL(ttl time.Duration) Option {
	return func(a *Alerter) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Alerter) { a.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(a *Alerter) { a.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Alerter) { a.metrics = m }
}

func NewAlerter(hub Broadcaster, opts ...Option) *Alerter {
	a := &Alerter{
		hub:    hub,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: zap.NewNop(),
		keys:   make(map[string]*tracked),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ProcessAlerts takes the full current alert list for room and returns the
// alerts that should be displayed, in the given order.
func (a *Alerter) ProcessAlerts(room string, alerts []anomaly.Alert) []anomaly.Alert {
	now := a.now()
	var raised []anomaly.Alert

	a.mu.Lock()
	firing := make(map[string]struct{}, len(alerts))
	visible := make([]anomaly.Alert, 0, len(alerts))
	for _, alert := range alerts {
		firing[alert.Key] = struct{}{}
		t, ok := a.keys[alert.Key]
		if !ok {
			t = &tracked{room: room, firstSeen: now}
			a.keys[alert.Key] = t
			raised = append(raised, alert)
		}
		if t.dismissed || now.Sub(t.firstSeen) >= a.ttl {
			continue
		}
		visible = append(visible, alert)
	}
	for key, t := range a.keys {
		if _, ok := firing[key]; !ok && t.room == room {
			delete(a.keys, key)
		}
	}
	a.mu.Unlock()

	if len(raised) > 0 {
		a.logger.Info("alerts raised", zap.String("room", room), zap.Int("count", len(raised)))
	}
	for _, alert := range raised {
		a.metrics.ObserveAlert(string(alert.Level), alert.Rule)
		if a.hub != nil {
			a.hub.BroadcastAlert(alert)
		}
	}
	return visible
}

// Dismiss hides the alert with key until its condition clears. It reports
// whether the key was known.
func (a *Alerter) Dismiss(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.keys[key]
	if ok {
		t.dismissed = true
	}
	return ok
}

// Active filters alerts down to those that are tracked and still visible,
// without raising or forgetting anything.
func (a *Alerter) Active(alerts []anomaly.Alert) []anomaly.Alert {
	now := a.now()
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]anomaly.Alert, 0, len(alerts))
	for _, alert := range alerts {
		t, ok := a.keys[alert.Key]
		if ok && (t.dismissed || now.Sub(t.firstSeen) >= a.ttl) {
			continue
		}
		out = append(out, alert)
	}
	return out
}
