// internal/transport/client.go
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NoahEritier/Smart-Home-IoT/internal/config"
)

var ErrNotConnected = errors.New("mqtt client is not connected")

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// Handler receives every message on a subscribed topic. Calls are sequential.
type Handler func(topic string, payload []byte)

type Config struct {
	BrokerURL      string
	ClientID       string
	KeepAlive      uint16
	ConnectTimeout time.Duration
	Username       string
	Password       string
	Subscriptions  []string
}

// ConfigFrom builds a client config with a unique client id derived from the
// configured prefix.
func ConfigFrom(cfg config.MQTT, subscriptions []string) Config {
	return Config{
		BrokerURL:      cfg.BrokerURL,
		ClientID:       NewClientID(cfg.ClientIDPrefix),
		KeepAlive:      cfg.KeepAlive,
		ConnectTimeout: cfg.ConnectTimeout,
		Username:       cfg.Username,
		Password:       cfg.Password,
		Subscriptions:  subscriptions,
	}
}

// NewClientID returns prefix followed by a random suffix. Public brokers
// disconnect clients that reuse an id, so every process gets its own.
func NewClientID(prefix string) string {
	if prefix == "" {
		prefix = "smarthome"
	}
	return prefix + "-" + uuid.NewString()[:8]
}

// Client is a QoS 0 MQTT client that stays connected: after the initial
// connect it reconnects with exponential backoff and resubscribes.
type Client struct {
	cfg     Config
	handler Handler
	logger  *zap.Logger

	mu   sync.RWMutex
	pc   *paho.Client
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func New(cfg Config, handler Handler, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ClientID == "" {
		cfg.ClientID = NewClientID("")
	}
	return &Client{
		cfg:     cfg,
		handler: handler,
		logger:  logger.With(zap.String("client_id", cfg.ClientID)),
		done:    make(chan struct{}),
	}
}

// Connect performs the initial connection and subscriptions. A failure here
// is returned to the caller; later connection losses are retried in the
// background until Disconnect.
func (c *Client) Connect(ctx context.Context) error {
	lost, err := c.connect(ctx)
	if err != nil {
		return err
	}
	c.wg.Add(1)
	go c.maintain(lost)
	return nil
}

// Connected reports whether a session is currently up.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pc != nil
}

// Publish sends payload at QoS 0.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	c.mu.RLock()
	pc := c.pc
	c.mu.RUnlock()
	if pc == nil {
		return ErrNotConnected
	}
	_, err := pc.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     0,
		Retain:  retain,
	})
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Disconnect stops reconnecting and closes the session.
func (c *Client) Disconnect() {
	c.once.Do(func() { close(c.done) })

	c.mu.Lock()
	pc := c.pc
	c.pc = nil
	c.mu.Unlock()
	if pc != nil {
		if err := pc.Disconnect(&paho.Disconnect{ReasonCode: 0}); err != nil {
			c.logger.Debug("disconnect", zap.Error(err))
		}
	}
	c.wg.Wait()
	c.logger.Info("mqtt client stopped")
}

func (c *Client) connect(ctx context.Context) (<-chan error, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, err := Dial(ctx, c.cfg.BrokerURL)
	if err != nil {
		return nil, err
	}

	lost := make(chan error, 1)
	signal := func(err error) {
		select {
		case lost <- err:
		default:
		}
	}
	pc := paho.NewClient(paho.ClientConfig{
		Conn:     conn,
		ClientID: c.cfg.ClientID,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				if c.handler != nil {
					c.handler(pr.Packet.Topic, pr.Packet.Payload)
				}
				return true, nil
			},
		},
		OnClientError: signal,
		OnServerDisconnect: func(d *paho.Disconnect) {
			signal(fmt.Errorf("server disconnected, reason code %d", d.ReasonCode))
		},
	})

	ack, err := pc.Connect(ctx, &paho.Connect{
		ClientID:     c.cfg.ClientID,
		KeepAlive:    c.cfg.KeepAlive,
		CleanStart:   true,
		Username:     c.cfg.Username,
		UsernameFlag: c.cfg.Username != "",
		Password:     []byte(c.cfg.Password),
		PasswordFlag: c.cfg.Password != "",
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	if ack.ReasonCode != 0 {
		conn.Close()
		return nil, fmt.Errorf("mqtt connect refused, reason code %d", ack.ReasonCode)
	}

	if len(c.cfg.Subscriptions) > 0 {
		subs := make([]paho.SubscribeOptions, 0, len(c.cfg.Subscriptions))
		for _, topic := range c.cfg.Subscriptions {
			subs = append(subs, paho.SubscribeOptions{Topic: topic, QoS: 0})
		}
		if _, err := pc.Subscribe(ctx, &paho.Subscribe{Subscriptions: subs}); err != nil {
			_ = pc.Disconnect(&paho.Disconnect{ReasonCode: 0})
			return nil, fmt.Errorf("subscribing: %w", err)
		}
	}

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		_ = pc.Disconnect(&paho.Disconnect{ReasonCode: 0})
		return nil, ErrNotConnected
	default:
	}
	c.pc = pc
	c.mu.Unlock()
	c.logger.Info("mqtt connected",
		zap.String("broker", c.cfg.BrokerURL),
		zap.Strings("subscriptions", c.cfg.Subscriptions))
	return lost, nil
}

func (c *Client) maintain(lost <-chan error) {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case err := <-lost:
			c.mu.Lock()
			c.pc = nil
			c.mu.Unlock()
			c.logger.Warn("mqtt connection lost", zap.Error(err))
		}

		var ok bool
		lost, ok = c.reconnect()
		if !ok {
			return
		}
	}
}

// reconnect retries until a session is up or Disconnect is called.
func (c *Client) reconnect() (<-chan error, bool) {
	backoff := minBackoff
	for {
		timer := time.NewTimer(backoff)
		select {
		case <-c.done:
			timer.Stop()
			return nil, false
		case <-timer.C:
		}

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			select {
			case <-c.done:
				cancel()
			case <-ctx.Done():
			}
		}()
		lost, err := c.connect(ctx)
		cancel()
		if err == nil {
			return lost, true
		}
		c.logger.Warn("mqtt reconnect failed", zap.Duration("backoff", backoff), zap.Error(err))
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
