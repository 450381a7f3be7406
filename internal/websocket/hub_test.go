package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	return hub, cancel
}

func receive(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case msg := <-c.Send:
		var env Envelope
		require.NoError(t, json.Unmarshal(msg, &env))
		return env
	case <-time.After(time.Second):
		t.Fatal("no message")
	}
	return Envelope{}
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	hub, cancel := startHub(t)
	defer cancel()

	a, b := NewClient(hub, nil), NewClient(hub, nil)
	hub.RegisterClient(a)
	hub.RegisterClient(b)

	hub.BroadcastAlert(map[string]string{"key": "co2_max:cocina"})

	for _, c := range []*Client{a, b} {
		env := receive(t, c)
		assert.Equal(t, TypeAlert, env.Type)
		assert.Equal(t, map[string]interface{}{"key": "co2_max:cocina"}, env.Payload)
	}
	assert.Equal(t, 2, hub.ClientCount())
}

func TestSlowClientIsDropped(t *testing.T) {
	hub, cancel := startHub(t)
	defer cancel()

	slow := newClient(hub, nil, 1)
	hub.RegisterClient(slow)

	hub.BroadcastEvent("first")
	hub.BroadcastEvent("second")

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
	<-slow.Done()
}

func TestRunClosesClientsOnShutdown(t *testing.T) {
	hub, cancel := startHub(t)
	c := NewClient(hub, nil)
	hub.RegisterClient(c)
	cancel()

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("client not stopped")
	}
	assert.False(t, c.SendMessage(TypeView, nil, time.Second))
}

func TestSendMessage(t *testing.T) {
	hub := NewHub(zap.NewNop())
	c := newClient(hub, nil, 1)

	assert.True(t, c.SendMessage(TypeView, map[string]string{"room": "bano"}, 10*time.Millisecond))
	assert.False(t, c.SendMessage(TypeView, nil, 10*time.Millisecond))
	assert.Equal(t, TypeView, receive(t, c).Type)

	c.stop()
	assert.False(t, c.SendMessage(TypeView, nil, 10*time.Millisecond))
}

func TestSendMessageDuringShutdown(t *testing.T) {
	hub, cancel := startHub(t)
	clients := make([]*Client, 8)
	for i := range clients {
		clients[i] = newClient(hub, nil, 1)
		hub.RegisterClient(clients[i])
	}

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				c.SendMessage(TypeEvent, i, time.Millisecond)
				hub.BroadcastEvent(i)
			}
		}(c)
	}
	cancel()
	wg.Wait()

	for _, c := range clients {
		<-c.Done()
		assert.False(t, c.SendMessage(TypeEvent, "late", 10*time.Millisecond))
	}
}

func TestClientRoom(t *testing.T) {
	c := NewClient(NewHub(nil), nil)
	assert.Equal(t, "", c.Room())
	c.SetRoom("jardin")
	assert.Equal(t, "jardin", c.Room())
}
