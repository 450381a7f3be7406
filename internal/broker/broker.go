// internal/broker/broker.go
package broker

import (
	"fmt"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"go.uber.org/zap"
)

// Server is an in-process MQTT broker for local runs without a public broker.
type Server struct {
	mochi  *mochi.Server
	logger *zap.Logger
}

// Start serves MQTT on addr and, when wsAddr is set, MQTT over websockets.
// Every client is allowed; the broker has no authentication.
func Start(addr, wsAddr string, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := mochi.New(nil)
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("adding allow hook: %w", err)
	}

	tcp := listeners.NewTCP(listeners.Config{Type: "tcp", ID: "tcp", Address: addr})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("adding tcp listener on %s: %w", addr, err)
	}
	if wsAddr != "" {
		ws := listeners.NewWebsocket(listeners.Config{Type: "ws", ID: "ws", Address: wsAddr})
		if err := server.AddListener(ws); err != nil {
			return nil, fmt.Errorf("adding websocket listener on %s: %w", wsAddr, err)
		}
	}

	if err := server.Serve(); err != nil {
		return nil, fmt.Errorf("starting broker: %w", err)
	}
	logger.Info("embedded broker listening", zap.String("tcp", addr), zap.String("ws", wsAddr))
	return &Server{mochi: server, logger: logger}, nil
}

func (s *Server) Close() error {
	s.logger.Info("embedded broker stopping")
	return s.mochi.Close()
}
