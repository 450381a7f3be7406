package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	gwebsocket "github.com/gorilla/websocket" // Alias to avoid name conflict
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/NoahEritier/Smart-Home-IoT/internal/alerting"
	"github.com/NoahEritier/Smart-Home-IoT/internal/command"
	"github.com/NoahEritier/Smart-Home-IoT/internal/config"
	"github.com/NoahEritier/Smart-Home-IoT/internal/data"
	"github.com/NoahEritier/Smart-Home-IoT/internal/projection"
	"github.com/NoahEritier/Smart-Home-IoT/internal/reducer"
	"github.com/NoahEritier/Smart-Home-IoT/internal/websocket"
)

const (
	initialHistory = 100
	sendTimeout    = 5 * time.Second
	commandTimeout = 5 * time.Second
)

var upgrader = gwebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // The dashboard is unauthenticated.
}

type APIHandler struct {
	reducer  *reducer.Reducer
	alerter  *alerting.Alerter
	hub      *websocket.Hub
	limiter  *rate.Limiter
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	rooms    []string
	webDir   string
}

func NewAPIHandler(r *reducer.Reducer, alerter *alerting.Alerter, hub *websocket.Hub, cfg config.Dashboard, gatherer prometheus.Gatherer, logger *zap.Logger) *APIHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	burst := cfg.CommandBurst
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(cfg.CommandRate)
	if cfg.CommandRate <= 0 {
		limit = rate.Inf
	}
	h := &APIHandler{
		reducer:  r,
		alerter:  alerter,
		hub:      hub,
		limiter:  rate.NewLimiter(limit, burst),
		gatherer: gatherer,
		logger:   logger,
		rooms:    cfg.Rooms,
		webDir:   cfg.WebDir,
	}
	r.Subscribe(h.onEvent)
	return h
}

// onEvent pushes every ingested event and the updated room view to the browsers.
func (h *APIHandler) onEvent(ev data.Event) {
	h.hub.BroadcastEvent(ev)
	if room := ev.Room(); room != "" {
		h.hub.BroadcastView(h.view(room))
	}
}

// view evaluates the room and passes its alerts through the alerter, which
// announces new ones and hides expired or dismissed ones.
func (h *APIHandler) view(room string) reducer.View {
	v := h.reducer.RoomView(room)
	v.Alerts = h.alerter.ProcessAlerts(room, v.Alerts)
	return v
}

func (h *APIHandler) GetRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"rooms": h.reducer.Rooms()})
}

func (h *APIHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")
	if !data.ValidSegment(room) {
		writeError(w, http.StatusBadRequest, "invalid room")
		return
	}
	v := h.view(room)
	v.Devices = projection.FilterDevices(v.Devices, projection.Filter(r.URL.Query().Get("devices")))
	writeJSON(w, http.StatusOK, v)
}

func (h *APIHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	room, kind := chi.URLParam(r, "room"), chi.URLParam(r, "kind")
	if !data.ValidSegment(room) || !data.ValidSegment(kind) {
		writeError(w, http.StatusBadRequest, "invalid room or sensor type")
		return
	}
	series := h.reducer.Series(room, kind)
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if len(series) > limit {
			series = series[len(series)-limit:]
		}
	}
	if series == nil {
		series = []data.SensorReading{}
	}
	writeJSON(w, http.StatusOK, series)
}

func (h *APIHandler) GetLeaks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.reducer.Leaks())
}

type awayRequest struct {
	Value *bool `json:"value"`
}

// PostAway sets away mode to the requested value, or toggles it when the body
// has no value.
func (h *APIHandler) PostAway(w http.ResponseWriter, r *http.Request) {
	var req awayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "body must be {\"value\": bool}")
		return
	}
	var (
		desired bool
		err     error
	)
	if req.Value != nil {
		desired = *req.Value
		err = h.reducer.SetAway(r.Context(), desired)
	} else {
		desired, err = h.reducer.ToggleAway(r.Context())
	}
	if err != nil {
		h.commandError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"requested": desired})
}

func (h *APIHandler) PostToggleDevice(w http.ResponseWriter, r *http.Request) {
	room, device := chi.URLParam(r, "room"), chi.URLParam(r, "device")
	desired, err := h.reducer.ToggleDevice(r.Context(), room, device)
	if err != nil {
		h.commandError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"room": room, "device": device, "requested": desired})
}

type dismissRequest struct {
	Key string `json:"key"`
}

func (h *APIHandler) PostDismiss(w http.ResponseWriter, r *http.Request) {
	var req dismissRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		writeError(w, http.StatusBadRequest, "body must be {\"key\": string}")
		return
	}
	if !h.alerter.Dismiss(req.Key) {
		writeError(w, http.StatusNotFound, "no such alert")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"dismissed": true})
}

func (h *APIHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": h.hub.ClientCount(),
		"events":  len(h.reducer.Events()),
	})
}

func (h *APIHandler) commandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reducer.ErrUnknownDevice):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, command.ErrInvalidTarget):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Warn("command not delivered", zap.Error(err))
		writeError(w, http.StatusBadGateway, "command could not be published")
	}
}

// rateLimited rejects requests beyond the configured command rate.
func (h *APIHandler) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "too many commands, slow down")
			return
		}
		next(w, r)
	}
}

// HandleWebSocket upgrades connections and registers clients with the hub
func (h *APIHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade error", zap.Error(err))
		return
	}

	client := websocket.NewClient(h.hub, conn)
	if len(h.rooms) > 0 {
		client.SetRoom(h.rooms[0])
	}
	h.hub.RegisterClient(client)

	go client.WritePump()
	go client.ReadPump(h.handleInbound)

	go h.sendInitialData(client)
}

// sendInitialData sends recent events and the selected room to a newly connected client
func (h *APIHandler) sendInitialData(client *websocket.Client) {
	client.SendMessage(websocket.TypeHistory, h.reducer.Recent(initialHistory), sendTimeout)
	if room := client.Room(); room != "" {
		client.SendMessage(websocket.TypeView, h.view(room), sendTimeout)
	}
}

func (h *APIHandler) handleInbound(c *websocket.Client, in websocket.Inbound) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	room := in.Room
	if room == "" {
		room = c.Room()
	}

	var err error
	switch in.Type {
	case "select_room":
		if !data.ValidSegment(room) {
			c.SendMessage(websocket.TypeError, "invalid room", sendTimeout)
			return
		}
		c.SetRoom(room)
	case "toggle_device", "toggle_away", "set_away":
		if !h.limiter.Allow() {
			c.SendMessage(websocket.TypeError, "too many commands, slow down", sendTimeout)
			return
		}
		switch in.Type {
		case "toggle_device":
			_, err = h.reducer.ToggleDevice(ctx, room, in.Device)
		case "toggle_away":
			_, err = h.reducer.ToggleAway(ctx)
		case "set_away":
			if in.Value == nil {
				c.SendMessage(websocket.TypeError, "set_away needs a value", sendTimeout)
				return
			}
			err = h.reducer.SetAway(ctx, *in.Value)
		}
	case "dismiss":
		h.alerter.Dismiss(in.Key)
	default:
		c.SendMessage(websocket.TypeError, "unknown request "+in.Type, sendTimeout)
		return
	}
	if err != nil {
		h.logger.Warn("websocket command failed", zap.String("type", in.Type), zap.Error(err))
		c.SendMessage(websocket.TypeError, err.Error(), sendTimeout)
		return
	}
	if r := c.Room(); r != "" {
		c.SendMessage(websocket.TypeView, h.view(r), sendTimeout)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
