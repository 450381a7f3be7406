package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/NoahEritier/Smart-Home-IoT/internal/history"
)

// HistoryReader serves stored history records.
type HistoryReader interface {
	Read(date, room string) ([]history.Record, error)
	Today(room string) ([]history.Record, error)
}

// HistoryHandler serves the simulator's health and history endpoints.
type HistoryHandler struct {
	store     HistoryReader
	service   string
	brokerURL string
	logger    *zap.Logger
	now       func() time.Time
}

func NewHistoryHandler(store HistoryReader, service, brokerURL string, logger *zap.Logger) *HistoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryHandler{store: store, service: service, brokerURL: brokerURL, logger: logger, now: time.Now}
}

func (h *HistoryHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": h.service,
		"broker":  h.brokerURL,
		"time":    h.now().UTC().Format(time.RFC3339),
	})
}

func (h *HistoryHandler) Today(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.Today(r.URL.Query().Get("room"))
	h.respond(w, records, err)
}

func (h *HistoryHandler) ByDate(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.Read(chi.URLParam(r, "date"), r.URL.Query().Get("room"))
	h.respond(w, records, err)
}

func (h *HistoryHandler) respond(w http.ResponseWriter, records []history.Record, err error) {
	switch {
	case errors.Is(err, history.ErrInvalidDate):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.logger.Error("reading history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history unavailable")
	default:
		writeJSON(w, http.StatusOK, records)
	}
}
