package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NoahEritier/Smart-Home-IoT/internal/history"
	"github.com/NoahEritier/Smart-Home-IoT/internal/metrics"
)

func TestHistoryRoutes(t *testing.T) {
	store := history.NewFileStore(t.TempDir(), zap.NewNop())
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, room := range []string{"cocina", "bano"} {
		require.NoError(t, store.Write(context.Background(), history.Record{TS: ts, Room: room, Devices: []history.DeviceRecord{}}))
	}
	h := NewHistoryHandler(store, "smart-home-iot-simulator", "tcp://localhost:1883", nil)
	h.now = func() time.Time { return ts }
	reg := prometheus.NewRegistry()
	metrics.New(reg).ObservePublish("sensor", nil)
	router := SetupHistoryRouter(h, reg)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"smart-home-iot-simulator","broker":"tcp://localhost:1883","time":"2025-03-01T10:00:00Z"}`, rec.Body.String())

	rec = get("/history/2025-03-01?room=bano")
	require.Equal(t, http.StatusOK, rec.Code)
	var records []history.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "bano", records[0].Room)

	rec = get("/history/2025-02-28")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = get("/history/01-03-2025")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get("/history/today")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get("/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `smarthome_published_total{kind="sensor"} 1`)
}
