package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func record(room string, ts time.Time) Record {
	return Record{
		TS:          ts,
		Room:        room,
		Temperature: 21.4,
		Humidity:    55.2,
		Co2:         640,
		Power:       300,
		Devices:     []DeviceRecord{{Device: "pc", Value: 260, Expected: 250, Active: true}},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, zap.NewNop())
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Write(context.Background(), record("cocina", ts)))
	require.NoError(t, store.Write(context.Background(), record("jardin", ts.Add(30*time.Second))))

	_, err := os.Stat(filepath.Join(dir, "2025-03-01.ndjson"))
	require.NoError(t, err)

	all, err := store.Read("2025-03-01", "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "cocina", all[0].Room)
	assert.True(t, all[0].TS.Equal(ts))
	assert.Equal(t, []DeviceRecord{{Device: "pc", Value: 260, Expected: 250, Active: true}}, all[0].Devices)

	jardin, err := store.Read("2025-03-01", "jardin")
	require.NoError(t, err)
	require.Len(t, jardin, 1)
	assert.Equal(t, "jardin", jardin[0].Room)
}

func TestFileStoreReadMissingDay(t *testing.T) {
	store := NewFileStore(t.TempDir(), nil)
	records, err := store.Read("2024-12-31", "")
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestFileStoreRejectsMalformedDate(t *testing.T) {
	store := NewFileStore(t.TempDir(), nil)
	for _, date := range []string{"2025-3-1", "today", "2025-13-01", "../etc/passwd"} {
		_, err := store.Read(date, "")
		assert.ErrorIs(t, err, ErrInvalidDate, date)
	}
}

func TestFileStoreSkipsBadLines(t *testing.T) {
	dir := t.TempDir()
	content := `{"ts":"2025-03-01T10:00:00Z","room":"bano","leak":true,"devices":[]}
not json

{"ts":"2025-03-01T10:00:30Z","room":"bano","leak":false,"devices":[]}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2025-03-01.ndjson"), []byte(content), 0o644))

	records, err := NewFileStore(dir, nil).Read("2025-03-01", "bano")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.True(t, records[0].Leak)
}

func TestFileStoreToday(t *testing.T) {
	store := NewFileStore(t.TempDir(), nil)
	now := time.Date(2025, 6, 2, 23, 59, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	require.NoError(t, store.Write(context.Background(), record("pc", now)))

	records, err := store.Today("")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

type lineRecorder struct {
	lines []string
	err   error
}

func (l *lineRecorder) WriteRecord(_ context.Context, line ...string) error {
	l.lines = append(l.lines, line...)
	return l.err
}

func TestInfluxSinkWritesLineProtocol(t *testing.T) {
	w := &lineRecorder{}
	sink := NewInfluxSinkWithWriter(w)
	ts := time.Unix(1700000000, 0).UTC()
	rec := record("sala de estar", ts)
	rec.Leak = true

	require.NoError(t, sink.Write(context.Background(), rec))
	require.Len(t, w.lines, 2)
	assert.Equal(t, `smarthome_room,room=sala\ de\ estar temperature=21.4,humidity=55.2,co2=640,power=300,leak=true,away=false 1700000000000000000`, w.lines[0])
	assert.Equal(t, `smarthome_device,room=sala\ de\ estar,device=pc value=260,expected=250,active=true 1700000000000000000`, w.lines[1])
}

func TestMultiSinkJoinsErrors(t *testing.T) {
	failing := &lineRecorder{err: errors.New("influx down")}
	ok := NewFileStore(t.TempDir(), nil)
	sinks := MultiSink{ok, NewInfluxSinkWithWriter(failing)}

	err := sinks.Write(context.Background(), record("cocina", time.Now()))
	assert.ErrorIs(t, err, failing.err)
	records, readErr := ok.Today("cocina")
	require.NoError(t, readErr)
	assert.Len(t, records, 1)
}
