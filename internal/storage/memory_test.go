package storage

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NoahEritier/Smart-Home-IoT/internal/data"
)

func event(i int) data.Event {
	return data.Event{
		Kind:   data.KindTemperature,
		Topic:  "home/cocina/sensor/temperature",
		Sensor: &data.SensorReading{Type: "temperature", Value: float64(i), Location: "cocina", DeviceID: strconv.Itoa(i)},
	}
}

func values(events []data.Event) []float64 {
	out := make([]float64, len(events))
	for i, ev := range events {
		out[i] = ev.Sensor.Value
	}
	return out
}

func TestEventLogKeepsLastCapacityInOrder(t *testing.T) {
	for _, total := range []int{0, 1, 4, 5, 6, 11, 23} {
		t.Run(strconv.Itoa(total), func(t *testing.T) {
			const capacity = 5
			log := NewEventLog(capacity)
			for i := 0; i < total; i++ {
				log.Append(event(i))
			}

			snap := log.Snapshot()
			require.LessOrEqual(t, len(snap), capacity)

			kept := total
			if kept > capacity {
				kept = capacity
			}
			want := make([]float64, 0, kept)
			for i := total - kept; i < total; i++ {
				want = append(want, float64(i))
			}
			assert.Equal(t, want, values(snap))
			assert.Equal(t, kept, log.Len())
			assert.Equal(t, uint64(total), log.Appended())
		})
	}
}

func TestEventLogDefaultCapacity(t *testing.T) {
	log := NewEventLog(0)
	assert.Equal(t, DefaultCapacity, log.Capacity())

	for i := 0; i < DefaultCapacity+50; i++ {
		log.Append(event(i))
	}
	snap := log.Snapshot()
	require.Len(t, snap, DefaultCapacity)
	assert.Equal(t, 50.0, snap[0].Sensor.Value)
	assert.Equal(t, float64(DefaultCapacity+49), snap[len(snap)-1].Sensor.Value)
}

func TestEventLogKeepsDuplicates(t *testing.T) {
	log := NewEventLog(10)
	log.Append(event(1))
	log.Append(event(1))
	log.Append(event(1))
	assert.Equal(t, []float64{1, 1, 1}, values(log.Snapshot()))
}

func TestEventLogEvictCallback(t *testing.T) {
	var evicted []float64
	log := NewEventLog(2, WithEvictCallback(func(ev data.Event) {
		evicted = append(evicted, ev.Sensor.Value)
	}))
	for i := 0; i < 5; i++ {
		log.Append(event(i))
	}
	assert.Equal(t, []float64{0, 1, 2}, evicted)
}

func TestEventLogGetRecent(t *testing.T) {
	log := NewEventLog(4)
	for i := 0; i < 6; i++ {
		log.Append(event(i))
	}
	assert.Equal(t, []float64{4, 5}, values(log.GetRecent(2)))
	assert.Equal(t, []float64{2, 3, 4, 5}, values(log.GetRecent(10)))
	assert.Equal(t, []float64{2, 3, 4, 5}, values(log.GetRecent(-1)))
}

func TestEventLogSnapshotIsACopy(t *testing.T) {
	log := NewEventLog(3)
	log.Append(event(1))
	snap := log.Snapshot()
	snap[0] = event(99)
	assert.Equal(t, []float64{1}, values(log.Snapshot()))
}
