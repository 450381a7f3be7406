// internal/history/influx.go
package history

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"

	"github.com/NoahEritier/Smart-Home-IoT/internal/config"
)

// LineWriter is the part of the InfluxDB blocking write API the sink uses.
type LineWriter interface {
	WriteRecord(ctx context.Context, line ...string) error
}

var _ LineWriter = (api.WriteAPIBlocking)(nil)

// InfluxSink mirrors history records into InfluxDB as line protocol: one
// smarthome_room point per record and one smarthome_device point per device.
type InfluxSink struct {
	writer LineWriter
	close  func()
}

// NewInfluxSink connects to the configured InfluxDB bucket.
func NewInfluxSink(cfg config.Influx) *InfluxSink {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxSink{writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket), close: client.Close}
}

func NewInfluxSinkWithWriter(w LineWriter) *InfluxSink {
	return &InfluxSink{writer: w}
}

func (s *InfluxSink) Write(ctx context.Context, rec Record) error {
	if err := s.writer.WriteRecord(ctx, Lines(rec)...); err != nil {
		return fmt.Errorf("writing to influxdb: %w", err)
	}
	return nil
}

func (s *InfluxSink) Close() {
	if s.close != nil {
		s.close()
	}
}

var tagEscaper = strings.NewReplacer(",", `\,`, " ", `\ `, "=", `\=`)

// Lines renders rec as InfluxDB line protocol with nanosecond timestamps.
func Lines(rec Record) []string {
	ts := strconv.FormatInt(rec.TS.UnixNano(), 10)
	room := tagEscaper.Replace(rec.Room)
	lines := make([]string, 0, 1+len(rec.Devices))
	lines = append(lines, fmt.Sprintf("smarthome_room,room=%s temperature=%s,humidity=%s,co2=%s,power=%s,leak=%t,away=%t %s",
		room, num(rec.Temperature), num(rec.Humidity), num(rec.Co2), num(rec.Power), rec.Leak, rec.Away, ts))
	for _, d := range rec.Devices {
		lines = append(lines, fmt.Sprintf("smarthome_device,room=%s,device=%s value=%s,expected=%s,active=%t %s",
			room, tagEscaper.Replace(d.Device), num(d.Value), num(d.Expected), d.Active, ts))
	}
	return lines
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
