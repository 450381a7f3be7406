// Package history stores one record per room per simulator cycle and serves
// them back by day.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DateLayout is the YYYY-MM-DD form used in file names and URLs.
const DateLayout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")

type DeviceRecord struct {
	Device   string  `json:"device"`
	Value    float64 `json:"value"`
	Expected float64 `json:"expected"`
	Active   bool    `json:"active"`
}

// Record is the state of one room at the end of a publish cycle.
type Record struct {
	TS          time.Time      `json:"ts"`
	Room        string         `json:"room"`
	Away        bool           `json:"away"`
	Temperature float64        `json:"temperature"`
	Humidity    float64        `json:"humidity"`
	Co2         float64        `json:"co2"`
	Leak        bool           `json:"leak"`
	Power       float64        `json:"power"`
	Devices     []DeviceRecord `json:"devices"`
}

// Sink receives history records.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

// MultiSink writes to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ParseDate validates a YYYY-MM-DD string.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}
