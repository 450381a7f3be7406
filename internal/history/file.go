// internal/history/file.go
package history

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileStore appends records as NDJSON to one file per UTC day,
// <dir>/YYYY-MM-DD.ndjson.
type FileStore struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time
	mu     sync.Mutex
}

func NewFileStore(dir string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{dir: dir, logger: logger, now: time.Now}
}

func (s *FileStore) path(day time.Time) string {
	return filepath.Join(s.dir, day.UTC().Format(DateLayout)+".ndjson")
}

// Write appends rec to the file of the day of rec.TS.
func (s *FileStore) Write(_ context.Context, rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding history record: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating history dir: %w", err)
	}
	f, err := os.OpenFile(s.path(rec.TS), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening history file: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("appending history record: %w", err)
	}
	return f.Close()
}

// Read returns the records of date, optionally restricted to room. A day
// without a file has no records. Lines that fail to decode are skipped.
func (s *FileStore) Read(date, room string) ([]Record, error) {
	day, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	return s.read(day, room)
}

// Today returns the records of the current UTC day.
func (s *FileStore) Today(room string) ([]Record, error) {
	return s.read(s.now(), room)
}

func (s *FileStore) read(day time.Time, room string) ([]Record, error) {
	records := []Record{}
	f, err := os.Open(s.path(day))
	if errors.Is(err, fs.ErrNotExist) {
		return records, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening history file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			s.logger.Warn("skipping bad history line", zap.String("file", f.Name()), zap.Int("line", lineNo), zap.Error(err))
			continue
		}
		if room != "" && rec.Room != room {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading history file: %w", err)
	}
	return records, nil
}
