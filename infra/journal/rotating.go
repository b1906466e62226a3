package journal

import (
	"context"
	"encoding/json"

	"gopkg.in/natefinch/lumberjack.v2"
)

// RotatingStore writes a JSONL journal that rolls over by size.
type RotatingStore struct {
	logger *lumberjack.Logger
	path   string
}

// NewRotatingStore creates a store with rotation options in megabytes and days.
func NewRotatingStore(path string, maxSizeMB, maxBackups, maxAgeDays int, compress bool) (*RotatingStore, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   compress,
	}
	return &RotatingStore{logger: lj, path: path}, nil
}

// Append writes the record and triggers rotation if needed.
func (s *RotatingStore) Append(_ context.Context, rec Record) error {
	return json.NewEncoder(s.logger).Encode(rec)
}

// Query reads the live file and every uncompressed backup.
func (s *RotatingStore) Query(ctx context.Context, q Query) ([]Record, error) {
	return Read(ctx, s.path, q)
}

// Rotate closes the current file and starts a new one.
func (s *RotatingStore) Rotate() error { return s.logger.Rotate() }

func (s *RotatingStore) Close() error { return s.logger.Close() }
