package capture

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// SinkConfig configures the optional append-only persistence sink: one JSON
// object per line, either the full record or the projected field subset.
type SinkConfig struct {
	Path       string
	Fields     []string // projection; empty persists the full record
	FlushEvery bool     // sync after each write, trading throughput for durability
	Compress   bool     // zstd-compress the stream
}

type sink struct {
	mu     sync.Mutex
	file   *os.File
	zw     *zstd.Encoder
	w      *bufio.Writer
	fields []string
	flush  bool
	closed bool
}

func newSink(cfg SinkConfig) (*sink, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	s := &sink{file: f, fields: cfg.Fields, flush: cfg.FlushEvery}
	var out io.Writer = f
	if cfg.Compress {
		zw, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		s.zw = zw
		out = zw
	}
	s.w = bufio.NewWriter(out)
	return s, nil
}

// write appends one line-delimited JSON record. Writes after close are
// silently dropped; the engine is already shutting down.
func (s *sink) write(rec Record) error {
	line, err := s.encode(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if _, err := s.w.Write(line); err != nil {
		return err
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return err
	}
	if s.flush {
		if err := s.w.Flush(); err != nil {
			return err
		}
		if s.zw == nil {
			return s.file.Sync()
		}
	}
	return nil
}

func (s *sink) encode(rec Record) ([]byte, error) {
	if len(s.fields) == 0 {
		return json.Marshal(rec)
	}
	// Project via the record's own JSON form so field names stay in one place.
	full, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(full, &m); err != nil {
		return nil, err
	}
	projected := make(map[string]json.RawMessage, len(s.fields))
	for _, f := range s.fields {
		if v, ok := m[f]; ok {
			projected[f] = v
		}
	}
	return json.Marshal(projected)
}

func (s *sink) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if err := s.w.Flush(); err != nil {
		firstErr = err
	}
	if s.zw != nil {
		if err := s.zw.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return fmt.Errorf("close capture sink: %w", firstErr)
	}
	return nil
}
