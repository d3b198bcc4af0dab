package sinks

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/Ramsey-B/fern/pkg/models"
)

// JSONLSink writes one JSON object per decision per line
type JSONLSink struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
}

// NewJSONLSink wraps a writer. It is closed with the sink when it is an io.Closer.
func NewJSONLSink(w io.Writer) *JSONLSink {
	s := &JSONLSink{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// OpenJSONLFile creates or truncates path; "-" writes to stdout
func OpenJSONLFile(path string) (*JSONLSink, error) {
	if path == "" || path == "-" {
		return &JSONLSink{w: bufio.NewWriter(os.Stdout)}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", path)
	}
	return NewJSONLSink(f), nil
}

func (s *JSONLSink) Name() string {
	return "jsonl"
}

func (s *JSONLSink) Write(_ context.Context, decisions []models.MatchDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	enc := json.NewEncoder(s.w)
	for _, d := range decisions {
		if err := enc.Encode(d); err != nil {
			return errors.Wrapf(err, "failed to encode decision %s", d.ID)
		}
	}
	return errors.Wrap(s.w.Flush(), "failed to flush decisions")
}

func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.w.Flush(); err != nil {
		return err
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
