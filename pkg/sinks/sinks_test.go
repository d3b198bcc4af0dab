package sinks_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/sinks"
)

type recordingSink struct {
	name    string
	err     error
	batches int
	closed  bool
}

func (s *recordingSink) Name() string { return s.name }
func (s *recordingSink) Write(context.Context, []models.MatchDecision) error {
	s.batches++
	return s.err
}
func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func silentLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestJSONLSink_WritesOneLinePerDecision(t *testing.T) {
	var buf bytes.Buffer
	sink := sinks.NewJSONLSink(&buf)

	decisions := []models.MatchDecision{
		{ID: "d1", RecordID: "p1", EntityType: models.EntityTypeRank, Status: models.DecisionStatusNoCandidates, Alternatives: []models.Alternative{}},
		{ID: "d2", RecordID: "p2", EntityType: models.EntityTypeRank, Status: models.DecisionStatusRejected, Alternatives: []models.Alternative{}},
	}
	require.NoError(t, sink.Write(context.Background(), decisions))
	require.NoError(t, sink.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first models.MatchDecision
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "d1", first.ID)
	assert.Nil(t, first.BestMatch)
}

func TestFanOut_TriesEverySink(t *testing.T) {
	failing := &recordingSink{name: "postgres", err: errors.New("connection reset")}
	healthy := &recordingSink{name: "kafka"}
	fan := sinks.NewFanOut(silentLogger(), failing)
	fan.Add(healthy)
	assert.Equal(t, 2, fan.Len())

	err := fan.Write(context.Background(), []models.MatchDecision{{ID: "d1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
	assert.Equal(t, 1, healthy.batches)

	require.NoError(t, fan.Write(context.Background(), nil))
	assert.Equal(t, 1, healthy.batches, "empty batches are not written")

	require.NoError(t, fan.Close())
	assert.True(t, failing.closed)
	assert.True(t, healthy.closed)
}
