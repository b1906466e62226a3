package metrics

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/fleetsim/core/events"
	"github.com/kilianp07/fleetsim/core/factory"
)

type recordingSink struct {
	ticks    []int
	stations []string
	fail     bool
}

func (r *recordingSink) RecordTick(s TickSnapshot) error {
	r.ticks = append(r.ticks, s.Tick)
	if r.fail {
		return errors.New("boom")
	}
	return nil
}

func (r *recordingSink) RecordStationEvent(e events.StationTransition) error {
	r.stations = append(r.stations, e.StationID)
	return nil
}

type tickOnly struct{ n int }

func (t *tickOnly) RecordTick(TickSnapshot) error { t.n++; return nil }

func TestDecodeSinksYAMLAndJSON(t *testing.T) {
	yml := []byte("sinks:\n  - type: nop\n  - type: nop\n    conf:\n      url: http://x\nprometheus_addr: \":2112\"\n")
	var fromYAML struct {
		Sinks []struct {
			Type string         `yaml:"type"`
			Conf map[string]any `yaml:"conf"`
		} `yaml:"sinks"`
		PrometheusAddr string `yaml:"prometheus_addr"`
	}
	require.NoError(t, yaml.Unmarshal(yml, &fromYAML))
	require.Len(t, fromYAML.Sinks, 2)
	assert.Equal(t, ":2112", fromYAML.PrometheusAddr)

	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(`{"sinks":[{"type":"nop"}],"prometheus_addr":":9000"}`), &cfg))
	assert.Equal(t, "nop", cfg.Sinks[0].Type)
	assert.Equal(t, ":9000", cfg.PrometheusAddr)
}

func TestNewSink(t *testing.T) {
	s, err := NewSink(nil)
	require.NoError(t, err)
	assert.IsType(t, NopSink{}, s)

	s, err = NewSink([]factory.ModuleConfig{{Type: "nop"}})
	require.NoError(t, err)
	assert.IsType(t, NopSink{}, s)

	s, err = NewSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "nop"}})
	require.NoError(t, err)
	multi, ok := s.(*MultiSink)
	require.True(t, ok)
	assert.Len(t, multi.Sinks(), 2)

	_, err = NewSink([]factory.ModuleConfig{{Type: "missing"}})
	assert.ErrorContains(t, err, "missing")
	assert.Contains(t, SinkTypes(), "nop")
}

func TestMultiSinkFanOut(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{fail: true}
	c := &tickOnly{}
	m := NewMultiSink(a, b, c)

	err := m.RecordTick(TickSnapshot{Tick: 3})
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, []int{3}, a.ticks)
	assert.Equal(t, []int{3}, b.ticks)
	assert.Equal(t, 1, c.n)

	require.NoError(t, m.RecordStationEvent(events.StationTransition{StationID: "S1"}))
	assert.Equal(t, []string{"S1"}, a.stations)
	require.NoError(t, m.RecordAssignment(events.RequestAssigned{RequestID: "r"}))
}

type closingSink struct{ closed int }

func (c *closingSink) RecordTick(TickSnapshot) error { return nil }
func (c *closingSink) Close()                        { c.closed++ }

var closing = &closingSink{}

func init() {
	_ = RegisterSink("closing-test", func(map[string]any) (Sink, error) { return closing, nil })
}

func TestNewSinkClosesBuiltOnFailure(t *testing.T) {
	before := closing.closed
	_, err := NewSink([]factory.ModuleConfig{{Type: "closing-test"}, {Type: "missing"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, factory.ErrUnknownType)
	assert.Contains(t, err.Error(), "metrics sink 1")
	assert.Equal(t, before+1, closing.closed)
}
