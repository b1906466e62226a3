package factory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sinkConf struct {
	URL      string `json:"url"`
	Interval int    `json:"interval"`
	Pacing   struct {
		Enabled bool `json:"enabled"`
	} `json:"pacing"`
}

type fakeSink struct{ conf sinkConf }

func registry(t *testing.T) *Registry[*fakeSink] {
	t.Helper()
	reg := NewRegistry[*fakeSink]()
	require.NoError(t, reg.Register("influx", func(conf map[string]any) (*fakeSink, error) {
		var c sinkConf
		if err := DecodeStrict(conf, &c); err != nil {
			return nil, err
		}
		return &fakeSink{conf: c}, nil
	}))
	require.NoError(t, reg.Register("nop", func(map[string]any) (*fakeSink, error) { return &fakeSink{}, nil }))
	return reg
}

func TestRegistryCreate(t *testing.T) {
	reg := registry(t)
	s, err := reg.Create(ModuleConfig{Type: "influx", Conf: map[string]any{
		"url":      "http://db:8086",
		"interval": "5",
		"pacing":   map[string]any{"enabled": "true"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "http://db:8086", s.conf.URL)
	assert.Equal(t, 5, s.conf.Interval)
	assert.True(t, s.conf.Pacing.Enabled)
}

func TestRegistryErrors(t *testing.T) {
	reg := registry(t)
	assert.Error(t, reg.Register("nop", func(map[string]any) (*fakeSink, error) { return nil, nil }))
	assert.Error(t, reg.Register("other", nil))
	assert.Error(t, reg.Register("", func(map[string]any) (*fakeSink, error) { return nil, nil }))

	_, err := reg.Create(ModuleConfig{Type: "carrier-pigeon"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownType))
	assert.Contains(t, err.Error(), "[influx nop]")

	_, err = reg.Create(ModuleConfig{Type: "influx", Conf: map[string]any{"uri": "http://db"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "influx: ")
	assert.Contains(t, err.Error(), "uri")
}

func TestDecodeIgnoresUnknownKeys(t *testing.T) {
	var c sinkConf
	require.NoError(t, Decode(map[string]any{"url": "x", "extra": 1}, &c))
	assert.Equal(t, "x", c.URL)
	assert.Error(t, DecodeStrict(map[string]any{"url": "x", "extra": 1}, &c))
}
