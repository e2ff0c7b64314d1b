package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineDefaults(t *testing.T) {
	cfg := NewDefaultPipeline()

	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Equal(t, []string{"P_16mmh", "P_20mmh", "P_24mmh", "P_40mmh"}, cfg.Scenarios)
	assert.Equal(t, OrderSizeAsc, cfg.Order)
	assert.True(t, cfg.SkipExisting)
	assert.InDelta(t, 30.0, cfg.Resolution, 1e-9)
}

func TestPipelineParseConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "pipeline.yaml")

	contents := `
input-root: /data/fires
years: ["2020", "2021"]
workers: 3
order: size-desc
scenarios: [P_24mmh]
await-timeout: 2m
`
	require.NoError(t, os.WriteFile(cfgFile, []byte(contents), 0644))

	cfg := NewDefaultPipeline()
	require.NoError(t, cfg.ParseConfigFile(cfgFile))

	assert.Equal(t, "/data/fires", cfg.InputRoot)
	assert.Equal(t, []string{"2020", "2021"}, cfg.Years)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, OrderSizeDesc, cfg.Order)
	assert.Equal(t, []string{"P_24mmh"}, cfg.Scenarios)
	assert.Equal(t, Duration("2m"), cfg.AwaitTimeout)

	// untouched fields keep their defaults
	assert.Equal(t, "output", cfg.OutputRoot)
	assert.Equal(t, DefaultWildcatBin, cfg.WildcatBin)
}

func TestPipelineValidate(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		mutate  func(*Pipeline)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(p *Pipeline) { p.InputRoot = dir },
		},
		{
			name:    "missing input root",
			mutate:  func(p *Pipeline) { p.InputRoot = "" },
			wantErr: "input-root is required",
		},
		{
			name:    "input root does not exist",
			mutate:  func(p *Pipeline) { p.InputRoot = filepath.Join(dir, "nope") },
			wantErr: "input-root",
		},
		{
			name: "bad order",
			mutate: func(p *Pipeline) {
				p.InputRoot = dir
				p.Order = "biggest-first"
			},
			wantErr: "order must be one of",
		},
		{
			name: "bad await timeout",
			mutate: func(p *Pipeline) {
				p.InputRoot = dir
				p.AwaitTimeout = "soon"
			},
			wantErr: "await-timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultPipeline()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
