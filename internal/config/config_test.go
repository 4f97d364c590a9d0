package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pagemark/internal/extract"
	"github.com/JakeFAU/pagemark/internal/render"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pagemark.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	v, err := NewViper(writeConfig(t, "{}\n"), nil)
	require.NoError(t, err)

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "./output", cfg.Output.Root)
	assert.Equal(t, "md", cfg.Output.Extension)
	assert.Equal(t, 3, cfg.Pipeline.MaxRetries)
	assert.Equal(t, time.Second, cfg.Pipeline.BackoffBase)
	assert.Equal(t, 3, cfg.Pipeline.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Render.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Render.SettleDelay)
	assert.Equal(t, render.DefaultUserAgent, cfg.Render.UserAgent)
	assert.Equal(t, 1920, cfg.Render.WindowWidth)
	assert.True(t, cfg.Render.Headless)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Summary.Format)
	assert.Empty(t, cfg.Metrics.Addr)
	assert.Equal(t, DefaultTargets(), cfg.Targets)
}

func TestLoadWithFileOverrides(t *testing.T) {
	path := writeConfig(t, `
output:
  dir: /tmp/docs
  extension: markdown
pipeline:
  max_retries: 5
  backoff_base: 250ms
  concurrency: 2
render:
  timeout: 10s
  settle_delay: 0s
  exec_path: /usr/bin/chromium
  headless: false
targets:
  - url: https://a.example/
    label: a
  - url: https://b.example/
    label: b
logging:
  development: true
  level: debug
metrics:
  addr: ":9090"
summary:
  file: out/summary.yaml
  format: YAML
`)
	v, err := NewViper(path, nil)
	require.NoError(t, err)

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/docs", cfg.Output.Root)
	assert.Equal(t, "markdown", cfg.Output.Extension)
	assert.Equal(t, 5, cfg.Pipeline.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.BackoffBase)
	assert.Equal(t, 10*time.Second, cfg.Render.Timeout)
	assert.Zero(t, cfg.Render.SettleDelay)
	assert.Equal(t, "/usr/bin/chromium", cfg.Render.ExecPath)
	assert.False(t, cfg.Render.Headless)
	assert.Equal(t, []extract.WorkItem{
		{URL: "https://a.example/", Label: "a"},
		{URL: "https://b.example/", Label: "b"},
	}, cfg.Targets)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.Equal(t, "yaml", cfg.Summary.Format)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PAGEMARK_PIPELINE_CONCURRENCY", "7")
	t.Setenv("PAGEMARK_RENDER_TIMEOUT", "45s")
	t.Setenv("PAGEMARK_OUTPUT_DIR", "/srv/out")

	v, err := NewViper(writeConfig(t, "{}\n"), nil)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Pipeline.Concurrency)
	assert.Equal(t, 45*time.Second, cfg.Render.Timeout)
	assert.Equal(t, "/srv/out", cfg.Output.Root)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := NewViper(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
	assert.Equal(t, extract.KindConfig, extract.KindOf(err))
}

func TestValidateRejects(t *testing.T) {
	valid := func() Config {
		v, err := NewViper(writeConfig(t, "{}\n"), nil)
		require.NoError(t, err)
		cfg, err := Load(v)
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero retries", mutate: func(c *Config) { c.Pipeline.MaxRetries = 0 }},
		{name: "zero concurrency", mutate: func(c *Config) { c.Pipeline.Concurrency = 0 }},
		{name: "negative backoff", mutate: func(c *Config) { c.Pipeline.BackoffBase = -time.Second }},
		{name: "zero timeout", mutate: func(c *Config) { c.Render.Timeout = 0 }},
		{name: "no output dir", mutate: func(c *Config) { c.Output.Root = " " }},
		{name: "bad summary format", mutate: func(c *Config) { c.Summary.Format = "xml" }},
		{name: "bad metrics addr", mutate: func(c *Config) { c.Metrics.Addr = "not an addr" }},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "loud" }},
		{name: "no targets", mutate: func(c *Config) { c.Targets = nil }},
		{name: "duplicate labels", mutate: func(c *Config) {
			c.Targets = []extract.WorkItem{
				{URL: "https://a.example/", Label: "same"},
				{URL: "https://b.example/", Label: "same"},
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, extract.KindConfig, extract.KindOf(err))
		})
	}
}

func TestValidateLeavesItemChecksToPipeline(t *testing.T) {
	v, err := NewViper(writeConfig(t, "targets:\n  - url: not-a-url\n    label: x\n"), nil)
	require.NoError(t, err)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Error(t, cfg.Targets[0].Validate())
}
