package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsWhenNoFile(t *testing.T) {
	v, err := New(Options{
		Name:  "pagemark",
		Paths: []string{t.TempDir()},
		Defaults: func(v *viper.Viper) {
			v.SetDefault("output.dir", "./output")
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "./output", v.GetString("output.dir"))
}

func TestNewExplicitFileMustExist(t *testing.T) {
	_, err := New(Options{File: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestNewLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pagemark.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output:\n  dir: from-file\npipeline:\n  concurrency: 5\n"), 0o600))
	t.Setenv("PMTEST_PIPELINE_CONCURRENCY", "9")

	v, err := New(Options{
		Name:      "pagemark",
		Paths:     []string{dir},
		EnvPrefix: "PMTEST",
		Defaults: func(v *viper.Viper) {
			v.SetDefault("output.dir", "default")
			v.SetDefault("pipeline.concurrency", 3)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "from-file", v.GetString("output.dir"))
	assert.Equal(t, 9, v.GetInt("pipeline.concurrency"))
	assert.Equal(t, path, v.ConfigFileUsed())
}

func TestNewMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output: [unterminated"), 0o600))

	_, err := New(Options{File: path})
	assert.Error(t, err)
}
