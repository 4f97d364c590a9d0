// Package config builds a Viper instance that layers defaults, an optional
// config file and environment variables. Command-line flags are bound on top
// by the caller.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Options describe where configuration is looked up.
type Options struct {
	// Name is the config file name without extension, searched in Paths.
	Name string
	// Paths are the directories searched for Name.
	Paths []string
	// File, when set, is read directly and must exist.
	File string
	// EnvPrefix namespaces environment variables, e.g. PAGEMARK_OUTPUT_DIR.
	EnvPrefix string
	// Defaults registers default values before anything is read.
	Defaults func(v *viper.Viper)
	// Logger reports which file was used.
	Logger *zap.Logger
}

// New returns a Viper populated from defaults, the config file and the
// environment. A missing file is only an error when File was given
// explicitly.
func New(opts Options) (*viper.Viper, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	v := viper.New()
	if opts.Defaults != nil {
		opts.Defaults(v)
	}

	if opts.EnvPrefix != "" {
		v.SetEnvPrefix(opts.EnvPrefix)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName(opts.Name)
		for _, p := range opts.Paths {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File == "" && errors.As(err, &notFound) {
			logger.Debug("config file not found; using defaults and environment variables")
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	logger.Info("using config file", zap.String("path", v.ConfigFileUsed()))
	return v, nil
}
