// Package config loads and validates pagemark configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagemark/internal/extract"
	"github.com/JakeFAU/pagemark/internal/logging"
	"github.com/JakeFAU/pagemark/internal/render"
	"github.com/JakeFAU/pagemark/internal/storage/local"
	pkgconfig "github.com/JakeFAU/pagemark/pkg/config"
)

// EnvPrefix namespaces environment overrides, e.g. PAGEMARK_OUTPUT_DIR.
const EnvPrefix = "PAGEMARK"

// Config captures all knobs for a run.
type Config struct {
	Output   local.Config       `mapstructure:"output"`
	Pipeline PipelineConfig     `mapstructure:"pipeline"`
	Render   RenderConfig       `mapstructure:"render"`
	Targets  []extract.WorkItem `mapstructure:"targets" validate:"min=1,unique=Label"`
	Logging  logging.Config     `mapstructure:"logging"`
	Metrics  MetricsConfig      `mapstructure:"metrics"`
	Summary  SummaryConfig      `mapstructure:"summary"`
}

// PipelineConfig governs retries and the worker pool.
type PipelineConfig struct {
	// MaxRetries is the total number of attempts per item.
	MaxRetries  int           `mapstructure:"max_retries" validate:"gte=1"`
	BackoffBase time.Duration `mapstructure:"backoff_base" validate:"gte=0"`
	Concurrency int           `mapstructure:"concurrency" validate:"gte=1"`
}

// RenderConfig bounds page loads and configures the browser.
type RenderConfig struct {
	Timeout       time.Duration `mapstructure:"timeout" validate:"gt=0"`
	render.Config `mapstructure:",squash"`
}

// MetricsConfig enables the /metrics and /healthz listener.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" validate:"omitempty,hostname_port"`
}

// SummaryConfig controls the optional machine-readable run summary.
type SummaryConfig struct {
	File   string `mapstructure:"file"`
	Format string `mapstructure:"format" validate:"oneof=json yaml"`
}

// DefaultTargets are processed when no targets are configured.
func DefaultTargets() []extract.WorkItem {
	return []extract.WorkItem{
		{
			URL:   "https://www.facebook.com/business/help/890714097648074?id=725943027795860",
			Label: "fb_feed_specs",
		},
		{
			URL:   "https://www.facebook.com/business/help/1898524300466211?id=725943027795860",
			Label: "fb_feed_troubleshooting",
		},
	}
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	rd := render.DefaultConfig()

	v.SetDefault("output.dir", "./output")
	v.SetDefault("output.extension", local.DefaultExtension)
	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("pipeline.backoff_base", time.Second)
	v.SetDefault("pipeline.concurrency", 3)
	v.SetDefault("render.timeout", 30*time.Second)
	v.SetDefault("render.settle_delay", rd.SettleDelay)
	v.SetDefault("render.poll_interval", rd.PollInterval)
	v.SetDefault("render.user_agent", rd.UserAgent)
	v.SetDefault("render.window_width", rd.WindowWidth)
	v.SetDefault("render.window_height", rd.WindowHeight)
	v.SetDefault("render.exec_path", "")
	v.SetDefault("render.headless", rd.Headless)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("summary.file", "")
	v.SetDefault("summary.format", "json")
}

// NewViper layers defaults, the config file and PAGEMARK_* environment
// variables. With an empty file, pagemark.yaml is searched in the working
// directory, $HOME/.pagemark and /etc/pagemark.
func NewViper(file string, logger *zap.Logger) (*viper.Viper, error) {
	v, err := pkgconfig.New(pkgconfig.Options{
		Name:      "pagemark",
		Paths:     []string{".", "$HOME/.pagemark", "/etc/pagemark"},
		File:      file,
		EnvPrefix: EnvPrefix,
		Defaults:  SetDefaults,
		Logger:    logger,
	})
	if err != nil {
		return nil, extract.ConfigError(err)
	}
	return v, nil
}

// Load decodes v into a Config and validates it. Missing targets fall back
// to DefaultTargets.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, extract.ConfigError(fmt.Errorf("unmarshal config: %w", err))
	}
	if len(cfg.Targets) == 0 {
		cfg.Targets = DefaultTargets()
	}
	cfg.Summary.Format = strings.ToLower(strings.TrimSpace(cfg.Summary.Format))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces required values and reasonable limits. Individual target
// URLs and labels are checked per item when the run starts, so one bad target
// does not stop the others.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Output.Root) == "" {
		return extract.ConfigError(errors.New("output.dir is required"))
	}
	if c.Logging.Level != "" {
		if _, err := zap.ParseAtomicLevel(c.Logging.Level); err != nil {
			return extract.ConfigError(fmt.Errorf("logging.level: %w", err))
		}
	}
	if err := extract.Validator().Struct(c); err != nil {
		return extract.ConfigError(describe(err))
	}
	return nil
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
