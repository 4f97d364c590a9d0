package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagemark/internal/app"
	"github.com/JakeFAU/pagemark/internal/config"
	"github.com/JakeFAU/pagemark/internal/extract"
	"github.com/JakeFAU/pagemark/internal/logging"
	"github.com/JakeFAU/pagemark/internal/metrics"
)

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"output-dir":     "output.dir",
	"max-retries":    "pipeline.max_retries",
	"backoff":        "pipeline.backoff_base",
	"concurrency":    "pipeline.concurrency",
	"timeout":        "render.timeout",
	"settle-delay":   "render.settle_delay",
	"chrome-path":    "render.exec_path",
	"headless":       "render.headless",
	"summary-file":   "summary.file",
	"summary-format": "summary.format",
	"metrics-addr":   "metrics.addr",
}

// newExtractCmd creates the 'extract' subcommand, which processes every
// configured target once.
func newExtractCmd(root *rootOptions) *cobra.Command {
	var targets []string
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Render every target and write its content as Markdown",
		Long: `Processes all targets concurrently. Targets come from the config file or
from repeated --target url=label flags, which replace the configured list.
Exits non-zero if any target fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExtract(cmd, root, targets)
		},
	}

	f := cmd.Flags()
	f.String("output-dir", "", "directory artifacts are written to")
	f.Int("max-retries", 0, "total attempts per target")
	f.Duration("backoff", 0, "base backoff; doubles after each failed attempt")
	f.Int("concurrency", 0, "maximum targets processed at once")
	f.Duration("timeout", 0, "page load timeout per attempt")
	f.Duration("settle-delay", 0, "extra wait after the document finishes loading")
	f.String("chrome-path", "", "Chrome or Chromium executable")
	f.Bool("headless", true, "run the browser headless")
	f.String("summary-file", "", "write a run summary to this file")
	f.String("summary-format", "", "summary format: json or yaml")
	f.String("metrics-addr", "", "serve /metrics and /healthz on this address during the run")
	f.StringArrayVar(&targets, "target", nil, "target as url=label; repeatable")
	return cmd
}

func runExtract(cmd *cobra.Command, root *rootOptions, targetFlags []string) error {
	v, err := config.NewViper(root.cfgFile, nil)
	if err != nil {
		return err
	}
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return err
	}
	if root.logLevel != "" {
		v.Set("logging.level", root.logLevel)
	}
	if root.devLogs {
		v.Set("logging.development", true)
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if len(targetFlags) > 0 {
		if cfg.Targets, err = parseTargets(targetFlags); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return extract.ConfigError(err)
	}
	defer func() { _ = logger.Sync() }()
	if used := v.ConfigFileUsed(); used != "" {
		logger.Info("using config file", zap.String("path", used))
	}

	metrics.Init()
	rep, err := newApp(cfg, logger, app.WithOutput(cmd.OutOrStdout())).Run(cmd.Context())
	if err != nil {
		if errors.Is(err, app.ErrRunFailed) {
			logger.Warn("run finished with failures",
				zap.String("run_id", rep.RunID),
				zap.Int("failed", rep.Failed),
				zap.Int("total", rep.Total),
			)
		}
		return err
	}
	logger.Info("run finished", zap.String("run_id", rep.RunID), zap.Int("total", rep.Total))
	return nil
}

// bindFlags makes explicitly set flags override file and environment values.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		fl := flags.Lookup(name)
		if fl == nil || !fl.Changed {
			continue
		}
		if err := v.BindPFlag(key, fl); err != nil {
			return extract.ConfigError(fmt.Errorf("bind --%s: %w", name, err))
		}
	}
	return nil
}

// parseTargets reads url=label pairs. The label follows the last '=' so
// query strings in the URL are kept intact.
func parseTargets(raw []string) ([]extract.WorkItem, error) {
	items := make([]extract.WorkItem, 0, len(raw))
	for _, r := range raw {
		i := strings.LastIndex(r, "=")
		if i <= 0 || i == len(r)-1 {
			return nil, extract.ConfigError(fmt.Errorf("target %q must be url=label", r))
		}
		items = append(items, extract.WorkItem{
			URL:   strings.TrimSpace(r[:i]),
			Label: strings.TrimSpace(r[i+1:]),
		})
	}
	return items, nil
}
