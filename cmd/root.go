// Package cmd defines and implements the CLI commands for the pagemark executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/pagemark/internal/app"
	"github.com/JakeFAU/pagemark/internal/extract"
)

// Exit codes returned by Execute.
const (
	exitOK          = 0
	exitRunFailed   = 1
	exitConfigError = 2
)

type rootOptions struct {
	cfgFile  string
	logLevel string
	devLogs  bool
}

// newApp is the application factory. It's a variable so tests can inject
// a renderer that does not launch Chrome.
var newApp = app.New

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "pagemark",
		Short: "Render web pages in headless Chrome and save their main content as Markdown.",
		Long: `pagemark loads each configured URL in a headless browser, strips navigation,
ads and other page chrome, converts the main content region to Markdown and
writes it to {output dir}/{label}.md. Failed pages are retried with
exponential backoff; a summary is printed when every target has finished.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "",
		"config file (default is pagemark.yaml in ., $HOME/.pagemark or /etc/pagemark)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	cmd.PersistentFlags().BoolVar(&opts.devLogs, "dev", false, "human-friendly development logging")

	cmd.AddCommand(newExtractCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "pagemark: %v\n", err)
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, app.ErrRunFailed):
		return exitRunFailed
	case extract.KindOf(err) == extract.KindConfig:
		return exitConfigError
	default:
		return exitRunFailed
	}
}
