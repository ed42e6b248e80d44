package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/waterfountain1996/tftpd"
)

type options struct {
	configFile      string
	root            string
	timeout         string
	continueOnError bool
	logLevel        string
	logFormat       string
	noPrompt        bool
}

// newRootCmd builds the tftpd command. serve is called once the
// configuration is loaded and validated.
func newRootCmd(serve func(ctx context.Context, cfg *tftp.Config, stdin io.Reader) error) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "tftpd <port>",
		Short: "Serve files over TFTP (RFC 1350), one transfer at a time",
		Long: `tftpd serves the files of a directory over TFTP in octet mode.

It handles a single transfer at a time. By default the first failed
transfer stops the server; pass --continue-on-error to keep serving.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := tftp.ParsePort(args[0])
			if err != nil {
				return err
			}

			cfg, err := tftp.LoadConfig(opts.configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg.Port = port

			flags := cmd.Flags()
			if flags.Changed("root") {
				cfg.Root = opts.root
			}
			if flags.Changed("timeout") {
				d, err := parseDuration(opts.timeout)
				if err != nil {
					return err
				}
				cfg.Timeout = d
			}
			if flags.Changed("continue-on-error") {
				cfg.ContinueOnError = opts.continueOnError
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = opts.logLevel
			}
			if flags.Changed("log-format") {
				cfg.LogFormat = opts.logFormat
			}

			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.ConfigureLogging(); err != nil {
				return err
			}

			var stdin io.Reader
			if !opts.noPrompt {
				stdin = cmd.InOrStdin()
			}
			return serve(cmd.Context(), cfg, stdin)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configFile, "config", "", "YAML config file")
	flags.StringVar(&opts.root, "root", ".", "directory to serve files from")
	flags.StringVar(&opts.timeout, "timeout", tftp.DefaultTimeout.String(), "receive timeout, bounds shutdown latency")
	flags.BoolVar(&opts.continueOnError, "continue-on-error", false, "keep serving after a failed transfer")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", "text", "log format: text, json")
	flags.BoolVar(&opts.noPrompt, "no-prompt", false, "do not read the quit confirmation from stdin")

	return cmd
}

func serve(ctx context.Context, cfg *tftp.Config, stdin io.Reader) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if stdin != nil {
		go watchPrompt(ctx, stdin, os.Stdout, cancel)
	}

	srv := tftp.NewServerFromConfig(cfg)
	err := srv.ListenAndServe(ctx, cfg.Addr())

	logrus.WithFields(logrus.Fields{
		"function": "serve",
		"addr":     cfg.Addr(),
	}).Info("Server stopped")

	return err
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd(serve).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
