package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"
)

type globalOptions struct {
	configPath   string
	apiURL       string
	logLevel     string
	logFormat    string
	stateBackend string
	stateDir     string
}

func globalFlags(o *globalOptions) *pflag.FlagSet {
	fs := pflag.NewFlagSet("nitroshare", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.StringVarP(&o.configPath, "config", "c", "", "YAML config file")
	fs.StringVar(&o.apiURL, "api-url", "", "backend base URL (NITRO_API_URL)")
	fs.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error (NITRO_LOG_LEVEL)")
	fs.StringVar(&o.logFormat, "log-format", "", "json or pretty (NITRO_LOG_FORMAT)")
	fs.StringVar(&o.stateBackend, "state-backend", "", "file, redis, postgres or memory (NITRO_STATE_BACKEND)")
	fs.StringVar(&o.stateDir, "state-dir", "", "directory for the file backend (NITRO_STATE_DIR)")
	return fs
}

// overrides returns the config changes for flags set on the command line.
func (o *globalOptions) overrides(fs *pflag.FlagSet) func(*Config) {
	return func(c *Config) {
		if fs.Changed("api-url") {
			c.APIURL = o.apiURL
		}
		if fs.Changed("log-level") {
			c.LogLevel = o.logLevel
		}
		if fs.Changed("log-format") {
			c.LogFormat = o.logFormat
		}
		if fs.Changed("state-backend") {
			c.State.Backend = o.stateBackend
		}
		if fs.Changed("state-dir") {
			c.State.Dir = o.stateDir
		}
	}
}

// Run is the CLI entrypoint used by cmd/nitroshare. It follows the startup
// sequence (config, logger, state store, configuration restore, session
// restore and revalidation) and then dispatches the command.
//
// It returns an error instead of calling os.Exit so defers run; an
// *ExitError carries the exit code for outcomes already reported.
func Run(ctx context.Context, args []string, s IO) error {
	var opts globalOptions
	fs := globalFlags(&opts)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printUsage(s.Out, (&App{}).Commands(s))
			return nil
		}
		return fmt.Errorf("%w\n\nRun 'nitroshare --help' for usage.", err)
	}
	rest := fs.Args()
	if len(rest) > 0 && rest[0] == "help" {
		printUsage(s.Out, (&App{}).Commands(s))
		return nil
	}

	cfg, err := LoadConfig(opts.configPath, opts.overrides(fs))
	if err != nil {
		return err
	}
	log := NewLogger(cfg.LogLevel, cfg.LogFormat, s.Err)

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("state.close.fail", "err", err)
		}
	}()

	if err := a.Start(ctx); err != nil {
		return err
	}
	return a.Execute(ctx, rest, s)
}
