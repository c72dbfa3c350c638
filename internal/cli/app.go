// Package cli implements the brickctl command tree on top of one brick
// session.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/danmuck/brickctl/internal/config"
	"github.com/danmuck/brickctl/internal/device"
	"github.com/danmuck/brickctl/internal/logging"
	"github.com/danmuck/brickctl/internal/observability"
	"github.com/danmuck/brickctl/internal/protocol"
	"github.com/danmuck/brickctl/internal/protocol/session"
	"github.com/danmuck/brickctl/internal/remotepath"
	"github.com/danmuck/brickctl/internal/transport"
	"github.com/rs/zerolog/log"
)

// Connector opens the link to a brick.
type Connector func(ctx context.Context, cfg config.Config) (transport.Channel, error)

// Confirmer asks a yes/no question before a destructive operation.
type Confirmer func(prompt string) (bool, error)

type Options struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Connect defaults to probing the configured links in order.
	Connect Connector
	// Confirm defaults to an interactive prompt on a terminal.
	Confirm Confirmer
}

type globalFlags struct {
	configPath  string
	noDevice    bool
	yes         bool
	output      string
	logLevel    string
	logFile     string
	metricsFile string
	timeout     time.Duration
	retries     int
	maxChunk    int
}

// App holds per-invocation state: the resolved config and, once a command
// needs it, the device and its session.
type App struct {
	opts  Options
	flags globalFlags
	cfg   config.Config

	dev     *device.Device
	sess    *session.Session
	logSink io.Closer
}

func New(opts Options) *App {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Connect == nil {
		opts.Connect = probe
	}
	a := &App{opts: opts}
	if a.opts.Confirm == nil {
		a.opts.Confirm = a.terminalConfirm
	}
	return a
}

// Run executes one brickctl invocation and returns its exit status.
func Run(ctx context.Context, args []string, opts Options) int {
	app := New(opts)
	root := app.Command()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	err = errors.Join(err, app.Close())
	if err == nil {
		return 0
	}
	if protocol.KindOf(err) == 0 {
		// cobra reports usage mistakes as plain errors
		err = protocol.ArgumentError("", err)
	}
	fmt.Fprintf(app.opts.Stderr, "brickctl: %v\n", err)
	if app.dev != nil {
		if diag := app.dev.LastError(); diag != "" {
			fmt.Fprintf(app.opts.Stderr, "brickctl: last device error: %s\n", diag)
		}
	}
	return protocol.ExitCode(err)
}

func probe(ctx context.Context, cfg config.Config) (transport.Channel, error) {
	return transport.NewProber(cfg.Transport).Open(ctx)
}

// setup resolves config and logging; it runs before every command.
// Without loadFile only defaults, environment and flags apply.
func (a *App) setup(loadFile bool) error {
	path := a.flags.configPath
	required := path != ""
	switch {
	case !loadFile:
		path, required = "", false
	case path == "":
		var err error
		if path, err = config.DefaultPath(); err != nil {
			log.Debug().Err(err).Msg("no user config directory")
			path = ""
		}
	}
	cfg, err := config.Load(path, required)
	if err != nil {
		return protocol.ArgumentError("config", err)
	}
	if a.flags.timeout > 0 {
		cfg.Session.ReadTimeout = a.flags.timeout
	}
	if a.flags.retries > 0 {
		cfg.Session.Retries = a.flags.retries
	}
	if a.flags.maxChunk > 0 {
		cfg.Session.MaxChunk = a.flags.maxChunk
	}
	fileLevel := cfg.Logging.Level
	if a.flags.logLevel != "" {
		cfg.Logging.Level = a.flags.logLevel
	}
	if a.flags.logFile != "" {
		cfg.Logging.File = a.flags.logFile
	}
	if a.flags.metricsFile != "" {
		cfg.Logging.MetricsFile = a.flags.metricsFile
	}
	a.cfg = cfg

	logCfg := logging.Resolve(logging.ProfileRuntime, fileLevel, a.flags.logLevel)
	logCfg.Out = a.opts.Stderr
	if cfg.Logging.File != "" {
		sink := observability.FileSink(cfg.Logging.File)
		a.logSink = sink
		logCfg.File = sink
	}
	logging.ConfigureWith(logCfg)
	if cfg.Logging.MetricsFile != "" {
		observability.RegisterMetrics()
	}
	return nil
}

// session opens the device on first use.
func (a *App) session(ctx context.Context) (*session.Session, error) {
	if a.sess != nil {
		return a.sess, nil
	}
	if a.flags.noDevice {
		return nil, protocol.TransportError("connect", fmt.Errorf("%w: running without a device", protocol.ErrNoDevice))
	}
	ch, err := a.opts.Connect(ctx, a.cfg)
	if err != nil {
		if protocol.KindOf(err) == 0 {
			err = protocol.TransportError("connect", err)
		}
		return nil, err
	}
	dev := device.New(ch)
	sess, err := session.New(dev, a.cfg.Registry, a.cfg.Session, observability.SessionLogger(dev.Name()))
	if err != nil {
		return nil, errors.Join(err, dev.Close())
	}
	a.dev, a.sess = dev, sess
	return sess, nil
}

// remote resolves a path argument against the virtual current directory.
func (a *App) remote(p string) string {
	return remotepath.Join(a.cfg.CD, p)
}

// Close releases the device and flushes the metrics file and log sink.
func (a *App) Close() error {
	var errs []error
	if a.dev != nil {
		if err := a.dev.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.cfg.Logging.MetricsFile != "" {
		if err := observability.WriteMetricsFile(a.cfg.Logging.MetricsFile); err != nil {
			errs = append(errs, protocol.IOError("metrics", err))
		}
	}
	if a.logSink != nil {
		if err := a.logSink.Close(); err != nil {
			errs = append(errs, protocol.IOError("log", err))
		}
	}
	return errors.Join(errs...)
}
