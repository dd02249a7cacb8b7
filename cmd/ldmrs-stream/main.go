// Command ldmrs-stream configures a SICK LD-MRS laser scanner or streams its
// scan frames, header and payload, to stdout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/banshee-data/ldmrs/internal/config"
	"github.com/banshee-data/ldmrs/internal/db"
	"github.com/banshee-data/ldmrs/internal/ldmrs"
	"github.com/banshee-data/ldmrs/internal/ldmrs/wire"
	"github.com/banshee-data/ldmrs/internal/metrics"
	"github.com/banshee-data/ldmrs/internal/monitoring"
	"github.com/banshee-data/ldmrs/internal/replay"
	"github.com/banshee-data/ldmrs/internal/transport"
	"github.com/banshee-data/ldmrs/internal/version"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr, nil))
}

// run is main with its dependencies injected. A nil dialer dials TCP with
// the configured connect timeout.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, dialer transport.Dialer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "ldmrs-stream: %v\n", err)
		return 1
	}
	if opts.showVersion {
		fmt.Fprintln(stdout, version.String())
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "ldmrs-stream: %v\n", err)
		return 1
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "ldmrs-stream: %v\n", err)
		return 1
	}

	logger, err := monitoring.NewLogger(cfg.Logging, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "ldmrs-stream: %v\n", err)
		return 1
	}
	defer logger.Sync()
	logger = logger.Named("ldmrs-stream")
	monitoring.Install(logger)

	if dialer == nil {
		dialer = transport.TCPDialer{Timeout: cfg.Device.ConnectTimeout, KeepAlive: 30 * time.Second}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = execute(ctx, opts, cfg, logger, stdout, dialer)
	if err != nil {
		logger.Error("failed", zap.Error(err))
	} else {
		logger.Debug("done")
	}
	return exitCode(err)
}

// exitCode maps the outcome of a run to the process status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

func execute(ctx context.Context, opts *options, cfg *config.Config, log *zap.Logger, stdout io.Writer, dialer transport.Dialer) (err error) {
	shot, err := opts.oneShot()
	if err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Listen != "" {
		shutdown := serveMetrics(cfg.Metrics, reg, log)
		defer shutdown()
	}

	popts := ldmrs.Options{
		CommandTimeout: cfg.Device.CommandTimeout,
		ScanTimeout:    cfg.Device.ScanTimeout,
		Logger:         log,
		Metrics:        m,
	}

	var rec *db.Run
	if cfg.Recorder.Path != "" {
		store, derr := db.NewDB(cfg.Recorder.Path)
		if derr != nil {
			return fmt.Errorf("open scan log: %w", derr)
		}
		defer store.Close()

		rec, err = store.StartRun(source(opts, cfg), mode(opts, shot), nil)
		if err != nil {
			return err
		}
		log.Info("recording", zap.String("path", cfg.Recorder.Path), zap.String("run_id", rec.ID))
		defer func() {
			if ferr := rec.Finish(err); ferr != nil {
				log.Warn("finish run", zap.Error(ferr))
			}
		}()
		popts.OnFault = func(f wire.Fault) {
			if rerr := rec.RecordFault(f); rerr != nil {
				log.Warn("record fault", zap.Error(rerr))
			}
		}
	}

	conn, err := connect(ctx, opts, cfg, dialer, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	p := ldmrs.New(conn, popts)
	if shot != nil {
		return ldmrs.RunOneShot(p, *shot, stdout)
	}

	sopts := ldmrs.StreamOptions{
		ClockSyncInterval: cfg.Stream.ClockSyncInterval,
		Passive:           opts.replay != "",
		StopOnExit:        cfg.Stream.StopOnExit,
		ProgressEvery:     cfg.Stream.ProgressEvery,
	}
	if rec != nil {
		sopts.Recorder = rec
	}
	return ldmrs.Stream(ctx, p, stdout, sopts)
}

func connect(ctx context.Context, opts *options, cfg *config.Config, dialer transport.Dialer, log *zap.Logger) (transport.Conn, error) {
	if opts.replay != "" {
		log.Info("replaying capture", zap.String("path", opts.replay), zap.Uint("port", opts.replayPort))
		return replay.Open(opts.replay, uint16(opts.replayPort))
	}
	log.Debug("connecting", zap.String("address", cfg.Device.Address))
	conn, err := dialer.Dial(ctx, cfg.Device.Address)
	if err != nil {
		return nil, &ldmrs.ConnectionError{Op: "connect", Err: err}
	}
	log.Debug("connected", zap.String("address", cfg.Device.Address))
	return conn, nil
}

func source(opts *options, cfg *config.Config) string {
	if opts.replay != "" {
		return opts.replay
	}
	return cfg.Device.Address
}

func mode(opts *options, shot *ldmrs.OneShot) string {
	switch {
	case shot != nil:
		return shot.Action.String()
	case opts.replay != "":
		return "replay"
	}
	return "stream"
}

// serveMetrics starts the Prometheus endpoint and returns its shutdown.
func serveMetrics(cfg config.MetricsConfig, reg *prometheus.Registry, log *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, metrics.Handler(reg))
	srv := &http.Server{Addr: cfg.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("serving metrics", zap.String("listen", cfg.Listen), zap.String("path", cfg.Path))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("metrics server shutdown", zap.Error(err))
		}
	}
}
