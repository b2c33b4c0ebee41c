// asl serves the ASL gesture animation engine: a trigger page, a REST API,
// and websocket streams of composed joint transforms.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-asl/internal/config"
	"github.com/teslashibe/go-asl/internal/log"
	"github.com/teslashibe/go-asl/pkg/gesture"
	"github.com/teslashibe/go-asl/pkg/motion"
	"github.com/teslashibe/go-asl/pkg/web"
)

func main() {
	cfg, trace, err := loadConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(2)
	}

	log.Init(cfg.EffectiveLogLevel())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, trace); err != nil {
		log.Error("runtime error", "error", err)
		os.Exit(1)
	}
}

// loadConfig parses args into fs and layers the flags over config.Load.
func loadConfig(fs *flag.FlagSet, args []string) (config.Config, bool, error) {
	defaults := config.Default()

	configPath := fs.String("config", config.FilePath(), "YAML config file (overrides ASL_CONFIG env var)")
	port := fs.String("port", defaults.Port, "HTTP listen port (overrides ASL_PORT)")
	tickHz := fs.Float64("tick-hz", defaults.TickRate, "Animation tick rate in Hz (overrides ASL_TICK_HZ)")
	logLevel := fs.String("log-level", defaults.LogLevel, "Log level: debug, info, warn, error")
	debug := fs.Bool("debug", false, "Enable verbose debug logging")
	reject := fs.Bool("reject-while-playing", false, "Refuse play requests while a clip is running")
	trace := fs.Bool("trace", false, "Log one composed frame per second")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, false, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return cfg, false, err
	}

	// Only flags given explicitly override file and environment.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "tick-hz":
			cfg.TickRate = *tickHz
		case "log-level":
			cfg.LogLevel = *logLevel
		case "debug":
			cfg.Debug = *debug
		case "reject-while-playing":
			cfg.RejectWhilePlaying = *reject
		}
	})

	return cfg, *trace, cfg.Validate()
}

func run(ctx context.Context, cfg config.Config, trace bool) error {
	lib, err := gesture.BuiltIn()
	if err != nil {
		return fmt.Errorf("load clips: %w", err)
	}

	player := gesture.NewPlayer(lib)
	animator := motion.NewAnimator(player, cfg.Procedural)
	server := web.NewServer(cfg.Port, animator, web.WithRejectWhilePlaying(cfg.RejectWhilePlaying))

	log.Info("starting",
		"clips", lib.Names(),
		"port", cfg.Port,
		"tick_hz", cfg.TickRate,
		"reject_while_playing", cfg.RejectWhilePlaying)

	var sink motion.Sink = server
	if trace {
		sink = motion.MultiSink{server, traceSink(log.For("trace"), time.Second)}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return animator.Run(gctx, cfg.TickInterval(), sink)
	})

	g.Go(func() error {
		return server.Start(gctx)
	})

	err = g.Wait()
	log.Info("shutdown complete", "completed", player.Status().Completed)
	return err
}

// traceSink logs at most one frame per interval.
func traceSink(logger *slog.Logger, interval time.Duration) motion.Sink {
	var last time.Time
	return motion.SinkFunc(func(f motion.Frame) error {
		if time.Since(last) < interval {
			return nil
		}
		last = time.Now()
		head := f.Joint(gesture.JointHead)
		logger.Info("frame",
			"seq", f.Seq,
			"t", f.Time,
			"state", f.State,
			"clip", f.Clip,
			"progress", f.Progress,
			"head_yaw", head.Rotation.Y,
			"head_y", head.Position.Y,
			"torso_scale_y", f.Joint(gesture.JointTorso).Scale.Y)
		return nil
	})
}
