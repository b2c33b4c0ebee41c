// Package web hosts the animation engine over HTTP and websockets.
//
// The REST API triggers and inspects playback, /ws/frames streams every
// composed frame to pose sinks, and /ws/control carries play/stop commands
// from remote UIs.
package web

import (
	"context"
	_ "embed"
	"log/slog"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"golang.org/x/time/rate"

	contribws "github.com/gofiber/contrib/websocket"

	"github.com/teslashibe/go-asl/internal/log"
	"github.com/teslashibe/go-asl/pkg/gesture"
	"github.com/teslashibe/go-asl/pkg/hub"
	"github.com/teslashibe/go-asl/pkg/motion"
	"github.com/teslashibe/go-asl/pkg/protocol"
)

//go:embed static/index.html
var indexHTML []byte

// ErrBusy is returned by play requests while a clip is running and the
// server rejects overlapping playback.
var ErrBusy = gesture.ErrBusy

// Default control session limits.
const (
	DefaultControlRate  = 10
	DefaultControlBurst = 5
)

// Option configures a Server.
type Option func(*Server)

// WithRejectWhilePlaying makes play requests fail with ErrBusy while a clip
// is playing. By default the newest request restarts playback.
func WithRejectWhilePlaying(reject bool) Option {
	return func(s *Server) {
		s.rejectWhilePlaying = reject
	}
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithControlRate limits commands per control session.
func WithControlRate(perSecond float64, burst int) Option {
	return func(s *Server) {
		s.controlRate = rate.Limit(perSecond)
		s.controlBurst = burst
	}
}

// Server is the animation host. It implements motion.Sink.
type Server struct {
	app    *fiber.App
	port   string
	logger *slog.Logger

	animator *motion.Animator
	frames   *hub.Hub

	rejectWhilePlaying bool
	controlRate        rate.Limit
	controlBurst       int

	sessions atomic.Int64
}

// NewServer creates a server for animator listening on port.
func NewServer(port string, animator *motion.Animator, opts ...Option) *Server {
	s := &Server{
		port:         port,
		animator:     animator,
		frames:       hub.New("frames"),
		controlRate:  DefaultControlRate,
		controlBurst: DefaultControlBurst,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.For("web")
	}
	s.frames.SetLogger(s.logger)

	animator.OnCompletion(s.broadcastCompletion)

	app := fiber.New(fiber.Config{
		AppName:               "ASL Gestures",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	app.Get("/", s.handleIndex)

	// API routes
	api := app.Group("/api")
	api.Get("/clips", s.handleClips)
	api.Get("/status", s.handleStatus)
	api.Get("/pose", s.handlePose)
	api.Post("/play/:name", s.handlePlay)
	api.Post("/stop", s.handleStop)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/frames", websocket.New(s.handleFramesWS))
	app.Get("/ws/control", contribws.New(s.handleControlWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the frame broadcast hub.
func (s *Server) Hub() *hub.Hub {
	return s.frames
}

// Sessions returns the number of open control sessions.
func (s *Server) Sessions() int64 {
	return s.sessions.Load()
}

// Start runs the frame hub and serves HTTP until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	go s.frames.Run(ctx)

	go func() {
		<-ctx.Done()
		if err := s.app.Shutdown(); err != nil {
			s.logger.Warn("shutdown error", "error", err)
		}
	}()

	s.logger.Info("listening", "url", "http://localhost:"+s.port)
	return s.app.Listen(":" + s.port)
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// Apply broadcasts a frame to every connected pose sink. The frame is also
// retained so a sink that connects later starts from the current pose.
func (s *Server) Apply(f motion.Frame) error {
	msg, err := protocol.NewFrameMessage(f)
	if err != nil {
		return err
	}
	m, err := hub.Encode(msg)
	if err != nil {
		return err
	}
	s.frames.Retain(m)
	if s.frames.Subscribers() > 0 {
		s.frames.Broadcast(m)
	}
	return nil
}

func (s *Server) broadcastCompletion(c gesture.Completion) {
	s.logger.Info("gesture complete", "clip", c.Clip, "play_id", c.PlayID, "count", c.Count)

	msg, err := protocol.NewCompleteMessage(c)
	if err != nil {
		s.logger.Error("encode completion", "error", err)
		return
	}
	if err := s.frames.BroadcastProtocol(msg); err != nil {
		s.logger.Error("broadcast completion", "error", err)
	}
}

// play starts a clip, honoring the overlap policy.
func (s *Server) play(name string) (string, error) {
	start := s.animator.Play
	if s.rejectWhilePlaying {
		start = s.animator.PlayIfIdle
	}
	id, err := start(name)
	if err != nil {
		return "", err
	}
	s.logger.Info("play", "clip", name, "play_id", id)
	return id, nil
}
