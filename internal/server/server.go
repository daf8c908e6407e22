// Package server exposes a milk bucket over HTTP: a withdrawal-gated
// endpoint, an admin refill endpoint, a level reading and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mfcontext "github.com/vnykmshr/milkflow/pkg/common/context"
	mferrors "github.com/vnykmshr/milkflow/pkg/common/errors"
	"github.com/vnykmshr/milkflow/pkg/common/validation"
	"github.com/vnykmshr/milkflow/pkg/metrics"
	"github.com/vnykmshr/milkflow/pkg/milk"
	"github.com/vnykmshr/milkflow/pkg/milk/unit"
)

const module = "server"

// Config configures a Server.
type Config struct {
	// Bucket is the stock every withdrawal is served from. Required.
	Bucket milk.Bucket

	// WithdrawUnit is the quantity taken by each POST /9/milk. Defaults to 1 liter.
	WithdrawUnit unit.Liters

	// Strict answers 429 when the withdrawal itself is refused. By default
	// only the IsEmpty pre-check decides the status.
	Strict bool

	// RequestTimeout bounds the bucket calls of a single request.
	RequestTimeout time.Duration

	Logger *slog.Logger

	// Metrics receives per-route request counts. Nil disables them.
	Metrics *metrics.Registry

	// Gatherer, when set, is exposed on MetricsPath.
	Gatherer    prometheus.Gatherer
	MetricsPath string
}

// DefaultConfig returns a configuration withdrawing 1 liter per request.
// Bucket must still be set.
func DefaultConfig() Config {
	return Config{
		WithdrawUnit:   1,
		RequestTimeout: 5 * time.Second,
		MetricsPath:    "/metrics",
	}
}

// Server serves the milk endpoints.
type Server struct {
	app     *fiber.App
	bucket  milk.Bucket
	unit    unit.Liters
	strict  bool
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Registry
}

// New creates a server with its routes registered.
func New(config Config) (*Server, error) {
	if config.Bucket == nil {
		return nil, validation.ValidateNotNil(module, "bucket", nil)
	}
	if config.WithdrawUnit == 0 {
		config.WithdrawUnit = 1
	}
	if err := validation.ValidateAmount(module, "withdraw_unit", float64(config.WithdrawUnit)); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositiveFloat(module, "withdraw_unit", float64(config.WithdrawUnit)); err != nil {
		return nil, err
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 5 * time.Second
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	s := &Server{
		bucket:  config.Bucket,
		unit:    config.WithdrawUnit,
		strict:  config.Strict,
		timeout: config.RequestTimeout,
		logger:  config.Logger.With("component", module),
		metrics: config.Metrics,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "milkflowd",
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler:          s.handleError,
	})

	s.setupRoutes(config)
	return s, nil
}

func (s *Server) setupRoutes(config Config) {
	s.app.Use(s.observe)

	s.app.Post("/9/milk", s.handleMilk)
	s.app.Post("/9/refill", s.handleRefill)
	s.app.Get("/9/milk/level", s.handleLevel)
	s.app.Get("/healthz", s.handleHealth)

	if config.Gatherer != nil {
		s.app.Get(config.MetricsPath, adaptor.HTTPHandler(
			promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{}),
		))
	}
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.logger.Info("listening", "addr", addr, "withdraw_unit", float64(s.unit), "strict", s.strict)
	return s.app.Listen(addr)
}

// Serve serves on an existing listener until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("listening", "addr", ln.Addr().String(), "withdraw_unit", float64(s.unit), "strict", s.strict)
	return s.app.Listener(ln)
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully
// within shutdownTimeout.
func (s *Server) Start(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return mferrors.NewOperationError(module, "shutdown", err)
	}
	return nil
}

// observe logs each request and counts it by route and status.
func (s *Server) observe(c *fiber.Ctx) error {
	start := time.Now()

	if err := c.Next(); err != nil {
		if herr := c.App().ErrorHandler(c, err); herr != nil {
			_ = c.SendStatus(fiber.StatusInternalServerError)
		}
	}

	status := c.Response().StatusCode()
	route := c.Route().Path
	if s.metrics != nil {
		s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	}
	s.logger.Debug("request",
		"method", c.Method(),
		"path", c.Path(),
		"route", route,
		"status", status,
		"duration", time.Since(start),
	)
	return nil
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	switch {
	case mfcontext.IsCancellation(err):
		s.logger.Warn("request abandoned", "path", c.Path(), "error", err)
	case code >= fiber.StatusInternalServerError:
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Status(code).SendString(statusText(fe))
}

func statusText(fe *fiber.Error) string {
	if fe != nil && fe.Message != "" {
		return fe.Message + "\n"
	}
	return fiber.ErrInternalServerError.Message + "\n"
}

// requestContext derives a bounded context from the request's user context.
func (s *Server) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return mfcontext.WithOptionalTimeout(c.UserContext(), s.timeout)
}
