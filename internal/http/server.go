// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"driverbuddy/internal/http/handlers"
	"driverbuddy/internal/http/middleware"
	"driverbuddy/internal/logger"
)

type ServerDeps struct {
	Telemetry handlers.Ingester
	Events    handlers.EventReader
	Messages  interface {
		handlers.MessageLister
		handlers.MessageWebhooks
	}
	// Signature enables X-Twilio-Signature checks on provider webhooks when set.
	Signature     middleware.SignatureChecker
	PublicBaseURL string
	HealthChecks  map[string]handlers.Check
	Workers       func() map[string]bool
	Logger        *slog.Logger
}

type Server struct {
	deps   ServerDeps
	logger *slog.Logger
}

func NewServer(deps ServerDeps) *Server {
	return &Server{deps: deps, logger: logger.Or(deps.Logger)}
}

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(middleware.Recovery(s.logger), middleware.Logging(s.logger), middleware.Metrics())

	health := handlers.NewHealthHandler(s.deps.HealthChecks, s.deps.Workers)
	r.GET("/", health.Root)
	r.GET("/health", health.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	webhook := r.Group("/webhook")
	telemetryHandler := handlers.NewTelemetryHandler(s.deps.Telemetry, s.deps.PublicBaseURL)
	webhook.POST("/samsara", telemetryHandler.Samsara)

	twilio := webhook.Group("/twilio")
	if s.deps.Signature != nil {
		twilio.Use(middleware.TwilioSignature(s.deps.Signature, s.deps.PublicBaseURL))
	}
	twilioHandler := handlers.NewTwilioHandler(s.deps.Messages, s.logger)
	twilio.POST("/inbound", twilioHandler.Inbound)
	twilio.POST("/status", twilioHandler.Status)

	eventHandler := handlers.NewEventHandler(s.deps.Events, s.deps.Messages)
	r.GET("/events", eventHandler.List)
	r.GET("/events/:id", eventHandler.Get)

	return r
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
