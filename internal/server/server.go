// Package server implements the BucketDesk HTTP server: the bucket and file
// routes on a chi router, plus health, OpenAPI docs and metrics.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bucketdesk/bucketdesk/internal/config"
	"github.com/bucketdesk/bucketdesk/internal/logging"
	"github.com/bucketdesk/bucketdesk/internal/operations"
)

// Server is the BucketDesk HTTP server.
type Server struct {
	cfg        *config.Config
	router     chi.Router
	api        huma.API
	svc        *operations.Service
	requestLog *logging.RequestLog
	validate   *validator.Validate
	handler    http.Handler
	httpServer *http.Server
}

// HealthBody is the JSON body returned by the health check endpoint.
type HealthBody struct {
	Status string `json:"status" example:"ok" doc:"Health status"`
}

// HealthOutput is the Huma output struct for the health check endpoint.
type HealthOutput struct {
	Body HealthBody
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithService sets the operations the routes call.
func WithService(svc *operations.Service) ServerOption {
	return func(s *Server) {
		s.svc = svc
	}
}

// WithRequestLog sets the request log every request is written to.
func WithRequestLog(l *logging.RequestLog) ServerOption {
	return func(s *Server) {
		s.requestLog = l
	}
}

// New creates a Server and wires up all routes on the chi router with the
// Huma API.
func New(cfg *config.Config, opts ...ServerOption) (*Server, error) {
	router := chi.NewMux()

	humaConfig := huma.DefaultConfig("BucketDesk API", "1.0.0")
	humaConfig.DocsPath = "/docs"
	humaConfig.OpenAPIPath = "/openapi"
	api := humachi.New(router, humaConfig)

	s := &Server{
		cfg:      cfg,
		router:   router,
		api:      api,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.svc == nil {
		return nil, errors.New("server: an operations service is required")
	}

	s.registerRoutes()

	// Middleware chain: metrics -> request ID -> request log -> router.
	var handler http.Handler = s.router
	handler = requestLogMiddleware(s.requestLog)(handler)
	handler = requestIDMiddleware(handler)
	if cfg.Observability.Metrics {
		handler = metricsMiddleware(handler)
	}
	s.handler = handler
	return s, nil
}

// Handler returns the server's root handler with middleware applied.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe starts the HTTP server on the given address.
// The returned http.Server is stored so it can be shut down gracefully.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server, waiting for in-flight
// requests to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// registerRoutes configures all routes on the chi router. Huma routes (/,
// /health, /docs, /openapi) appear in the OpenAPI document; the bucket
// routes take JSON or form bodies and answer with bare status codes, so
// they are plain chi handlers.
func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "get-root",
		Method:        http.MethodGet,
		Path:          "/",
		Summary:       "Acknowledge",
		Description:   "Answers 200 with an empty body while the server is up.",
		Tags:          []string{"System"},
		DefaultStatus: http.StatusOK,
	}, func(ctx context.Context, input *struct{}) (*struct{}, error) {
		return nil, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the BucketDesk server.",
		Tags:        []string{"System"},
	}, func(ctx context.Context, input *struct{}) (*HealthOutput, error) {
		return &HealthOutput{Body: HealthBody{Status: "ok"}}, nil
	})

	if s.cfg.Observability.Metrics {
		s.router.Handle("/metrics", promhttp.Handler())
	}

	s.router.Get("/listBuckets", s.listBuckets)
	s.router.Get("/findBucket", s.findBucket)
	s.router.Get("/listObjects", s.listObjects)
	s.router.Get("/findObject", s.findObject)
	s.router.Post("/createBucket", s.createBucket)
	s.router.Post("/uploadFile", s.uploadFile)
	s.router.Post("/downloadFile", s.downloadFile)
	s.router.Delete("/deleteBucket", s.deleteBucket)
	s.router.Delete("/emptyBucket", s.emptyBucket)
}
