package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/juicedmedia/lead-compliance-backend/internal/infrastructure/config"
)

// Server serves the pipeline API with logging, panic recovery and distributed
// rate limiting wrapped around every route.
type Server struct {
	cfg        *config.ServerConfig
	httpServer *http.Server
	handler    *Handler
	db         *pgxpool.Pool
	redis      *redis.Client
	logger     *zap.Logger
}

// NewServer wires routes and middleware around an already-constructed handler.
// Dependency construction happens in main; the server only serves.
func NewServer(
	cfg *config.ServerConfig,
	handler *Handler,
	db *pgxpool.Pool,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
) *Server {
	s := &Server{
		cfg:     cfg,
		handler: handler,
		db:      db,
		redis:   redisClient,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("POST /api/v1/compliance/check", handler.CheckCompliance)
	mux.HandleFunc("POST /api/v1/leads", handler.SubmitLead)
	mux.HandleFunc("POST /api/v1/leads/batch", handler.SubmitLeadBatch)
	mux.HandleFunc("GET /api/v1/repost-leads", handler.RepostLeads)
	mux.HandleFunc("POST /api/v1/repost-leads", handler.RepostLeads)
	mux.HandleFunc("POST /api/v1/dnc-exports", handler.StartDNCExport)
	mux.HandleFunc("GET /api/v1/jobs/{id}", handler.GetJob)

	limiter := newRateLimiter(redisClient, cfg.RateLimit, logger)
	root := chain(mux,
		recovery(logger),
		requestLogging(logger),
		limiter.middleware(),
	)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      root,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Start blocks until the listener fails or Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

type healthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// handleHealth reports dependency connectivity. Degraded dependencies turn
// the overall status unhealthy with a 503 so load balancers rotate us out.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := healthStatus{Status: "healthy", Checks: map[string]string{}}

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			status.Status = "unhealthy"
			status.Checks["database"] = err.Error()
		} else {
			status.Checks["database"] = "ok"
		}
	}
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			status.Status = "unhealthy"
			status.Checks["redis"] = err.Error()
		} else {
			status.Checks["redis"] = "ok"
		}
	}

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}
