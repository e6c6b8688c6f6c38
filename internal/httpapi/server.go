// Package httpapi wires the gateway's HTTP surface: wallet login, course
// creation and catalog reads, and the purchase/share/profit operations.
package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/learnledger/backend/internal/catalog"
	"github.com/learnledger/backend/internal/courses"
	"github.com/learnledger/backend/internal/logging"
	"github.com/learnledger/backend/internal/metrics"
	"github.com/learnledger/backend/internal/middleware"
)

// Config holds server dependencies.
type Config struct {
	Courses *courses.Service
	Catalog *catalog.Reconciler
	Issuer  *middleware.TokenIssuer
	Logger  *logging.Logger
	Metrics *metrics.Metrics

	// MessageTemplate is the login message format; %s receives the wallet
	// address.
	MessageTemplate string
	AllowedOrigins  []string
	RequestsPerSec  int
	RateBurst       int
	MaxUploadBytes  int64
}

// Server serves the gateway API.
type Server struct {
	cfg    Config
	logger *logging.Logger
}

// New creates the API server.
func New(cfg Config) (*Server, error) {
	if cfg.Courses == nil || cfg.Catalog == nil || cfg.Issuer == nil {
		return nil, fmt.Errorf("courses, catalog and token issuer are required")
	}
	if cfg.MessageTemplate == "" {
		cfg.MessageTemplate = "Logging in to LearnLedger with wallet: %s"
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 10
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 20
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 100 << 20
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New("httpapi", "info", "json")
	}
	return &Server{cfg: cfg, logger: cfg.Logger}, nil
}

// Router builds the full middleware chain and route table.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.Use(middleware.LoggingMiddleware(s.logger))
	if s.cfg.Metrics != nil {
		r.Use(middleware.MetricsMiddleware(s.cfg.Metrics))
	}

	cors := middleware.NewCORSMiddleware(s.cfg.AllowedOrigins)
	r.Use(cors.Handler)

	auth := middleware.NewAuthMiddleware(s.cfg.Issuer, s.logger, []string{
		"/auth/login",
		"/health",
		"/metrics",
	}, []string{"/courses"})
	r.Use(auth.Handler)

	limiter := middleware.NewRateLimiter(s.cfg.RequestsPerSec, s.cfg.RateBurst, s.logger)
	r.Use(limiter.Handler)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.cfg.Metrics != nil {
		r.Handle("/metrics", s.cfg.Metrics.Handler()).Methods(http.MethodGet)
	}

	r.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)

	r.HandleFunc("/add-course", s.handleAddCourse).Methods(http.MethodPost)
	r.HandleFunc("/courses", s.handleListCourses).Methods(http.MethodGet)
	r.HandleFunc("/courses/{id:[0-9]+}", s.handleGetCourse).Methods(http.MethodGet)
	r.HandleFunc("/courses/{id:[0-9]+}/purchase", s.handlePurchase).Methods(http.MethodPost)
	r.HandleFunc("/courses/{id:[0-9]+}/buy-shares", s.handleBuyShares).Methods(http.MethodPost)
	r.HandleFunc("/courses/{id:[0-9]+}/distribute", s.handleDistribute).Methods(http.MethodPost)
	r.HandleFunc("/courses/{id:[0-9]+}/withdraw", s.handleWithdraw).Methods(http.MethodPost)

	return r
}
