package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/MimeLyc/carshop-agent/internal/agent"
	"github.com/MimeLyc/carshop-agent/internal/apperr"
	"github.com/MimeLyc/carshop-agent/internal/booking"
	"github.com/MimeLyc/carshop-agent/internal/catalog"
	"github.com/MimeLyc/carshop-agent/internal/config"
	"github.com/MimeLyc/carshop-agent/internal/identity"
	"github.com/MimeLyc/carshop-agent/internal/tools"
	"github.com/MimeLyc/carshop-agent/pkg/log"
	"github.com/gorilla/mux"
)

type runtimeSettingsStore interface {
	GetRuntimeSettings() config.RuntimeSettings
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type bookingLister interface {
	ListBookings(ctx context.Context, userID string) ([]booking.Booking, error)
}

type preferenceStore interface {
	Preferences(ctx context.Context, userID string) (*identity.Preferences, error)
	PutPreferences(ctx context.Context, userID string, p identity.Preferences) error
}

type auditReporter interface {
	Status() catalog.AuditStatus
	Run(ctx context.Context) (catalog.AuditReport, error)
}

// toolRunner executes a registered tool. *tools.Registry satisfies it.
type toolRunner interface {
	Execute(ctx context.Context, name string, args json.RawMessage) tools.ToolResult
}

type pinger interface {
	Ping(ctx context.Context) error
}

// requirement reports a missing collaborator setting as a Config error.
type requirement func() error

type Server struct {
	agent    agent.Agent
	cars     *catalog.Executor
	resolver identity.Resolver

	bookings    booking.Collaborator
	bookingList bookingLister
	prefs       preferenceStore

	voice     toolRunner
	retellKey string

	requireLLM    requirement
	requireEmail  requirement
	requireRetell requirement

	auditor  auditReporter
	settings runtimeSettingsStore
	store    pinger
	metrics  http.Handler
	observe  func(mode string, degraded bool)

	adminToken  string
	chatTimeout time.Duration
	uiEnabled   bool
	uiStaticDir string

	logger *log.Logger
	router *mux.Router
	server *http.Server
}

type Option func(*Server)

func WithUI(staticDir string, enabled bool) Option {
	return func(s *Server) {
		s.uiStaticDir = staticDir
		s.uiEnabled = enabled
	}
}

func WithResolver(r identity.Resolver) Option {
	return func(s *Server) {
		s.resolver = r
	}
}

// WithBookings serves POST /api/bookings from c and GET from list.
func WithBookings(c booking.Collaborator, list bookingLister) Option {
	return func(s *Server) {
		s.bookings = c
		s.bookingList = list
	}
}

func WithPreferences(store preferenceStore) Option {
	return func(s *Server) {
		s.prefs = store
	}
}

// WithVoiceTools enables the voice-agent webhooks signed with key.
func WithVoiceTools(runner toolRunner, key string) Option {
	return func(s *Server) {
		s.voice = runner
		s.retellKey = key
	}
}

// WithRequirements installs the collaborator checks answered with 503
// before the matching endpoints do any work.
func WithRequirements(llm, email, retell func() error) Option {
	return func(s *Server) {
		s.requireLLM = llm
		s.requireEmail = email
		s.requireRetell = retell
	}
}

func WithAuditor(a auditReporter) Option {
	return func(s *Server) {
		s.auditor = a
	}
}

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func WithHealthCheck(p pinger) Option {
	return func(s *Server) {
		s.store = p
	}
}

func WithMetrics(handler http.Handler, observeTurn func(mode string, degraded bool)) Option {
	return func(s *Server) {
		s.metrics = handler
		s.observe = observeTurn
	}
}

// WithAdminToken sets the bearer token the /api/admin routes require.
// Without one they answer 503.
func WithAdminToken(token string) Option {
	return func(s *Server) {
		s.adminToken = token
	}
}

func WithChatTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.chatTimeout = d
	}
}

func NewServer(a agent.Agent, cars *catalog.Executor, opts ...Option) *Server {
	s := &Server{
		agent:       a,
		cars:        cars,
		chatTimeout: 120 * time.Second,
		logger:      log.Named("http"),
		router:      mux.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	r := s.router
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/chat", s.handleChatStream).Methods(http.MethodPost)
	api.HandleFunc("/agent/chat", s.handleAgentChat).Methods(http.MethodPost)

	api.HandleFunc("/cars", s.handleListCars).Methods(http.MethodGet)
	api.HandleFunc("/cars/random", s.handleRandomCar).Methods(http.MethodGet)
	api.HandleFunc("/cars/{id:[0-9]+}", s.handleGetCar).Methods(http.MethodGet)

	api.HandleFunc("/bookings", s.handleCreateBooking).Methods(http.MethodPost)
	api.HandleFunc("/bookings", s.handleListBookings).Methods(http.MethodGet)
	api.HandleFunc("/preferences", s.handleGetPreferences).Methods(http.MethodGet)
	api.HandleFunc("/preferences", s.handlePutPreferences).Methods(http.MethodPut)

	api.HandleFunc("/retell/{function}", s.handleRetell).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(s.adminOnly)
	admin.HandleFunc("/audit", s.handleAuditStatus).Methods(http.MethodGet)
	admin.HandleFunc("/audit", s.handleAuditRun).Methods(http.MethodPost)
	admin.HandleFunc("/settings", s.handleGetSettings).Methods(http.MethodGet)
	admin.HandleFunc("/settings", s.handlePutSettings).Methods(http.MethodPut)

	r.PathPrefix("/").HandlerFunc(s.handleStatic).Methods(http.MethodGet)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}
	code := http.StatusOK
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			status["status"] = "degraded"
			status["store"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, status)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if !s.uiEnabled || s.uiStaticDir == "" {
		http.NotFound(w, r)
		return
	}

	rel := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	indexPath := filepath.Join(s.uiStaticDir, "index.html")

	if rel == "" || !strings.Contains(filepath.Base(rel), ".") {
		http.ServeFile(w, r, indexPath)
		return
	}

	filePath := filepath.Join(s.uiStaticDir, rel)
	if _, err := os.Stat(filePath); err != nil {
		// SPA fallback: non-existing static file path returns index
		http.ServeFile(w, r, indexPath)
		return
	}
	http.ServeFile(w, r, filePath)
}

// check runs a requirement; on failure it answers 503 and returns false.
func (s *Server) check(w http.ResponseWriter, req requirement) bool {
	if req == nil {
		return true
	}
	if err := req(); err != nil {
		s.logger.Warn("request rejected: %v", err)
		writeAppError(w, err)
		return false
	}
	return true
}

func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			writeAppError(w, apperr.New(apperr.KindConfig, "missing configuration: ADMIN_TOKEN"))
			return
		}
		token := identity.BearerToken(r)
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// optionalUser attaches the bearer token's user to the request context.
// A missing or unverifiable token leaves the request anonymous.
func (s *Server) optionalUser(r *http.Request) context.Context {
	token := identity.BearerToken(r)
	if token == "" || s.resolver == nil {
		return r.Context()
	}
	u, err := s.resolver.Resolve(r.Context(), token)
	if err != nil {
		s.logger.Warn("ignoring unverified bearer token: %v", err)
		return r.Context()
	}
	return identity.WithUser(r.Context(), u)
}

// requireUser resolves the bearer token or fails with a KindAuth error,
// including when the auth service itself cannot be reached.
func (s *Server) requireUser(r *http.Request) (*identity.User, error) {
	token := identity.BearerToken(r)
	if token == "" || s.resolver == nil {
		return nil, apperr.New(apperr.KindAuth, "Unable to verify user.")
	}
	u, err := s.resolver.Resolve(r.Context(), token)
	if err != nil {
		if !apperr.IsKind(err, apperr.KindAuth) {
			s.logger.Warn("could not verify bearer token: %v", err)
		}
		return nil, apperr.Wrap(err, apperr.KindAuth, "Unable to verify user.")
	}
	return u, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return apperr.Wrap(err, apperr.KindValidation, "invalid json body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

// writeAppError answers with the status of err's kind. Config errors name
// the missing settings so operators can fix them.
func writeAppError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	msg := apperr.PublicMessage(err)
	if kind == apperr.KindUnknown {
		msg = "internal error"
	}
	writeError(w, kind.HTTPStatus(), msg)
}
