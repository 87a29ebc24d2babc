package backend

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Options configures a Server.
type Options struct {
	// StepDelay is the pause between the lifecycle events of a turn.
	StepDelay time.Duration
	// AllowedOrigins feeds the CORS middleware. Defaults to "*".
	AllowedOrigins []string
	// RequestLog enables chi's request logger.
	RequestLog bool
	Logger     *slog.Logger
}

// Server wires the hub, the history and both handlers into one router.
type Server struct {
	hub     *Hub
	history *History
	ws      *WebSocketHandler
	api     *APIHandler
	opts    Options
}

// NewServer creates a reference backend with empty history.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	logger := opts.Logger.With("component", "backend")

	hub := NewHub(logger)
	history := NewHistory()
	return &Server{
		hub:     hub,
		history: history,
		ws:      NewWebSocketHandler(hub, history, opts.StepDelay, logger),
		api:     NewAPIHandler(history, hub),
		opts:    opts,
	}
}

// History returns the backing history.
func (s *Server) History() *History { return s.history }

// Hub returns the connection hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the HTTP router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	if s.opts.RequestLog {
		r.Use(chiMiddleware.Logger)
	}
	r.Use(chiMiddleware.Recoverer)
	r.Use(CORS(s.opts.AllowedOrigins))

	s.api.RegisterRoutes(r)
	r.Get("/ws/{clientID}", s.ws.ServeHTTP)

	return r
}

// Close disconnects all clients.
func (s *Server) Close() {
	s.hub.CloseAll()
}
