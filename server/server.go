package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/jrsteele09/go-auth-session/tokenstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Server is the HTTP surface of the session service.
type Server struct {
	env      string
	mux      *http.ServeMux
	routes   []string
	config   *config.Config
	sessions *session.Manager
	stores   tokenstore.Opener
	gatherer prometheus.Gatherer
	log      zerolog.Logger

	stateCookie tokenstore.CookieOptions
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.log = l.With().Str("component", "server").Logger()
	}
}

// WithGatherer exposes g on the metrics route. Without it the route is not registered.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// New wires the auth routes to manager, with stores opened per request.
func New(cfg *config.Config, manager *session.Manager, stores tokenstore.Opener, opts ...Option) (*Server, error) {
	if cfg == nil || manager == nil || stores == nil {
		return nil, fmt.Errorf("[Server New] config, session manager and token store are required")
	}

	secure, fixed := cfg.SecureCookies()
	s := &Server{
		env:         cfg.GetEnv(),
		mux:         http.NewServeMux(),
		config:      cfg,
		sessions:    manager,
		stores:      stores,
		log:         zerolog.Nop(),
		stateCookie: tokenstore.CookieOptions{Secure: secure, SecureFixed: fixed},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// Routes lists the registered patterns in registration order.
func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

func (s *Server) logRoutes() {
	if !s.config.IsDev() {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("", parts[0])
		}
	}
}

func (s *Server) logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	s.log.Info().Msgf("[%-19s] %s", color+paddedMethod+ResetColor, path)
}
