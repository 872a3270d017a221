package intake

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-credential-pool/batch"
	"github.com/jrsteele09/go-credential-pool/credentials"
	"github.com/jrsteele09/go-credential-pool/internal/config"
	"github.com/jrsteele09/go-credential-pool/notify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CodeExchanger is the part of the provider the intake flow needs
type CodeExchanger interface {
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (batch.TokenPair, error)
	LookupIdentity(ctx context.Context, accessToken string) (batch.Identity, error)
}

// Deps are the collaborators the server is wired with
type Deps struct {
	Store     credentials.Store
	Provider  CodeExchanger
	Notifier  notify.Notifier
	Refresher *batch.Refresher
	Enroller  *batch.Enroller
	Gate      *batch.Gate
	Logger    *zerolog.Logger
}

type Server struct {
	env       string
	mux       *http.ServeMux
	routes    []string
	config    config.Config
	store     credentials.Store
	provider  CodeExchanger
	notifier  notify.Notifier
	refresher *batch.Refresher
	enroller  *batch.Enroller
	gate      *batch.Gate
	state     *StateSigner
	logger    zerolog.Logger
}

func New(cfg config.Config, deps Deps) (*Server, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("[Server New] credential store is required")
	}
	if deps.Provider == nil {
		return nil, fmt.Errorf("[Server New] provider is required")
	}

	s := &Server{
		env:       cfg.GetEnv(),
		mux:       http.NewServeMux(),
		config:    cfg,
		store:     deps.Store,
		provider:  deps.Provider,
		notifier:  deps.Notifier,
		refresher: deps.Refresher,
		enroller:  deps.Enroller,
		gate:      deps.Gate,
		state:     NewStateSigner(cfg.GetStateSecret(), cfg.GetStateTTL()),
		logger:    log.Logger,
	}
	if deps.Logger != nil {
		s.logger = *deps.Logger
	}
	if s.notifier == nil {
		s.notifier = notify.Nop
	}
	if s.gate == nil {
		s.gate = batch.NewGate()
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

// Routes lists the registered route patterns in registration order
func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
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
	s.logger.Info().Msgf("[%-19s] %s", color+paddedMethod+ResetColor, path)
}
