package web

import (
	"context"
	"errors"
	"fmt"
	"modbot/internal/adapters/oauth"
	"modbot/internal/core/port"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// MaxPortAttempts is how many consecutive ports are tried before falling back to an ephemeral one.
const MaxPortAttempts = 5

const shutdownTimeout = 5 * time.Second

// StatusProvider reports best-effort liveness of the bot connection.
type StatusProvider interface {
	Ready() bool
	Closed() bool
	Latency() time.Duration
	Name() string
	Origins() int
}

type TokenExchanger interface {
	HasSecret() bool
	Exchange(ctx context.Context, code string) (oauth.Token, error)
	User(ctx context.Context, accessToken string) (oauth.User, error)
}

type Params struct {
	Status  StatusProvider
	OAuth   TokenExchanger
	Store   port.InstallationStore
	Version string
	Started time.Time
}

type Server struct {
	echo    *echo.Echo
	status  StatusProvider
	oauth   TokenExchanger
	store   port.InstallationStore
	version string
	started time.Time
	now     func() time.Time
}

func NewServer(p Params) *Server {
	if p.Started.IsZero() {
		p.Started = time.Now()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:    e,
		status:  p.Status,
		oauth:   p.OAuth,
		store:   p.Store,
		version: p.Version,
		started: p.Started,
		now:     time.Now,
	}

	e.GET("/", s.handleStatus)
	e.GET("/status", s.handleStatus)
	e.GET("/health", s.handleHealth)
	e.GET("/ping", s.handlePing)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/oauth/callback", s.handleOAuthCallback)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Listen binds host:port, moving up one port at a time while the address is in use.
// When every attempt is taken it binds an ephemeral port.
func Listen(ctx context.Context, host string, port int) (net.Listener, error) {
	var lc net.ListenConfig

	for attempt := range MaxPortAttempts {
		addr := net.JoinHostPort(host, strconv.Itoa(port+attempt))
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err == nil {
			return ln, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("error listening on %s: %w", addr, err)
		}

		log.Warn().Str("addr", addr).Msg("port in use, trying next port")
	}

	log.Warn().Int("attempts", MaxPortAttempts).Msg("all ports tried, binding a system-assigned port")

	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return nil, fmt.Errorf("error listening on any port: %w", err)
	}

	return ln, nil
}

// Serve runs the HTTP server on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.echo.Listener = ln

	log.Info().Str("addr", ln.Addr().String()).Msg("web server started")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("web server shutdown")
		}
		log.Info().Msg("web server stopped")
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web server: %w", err)
	}
}
