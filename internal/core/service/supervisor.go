package service

import (
	"context"
	"errors"
	"fmt"
	"modbot/internal/core/domain"
	"modbot/internal/core/port"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RetryPolicy bounds how often the supervisor reconnects after the transport drops.
type RetryPolicy struct {
	MaxAttempts    int
	RetryDelay     time.Duration
	RateLimitDelay time.Duration
	// StableAfter is how long a connection must stay up before the attempt counter starts over.
	StableAfter time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    5,
		RetryDelay:     5 * time.Second,
		RateLimitDelay: 10 * time.Second,
		StableAfter:    time.Minute,
	}
}

// NextDelay returns the pause before reconnecting after err. Rate limits wait longer, honouring the platform's
// retry-after when it exceeds the configured delay.
func (p RetryPolicy) NextDelay(err error) time.Duration {
	var limited *domain.RateLimitedError
	if errors.As(err, &limited) {
		if limited.RetryAfter > p.RateLimitDelay {
			return limited.RetryAfter
		}
		return p.RateLimitDelay
	}

	return p.RetryDelay
}

// DispatchControl is the dispatcher as seen by the supervisor.
type DispatchControl interface {
	port.EventSink
	StartGeneration(ctx context.Context)
	CancelGeneration()
}

// CatalogSource lists the commands to publish to the platform.
type CatalogSource interface {
	Catalog(kind domain.InvocationKind) []domain.CatalogEntry
}

type SupervisorParams struct {
	Transport port.Transport
	Sink      DispatchControl
	Catalog   CatalogSource
	Policy    RetryPolicy
	Sleep     func(ctx context.Context, d time.Duration) error
	Now       func() time.Time
}

// Supervisor owns the transport connection and its state. It is the only writer of ConnectionState.
type Supervisor struct {
	transport port.Transport
	sink      DispatchControl
	catalog   CatalogSource
	policy    RetryPolicy
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time

	state  atomic.Int32
	synced bool
	l      zerolog.Logger
}

func NewSupervisor(p SupervisorParams) *Supervisor {
	if p.Policy.MaxAttempts <= 0 {
		p.Policy = DefaultRetryPolicy()
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	if p.Now == nil {
		p.Now = time.Now
	}

	return &Supervisor{
		transport: p.Transport,
		sink:      p.Sink,
		catalog:   p.Catalog,
		policy:    p.Policy,
		sleep:     p.Sleep,
		now:       p.Now,
		l:         log.With().Str("transport", p.Transport.Name()).Logger(),
	}
}

func (s *Supervisor) State() domain.ConnectionState {
	return domain.ConnectionState(s.state.Load())
}

func (s *Supervisor) setState(state domain.ConnectionState) {
	s.state.Store(int32(state))
	connectionStateGauge.Set(float64(state))
	s.l.Debug().Str("state", state.String()).Msg("connection state changed")
}

// Run keeps the transport connected until ctx is cancelled or a fatal condition occurs. It returns nil on shutdown,
// an error wrapping domain.ErrTransportAuth on bad credentials and domain.ErrMaxRetries once retries are exhausted.
// The transport is always closed before Run returns.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.shutdown()

	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		attempt++
		s.l.Info().Int("attempt", attempt).Int("maxAttempts", s.policy.MaxAttempts).Msg("connecting")
		s.setState(domain.Connecting)

		// Events may arrive while Open is still running.
		s.sink.StartGeneration(ctx)
		err := s.transport.Open(ctx, s.sink)
		if err == nil {
			connectAttempts.WithLabelValues("connected").Inc()
			connectedAt := s.now()
			s.onConnected(ctx)

			err = s.transport.Wait(ctx)
			s.sink.CancelGeneration()
			if ctx.Err() != nil {
				return nil
			}

			if err == nil {
				err = domain.ErrDisconnected
			}
			if s.now().Sub(connectedAt) >= s.policy.StableAfter {
				attempt = 0
			}
		} else {
			s.sink.CancelGeneration()
			connectAttempts.WithLabelValues("failed").Inc()
			if ctx.Err() != nil {
				return nil
			}
		}

		s.setState(domain.Disconnected)

		if errors.Is(err, domain.ErrTransportAuth) {
			s.l.Error().Err(err).Msg("invalid bot token, not retrying")
			return err
		}

		if attempt >= s.policy.MaxAttempts {
			s.l.Error().Err(err).Int("attempts", attempt).Msg("max retries reached, giving up")
			return fmt.Errorf("%w after %d attempts: %w", domain.ErrMaxRetries, attempt, err)
		}

		delay := s.policy.NextDelay(err)
		s.l.Warn().Err(err).Dur("delay", delay).Int("attempt", attempt).Msg("connection lost, retrying")
		if err := s.sleep(ctx, delay); err != nil {
			return nil
		}
	}
}

func (s *Supervisor) onConnected(ctx context.Context) {
	s.setState(domain.Connected)
	s.l.Info().Str("name", s.transport.Name()).Int("origins", len(s.transport.Origins())).Msg("connected")

	if !s.synced {
		s.synced = s.syncCatalog(ctx)
	}
}

// syncCatalog publishes the command catalog globally, falling back to the first origin that accepts it.
func (s *Supervisor) syncCatalog(ctx context.Context) bool {
	if s.catalog == nil {
		return true
	}

	entries := s.catalog.Catalog(s.transport.CatalogKind())

	n, err := s.transport.SyncCommands(ctx, "", entries)
	if err == nil {
		s.l.Info().Int("commands", n).Msg("synced commands globally")
		return true
	}
	s.l.Error().Err(err).Msg("failed to sync commands globally")

	for _, origin := range s.transport.Origins() {
		n, err := s.transport.SyncCommands(ctx, origin, entries)
		if err != nil {
			s.l.Error().Err(err).Str("origin", origin).Msg("failed to sync commands to origin")
			continue
		}

		s.l.Info().Int("commands", n).Str("origin", origin).Msg("synced commands to origin")
		return true
	}

	return false
}

func (s *Supervisor) shutdown() {
	s.setState(domain.Closing)
	s.sink.CancelGeneration()

	if err := s.transport.Close(); err != nil {
		s.l.Warn().Err(err).Msg("failed to close transport")
	}

	s.setState(domain.Closed)
	s.l.Info().Msg("connection closed")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
