package telegram

import (
	"context"
	"errors"
	"fmt"
	"modbot/internal/core/domain"
	"modbot/internal/core/port"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-telegram/bot"
	"github.com/rs/zerolog/log"
)

// DefaultDisconnectAfter is how long polling may fail continuously before the session counts as lost.
const DefaultDisconnectAfter = 30 * time.Second

type botFactory func(token string, options ...bot.Option) (*bot.Bot, error)

// Transport runs a long-polling Telegram session.
type Transport struct {
	token           string
	disconnectAfter time.Duration
	newBot          botFactory

	mutex        sync.RWMutex
	api          TelegramBot
	cancel       context.CancelFunc
	done         chan error
	name         string
	origins      map[int64]struct{}
	failingSince time.Time
	lastFailure  time.Time

	running atomic.Bool
	latency atomic.Int64
}

func NewTransport(token string, disconnectAfter time.Duration) *Transport {
	if disconnectAfter <= 0 {
		disconnectAfter = DefaultDisconnectAfter
	}

	return &Transport{
		token:           token,
		disconnectAfter: disconnectAfter,
		newBot:          bot.New,
		origins:         make(map[int64]struct{}),
	}
}

func (t *Transport) Open(ctx context.Context, sink port.EventSink) error {
	_ = t.Close()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	report := func(err error) {
		select {
		case done <- err:
		default:
		}
		cancel()
	}

	b, err := t.newBot(t.token,
		bot.WithDefaultHandler(t.handle(sink)),
		bot.WithErrorsHandler(t.pollingErrors(report)),
	)
	if err != nil {
		cancel()
		return mapConnectError(err)
	}

	started := time.Now()
	me, err := b.GetMe(ctx)
	if err != nil {
		cancel()
		return mapConnectError(err)
	}
	t.latency.Store(int64(time.Since(started)))

	t.mutex.Lock()
	t.api = b
	t.cancel = cancel
	t.done = done
	t.name = "@" + me.Username
	t.failingSince = time.Time{}
	t.mutex.Unlock()

	t.running.Store(true)
	log.Info().Str("bot", t.Name()).Msg("telegram session started")

	go func() {
		b.Start(runCtx)
		t.running.Store(false)
		report(domain.ErrDisconnected)
	}()

	return nil
}

// Wait blocks until the session ends. It returns nil once ctx is done.
func (t *Transport) Wait(ctx context.Context) error {
	t.mutex.RLock()
	done := t.done
	t.mutex.RUnlock()

	if done == nil {
		return domain.ErrNotConnected
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-done:
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
}

func (t *Transport) Close() error {
	t.mutex.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.api = nil
	t.mutex.Unlock()

	if cancel != nil {
		cancel()
	}
	t.running.Store(false)

	return nil
}

func (t *Transport) Name() string {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if t.name == "" {
		return "telegram"
	}

	return t.name
}

func (t *Transport) Ready() bool {
	return t.running.Load()
}

// Latency reports the round trip of the last getMe call, or -1 when offline.
func (t *Transport) Latency() time.Duration {
	if !t.running.Load() {
		return -1
	}

	return time.Duration(t.latency.Load())
}

// MapFailure recognises Bot API errors caused by missing chat rights.
func (t *Transport) MapFailure(err error) (domain.FailureKind, bool) {
	switch {
	case errors.Is(err, bot.ErrorForbidden):
		return domain.BotLacksCapability, true
	case errors.Is(err, bot.ErrorBadRequest) && strings.Contains(strings.ToLower(err.Error()), "not enough rights"):
		return domain.BotLacksCapability, true
	default:
		return domain.Unclassified, false
	}
}

func (t *Transport) client() TelegramBot {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return t.api
}

func (t *Transport) remember(chatID int64) {
	t.mutex.Lock()
	t.origins[chatID] = struct{}{}
	t.mutex.Unlock()
}

// recovered marks polling healthy again after an update arrives.
func (t *Transport) recovered() {
	t.mutex.Lock()
	t.failingSince = time.Time{}
	t.mutex.Unlock()
}

func (t *Transport) pollingErrors(report func(error)) func(error) {
	return func(err error) {
		log.Warn().Err(err).Msg("telegram polling error")

		if errors.Is(err, bot.ErrorUnauthorized) {
			report(fmt.Errorf("%w: %w", domain.ErrTransportAuth, err))
			return
		}

		now := time.Now()

		t.mutex.Lock()
		if t.failingSince.IsZero() || now.Sub(t.lastFailure) > t.disconnectAfter {
			t.failingSince = now
		}
		t.lastFailure = now
		failing := now.Sub(t.failingSince)
		t.mutex.Unlock()

		if failing >= t.disconnectAfter {
			report(fmt.Errorf("%w: %w", domain.ErrDisconnected, err))
		}
	}
}

func mapConnectError(err error) error {
	if errors.Is(err, bot.ErrorUnauthorized) {
		return fmt.Errorf("%w: %w", domain.ErrTransportAuth, err)
	}

	var tooMany *bot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		return &domain.RateLimitedError{
			RetryAfter: time.Duration(tooMany.RetryAfter) * time.Second,
			Err:        err,
		}
	}

	return fmt.Errorf("%w: %w", domain.ErrDisconnected, err)
}
