package discord

import (
	"context"
	"errors"
	"fmt"
	"modbot/internal/core/domain"
	"modbot/internal/core/port"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsMessageContent |
	discordgo.IntentsGuildMembers

// closeAuthenticationFailed is the gateway close code for an invalid token.
const closeAuthenticationFailed = 4004

// Transport runs a single Discord gateway session. Reconnects are left to the supervisor.
type Transport struct {
	token  string
	prefix string

	mutex   sync.RWMutex
	session *discordgo.Session
	api     DiscordSession
	guild   guildLookup
	done    chan error
	appID   string
	name    string
	origins map[string]struct{}

	ready atomic.Bool
}

func NewTransport(token, prefix string) *Transport {
	return &Transport{
		token:   token,
		prefix:  prefix,
		origins: make(map[string]struct{}),
	}
}

func (t *Transport) Open(_ context.Context, sink port.EventSink) error {
	if err := t.Close(); err != nil {
		log.Debug().Err(err).Msg("closing previous discord session")
	}

	session, err := discordgo.New("Bot " + t.token)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDisconnected, err)
	}
	session.ShouldReconnectOnError = false
	session.Identify.Intents = Intents

	done := make(chan error, 1)

	session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		t.onReady(r)
		if err := s.UpdateWatchStatus(0, t.statusLine()); err != nil {
			log.Warn().Err(err).Msg("failed to set presence")
		}
	})
	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		t.ready.Store(false)
		select {
		case done <- domain.ErrDisconnected:
		default:
		}
	})
	session.AddHandler(func(_ *discordgo.Session, g *discordgo.GuildCreate) {
		t.addOrigin(g.ID)
	})
	session.AddHandler(func(_ *discordgo.Session, g *discordgo.GuildDelete) {
		t.removeOrigin(g.ID)
	})
	session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if event, ok := t.fromMessage(m); ok {
			sink.Dispatch(event)
		}
	})
	session.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		if event, ok := t.fromInteraction(i); ok {
			sink.Dispatch(event)
		}
	})

	t.mutex.Lock()
	t.session = session
	t.api = session
	t.guild = session.State.Guild
	t.done = done
	t.mutex.Unlock()

	if err := session.Open(); err != nil {
		return mapOpenError(err)
	}

	// discordgo fills the state from READY before Open returns, but runs our Ready handler asynchronously.
	t.adoptState(session.State)

	return nil
}

// adoptState records the bot identity and guilds from the session state.
func (t *Transport) adoptState(state *discordgo.State) {
	if state == nil {
		return
	}

	state.RLock()
	user := state.User
	guilds := make([]string, 0, len(state.Guilds))
	for _, g := range state.Guilds {
		guilds = append(guilds, g.ID)
	}
	state.RUnlock()

	t.identify(user, guilds)
}

func (t *Transport) onReady(r *discordgo.Ready) {
	guilds := make([]string, 0, len(r.Guilds))
	for _, g := range r.Guilds {
		guilds = append(guilds, g.ID)
	}

	t.identify(r.User, guilds)
	log.Info().Str("bot", t.Name()).Int("guilds", len(r.Guilds)).Msg("discord session ready")
}

func (t *Transport) identify(user *discordgo.User, guilds []string) {
	if user == nil {
		return
	}

	t.mutex.Lock()
	t.appID = user.ID
	t.name = user.Username
	for _, id := range guilds {
		t.origins[id] = struct{}{}
	}
	t.mutex.Unlock()

	t.ready.Store(true)
}

func (t *Transport) statusLine() string {
	prefix := t.prefix
	if prefix == "" {
		prefix = "/"
	}

	return prefix + "help | Moderating servers"
}

// Wait blocks until the gateway disconnects. It returns nil once ctx is done.
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
	session := t.session
	t.session = nil
	t.api = nil
	t.mutex.Unlock()

	t.ready.Store(false)
	if session == nil {
		return nil
	}

	return session.Close()
}

func (t *Transport) Name() string {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if t.name == "" {
		return "discord"
	}

	return t.name
}

func (t *Transport) Ready() bool {
	return t.ready.Load()
}

// Latency reports the gateway heartbeat round trip, or -1 when unknown.
func (t *Transport) Latency() time.Duration {
	t.mutex.RLock()
	session := t.session
	t.mutex.RUnlock()

	if session == nil || !t.ready.Load() {
		return -1
	}

	return session.HeartbeatLatency()
}

func (t *Transport) Origins() []string {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	origins := make([]string, 0, len(t.origins))
	for id := range t.origins {
		origins = append(origins, id)
	}
	sort.Strings(origins)

	return origins
}

// MapFailure recognises REST errors caused by missing guild permissions.
func (t *Transport) MapFailure(err error) (domain.FailureKind, bool) {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return domain.Unclassified, false
	}

	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess:
			return domain.BotLacksCapability, true
		}
	}
	if restErr.Response != nil && restErr.Response.StatusCode == http.StatusForbidden {
		return domain.BotLacksCapability, true
	}

	return domain.Unclassified, false
}

func (t *Transport) client() (DiscordSession, string) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return t.api, t.appID
}

func (t *Transport) addOrigin(id string) {
	t.mutex.Lock()
	t.origins[id] = struct{}{}
	t.mutex.Unlock()
}

func (t *Transport) removeOrigin(id string) {
	t.mutex.Lock()
	delete(t.origins, id)
	t.mutex.Unlock()
}

func mapOpenError(err error) error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code == closeAuthenticationFailed {
		return fmt.Errorf("%w: %w", domain.ErrTransportAuth, err)
	}

	var rateErr *discordgo.RateLimitError
	if errors.As(err, &rateErr) {
		limited := &domain.RateLimitedError{Err: err}
		if rateErr.RateLimit != nil && rateErr.TooManyRequests != nil {
			limited.RetryAfter = rateErr.RetryAfter
		}
		return limited
	}

	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %w", domain.ErrTransportAuth, err)
		case http.StatusTooManyRequests:
			return &domain.RateLimitedError{Err: err}
		}
	}

	return fmt.Errorf("%w: %w", domain.ErrDisconnected, err)
}
