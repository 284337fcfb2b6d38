package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"modbot/internal/adapters/discord"
	"modbot/internal/adapters/file"
	"modbot/internal/adapters/oauth"
	"modbot/internal/adapters/store"
	"modbot/internal/adapters/telegram"
	"modbot/internal/adapters/web"
	"modbot/internal/config"
	"modbot/internal/core/domain"
	"modbot/internal/core/domain/command"
	"modbot/internal/core/port"
	"modbot/internal/core/service"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	logDir         = "logs"
	dataDir        = "data"
	cooldownSweep  = 5 * time.Minute
	laneIdle       = time.Minute
	storeSetupTime = 10 * time.Second
)

var pingCooldown = domain.Cooldown{Rate: 2, Per: 5 * time.Second}

// botTransport is a platform adapter that also recognises its SDK's failures.
type botTransport interface {
	port.Transport
	port.FailureMapper
}

type settings struct {
	env    config.Env
	config config.Config
}

func loadSettings(configPath string) (settings, error) {
	env, err := config.LoadEnv()
	if err != nil {
		return settings{}, err
	}

	if configPath == "" {
		configPath = env.ConfigPath
	}

	c := config.Load(configPath)
	if env.LogLevel != "" {
		c.LogLevel = env.LogLevel
	}

	return settings{env: env, config: c}, nil
}

// setupLogging writes to the console and to a daily file under logs/. The returned func closes the file.
func setupLogging(level zerolog.Level, now time.Time) (func(), error) {
	zerolog.SetGlobalLevel(level)

	if err := file.EnsureDirectories(logDir, dataDir); err != nil {
		return func() {}, err
	}

	f, err := file.OpenDailyLog(logDir, now)
	if err != nil {
		return func() {}, err
	}

	w := zerolog.MultiLevelWriter(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime}, f)
	log.Logger = zerolog.New(w).With().Timestamp().Logger()

	return func() {
		if err := f.Close(); err != nil {
			log.Warn().Err(err).Msg("could not close log file")
		}
	}, nil
}

func newTransport(c config.Config, token string) (botTransport, error) {
	switch c.Platform {
	case config.PlatformDiscord:
		return discord.NewTransport(token, c.Prefix), nil
	case config.PlatformTelegram:
		return telegram.NewTransport(token, c.Transport.DisconnectAfter), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownPlatform, c.Platform)
	}
}

// buildRegistry registers the built-in commands in both namespaces and seals the registry.
func buildRegistry(status command.StatusSource, prefix string, started time.Time) (*command.Registry, error) {
	registry := command.NewRegistry()

	ping := command.NewPing(status.Latency)
	help := command.NewHelp(registry, prefix)
	info := command.NewBotInfo(status, started, version)

	for _, kind := range []domain.InvocationKind{domain.TextPrefixed, domain.StructuredInteraction} {
		for _, reg := range []port.Registration{
			{Kind: kind, Name: "ping", Cooldown: pingCooldown, Handler: ping},
			{Kind: kind, Name: "help", Handler: help},
			{Kind: kind, Name: "botinfo", Handler: info},
		} {
			if err := registry.Register(reg); err != nil {
				return nil, fmt.Errorf("failed registering %s command %q: %w", kind, reg.Name, err)
			}
		}
	}

	registry.Seal()

	return registry, nil
}

// openStore connects to Postgres when a database URL is configured. Without one, installations are not persisted.
func openStore(ctx context.Context, databaseURL string) (port.InstallationStore, func()) {
	if databaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, user installations will not be stored")
		return nil, func() {}
	}

	ctx, cancel := context.WithTimeout(ctx, storeSetupTime)
	defer cancel()

	pool, err := store.NewPool(ctx, databaseURL)
	if err != nil {
		log.Error().Err(err).Msg("could not connect to database, user installations will not be stored")
		return nil, func() {}
	}

	pg := store.NewPostgres(pool)
	if err := pg.Ensure(ctx); err != nil {
		log.Error().Err(err).Msg("could not prepare database schema, user installations will not be stored")
		pool.Close()
		return nil, func() {}
	}

	log.Info().Msg("database ready")

	return pg, pool.Close
}

func runApp(ctx context.Context, configPath string, withWeb bool) error {
	started := time.Now()

	s, err := loadSettings(configPath)
	if err != nil {
		return err
	}

	closeLog, err := setupLogging(config.ParseLevel(s.config.LogLevel), started)
	if err != nil {
		log.Warn().Err(err).Msg("file logging unavailable, logging to console only")
	}
	defer closeLog()

	log.Info().Str("version", version).Str("platform", s.config.Platform).Msg("starting modbot...")

	token, err := s.env.Token(s.config.Platform)
	if err != nil {
		log.Error().Err(err).Msg("bot token missing, set it in the environment or .env file")
		return err
	}

	transport, err := newTransport(s.config, token)
	if err != nil {
		return err
	}

	registry, err := buildRegistry(transport, s.config.Prefix, started)
	if err != nil {
		return err
	}

	gate := service.NewPermissionGate(service.PermissionConfig{
		SuperAdmins:    s.config.Permissions.SuperAdmins,
		ModeratorRoles: s.config.Permissions.ModeratorRoles,
		AdminRoles:     s.config.Permissions.AdminRoles,
	})

	g, ctx := errgroup.WithContext(ctx)

	dispatcher := service.NewDispatcher(service.DispatcherParams{
		Registry:      registry,
		Gate:          gate,
		Classifier:    service.NewClassifier(transport),
		Responder:     service.NewResponder(gate, transport),
		Replier:       transport,
		Deduper:       service.NewDeduper(s.config.Dedupe.Capacity, s.config.Dedupe.TTL),
		Cooldowns:     service.NewCooldowns(ctx, cooldownSweep),
		Timeout:       s.config.Handler.Timeout,
		MaxConcurrent: s.config.Dispatch.MaxConcurrent,
		LaneBuffer:    s.config.Dispatch.LaneBuffer,
		IdleTimeout:   laneIdle,
	})
	defer dispatcher.Stop()

	supervisor := service.NewSupervisor(service.SupervisorParams{
		Transport: transport,
		Sink:      dispatcher,
		Catalog:   registry,
		Policy: service.RetryPolicy{
			MaxAttempts:    s.config.Transport.MaxAttempts,
			RetryDelay:     s.config.Transport.RetryDelay,
			RateLimitDelay: s.config.Transport.RateLimitDelay,
			StableAfter:    s.config.Transport.StableAfter,
		},
	})

	if withWeb {
		installations, closeStore := openStore(ctx, s.env.DatabaseURL)
		defer closeStore()

		server := web.NewServer(web.Params{
			Status: service.NewLiveness(supervisor, transport),
			OAuth: oauth.NewClient(oauth.Config{
				ClientID:     s.config.ClientID,
				ClientSecret: s.env.DiscordClientSecret,
				RedirectURI:  s.config.RedirectURI,
				TokenURL:     s.config.OAuth.TokenURL,
				UserURL:      s.config.OAuth.UserURL,
			}),
			Store:   installations,
			Version: version,
			Started: started,
		})

		ln, err := web.Listen(ctx, s.config.Web.Host, s.env.Port)
		if err != nil {
			return fmt.Errorf("failed starting web server: %w", err)
		}

		log.Info().Str("addr", ln.Addr().String()).Msg("web server listening")

		g.Go(func() error {
			return server.Serve(ctx, ln)
		})
	}

	g.Go(func() error {
		err := supervisor.Run(ctx)
		if err == nil && ctx.Err() == nil {
			return errors.New("bot connection closed")
		}
		return err
	})

	return g.Wait()
}

func printCommands(w io.Writer, configPath string) error {
	s, err := loadSettings(configPath)
	if err != nil {
		return err
	}

	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	transport, err := newTransport(s.config, "")
	if err != nil {
		return err
	}

	registry, err := buildRegistry(transport, s.config.Prefix, time.Now())
	if err != nil {
		return err
	}

	for _, ns := range []struct {
		kind   domain.InvocationKind
		prefix string
	}{
		{kind: domain.TextPrefixed, prefix: s.config.Prefix},
		{kind: domain.StructuredInteraction, prefix: "/"},
	} {
		if _, err := fmt.Fprintf(w, "%s commands:\n", ns.kind); err != nil {
			return err
		}

		for _, entry := range registry.Catalog(ns.kind) {
			if _, err := fmt.Fprintf(w, "  %s%s - %s\n", ns.prefix, entry.Name, entry.Description); err != nil {
				return err
			}
		}
	}

	return nil
}
