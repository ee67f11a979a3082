package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kavik/groupwarden-go/internal/adapter"
	"github.com/kavik/groupwarden-go/internal/command"
	"github.com/kavik/groupwarden-go/internal/config"
	"github.com/kavik/groupwarden-go/internal/constants"
	"github.com/kavik/groupwarden-go/internal/dispatch"
	"github.com/kavik/groupwarden-go/internal/event"
	"github.com/kavik/groupwarden-go/internal/gateway"
	"github.com/kavik/groupwarden-go/internal/platform"
	"github.com/kavik/groupwarden-go/internal/service"
	"github.com/kavik/groupwarden-go/internal/service/cache"
	"github.com/kavik/groupwarden-go/internal/service/database"
	"github.com/kavik/groupwarden-go/internal/sink"
	"github.com/kavik/groupwarden-go/internal/state"
)

// Container bundles the assembled components for constructing the
// runtime Bot.
type Container struct {
	Config *config.Config
	Logger *zap.Logger

	Feed       *platform.UpdateFeed
	Dispatcher *dispatch.Dispatcher
	Sink       *sink.Sink
	Janitor    *service.MuteJanitor
	Gateway    *gateway.Gateway

	closers []func()
}

// NewBot wraps the assembled components into a runnable Bot.
func (c *Container) NewBot() (*Bot, error) {
	if c == nil || c.Dispatcher == nil {
		return nil, fmt.Errorf("container not initialized")
	}
	return newBot(c), nil
}

// Close tears down the container's infrastructure in reverse build
// order. Safe to call after Build failed.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Build assembles all infrastructure and wires the dispatch core. All
// heavy-weight initialization (DB, cache, AI clients) happens here so
// that the Bot stays focused on lifecycle.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (container *Container, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	container = &Container{
		Config: cfg,
		Logger: logger,
	}
	defer func() {
		if err != nil {
			container.Close()
		}
	}()

	// Transport primitives.
	client := platform.NewClient(cfg.Platform.BaseURL, cfg.Platform.Token, logger)
	feed := platform.NewUpdateFeed(
		cfg.Platform.WSURL,
		constants.WebSocketConfig.MaxReconnectAttempts,
		constants.WebSocketConfig.ReconnectDelay,
		logger,
	)
	formatter := adapter.NewResponseFormatter(cfg.Bot.Prefix)

	// Cache and database.
	cacheSvc, err := cache.NewCacheService(cache.CacheConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache service: %w", err)
	}
	container.closers = append(container.closers, func() {
		_ = cacheSvc.Close()
	})

	postgresSvc, err := database.NewPostgresService(database.PostgresConfig{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		Database: cfg.Postgres.Database,
		SSLMode:  cfg.Postgres.SSLMode,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres service: %w", err)
	}
	container.closers = append(container.closers, func() {
		_ = postgresSvc.Close()
	})

	if err := postgresSvc.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	// Chat state store: durable CAS rows plus the redis dedup index.
	backend := state.NewPostgresBackend(postgresSvc.GetDB(), logger)
	dedup := state.NewRedisDedup(cacheSvc, cfg.Moderation.DedupWindow, constants.DedupConfig.MaxPerChat)
	store := state.NewStore(backend, dedup, logger)

	// External service gateway and the services behind it.
	gw := gateway.New(gateway.Config{
		DefaultTimeout:   cfg.Gateway.ServiceTimeout,
		FailureThreshold: cfg.Gateway.FailureThreshold,
		Cooldown:         cfg.Gateway.Cooldown,
	}, logger)

	weatherSvc := service.NewWeatherService(gw, cacheSvc, cfg.Weather.APIKey, logger)
	dictionarySvc := service.NewDictionaryService(gw, service.NewWiktionaryScraper(logger), logger)
	translateSvc := service.NewTranslateService(gw, cacheSvc, cfg.Translate.Email, logger)
	adminSvc := service.NewAdminService(client, cacheSvc, logger)

	var assistant command.AnswerProvider
	if cfg.Gemini.APIKey != "" {
		assistantSvc, err := service.NewAssistantService(ctx, gw, service.AssistantConfig{
			GeminiAPIKey:   cfg.Gemini.APIKey,
			OpenAIAPIKey:   cfg.OpenAI.APIKey,
			EnableFallback: cfg.OpenAI.EnableFallback,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create assistant service: %w", err)
		}
		assistant = assistantSvc
	} else {
		logger.Warn("Assistant disabled (no Gemini API key)")
	}

	// Handler registration. Conflicts here are fatal; serving never
	// starts with an ambiguous handler table.
	deps := &command.Dependencies{
		Weather:       weatherSvc,
		Dictionary:    dictionarySvc,
		Translator:    translateSvc,
		AI:            assistant,
		Admins:        adminSvc,
		Formatter:     formatter,
		BotName:       cfg.Bot.Name,
		Prefix:        cfg.Bot.Prefix,
		WarnThreshold: cfg.Moderation.WarnThreshold,
		Logger:        logger,
	}

	registry := command.NewRegistry()
	if err := command.RegisterAll(registry, deps); err != nil {
		return nil, fmt.Errorf("handler registration failed: %w", err)
	}
	registry.Freeze()
	logger.Info("Handler registry frozen", zap.Int("handlers", registry.Count()))

	// Outbound path, then the dispatch core on top of everything.
	actionSink := sink.NewSink(client, sink.Config{}, logger)
	normalizer := event.NewNormalizer(cfg.Bot.Prefix)
	dispatcher := dispatch.NewDispatcher(normalizer, registry, store, actionSink, dispatch.Config{
		MaxConcurrent:   cfg.Dispatch.MaxConcurrent,
		EventDeadline:   cfg.Dispatch.EventDeadline,
		MutationRetries: cfg.Dispatch.MaxMutationRetries,
		LaneBuffer:      cfg.Dispatch.LaneBuffer,
		LaneIdleTimeout: cfg.Dispatch.LaneIdleTimeout,
	}, logger)

	container.Feed = feed
	container.Dispatcher = dispatcher
	container.Sink = actionSink
	container.Janitor = service.NewMuteJanitor(store, actionSink, logger)
	container.Gateway = gw

	return container, nil
}
