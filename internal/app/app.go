// Package app assembles the store bot: configuration, infrastructure and
// the conversation machine wired into the Telegram runtime.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/CaDiBob/simple-telegram-store/core/bootstrap"
	tg "github.com/CaDiBob/simple-telegram-store/core/telegram"
	"github.com/CaDiBob/simple-telegram-store/core/telegram/commands"
	"github.com/CaDiBob/simple-telegram-store/core/telegram/router"
	"github.com/CaDiBob/simple-telegram-store/internal/catalog"
	"github.com/CaDiBob/simple-telegram-store/internal/clients"
	"github.com/CaDiBob/simple-telegram-store/internal/payment"
	"github.com/CaDiBob/simple-telegram-store/internal/session"
	"github.com/CaDiBob/simple-telegram-store/internal/shop"

	"github.com/jmoiron/sqlx"
	tele "gopkg.in/telebot.v4"
)

// App carries the assembled application.
type App struct {
	cfg      *Config
	db       *sqlx.DB
	sessions session.Store
	handlers *shop.Handlers
	registry *tg.Registry
}

// New bootstraps infrastructure (logger, database, migrations), builds the
// domain services and registers all commands and callbacks.
func New(cfg *Config) (*App, error) {
	res, err := bootstrap.Run(bootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}

	sessions, err := buildSessionStore(cfg)
	if err != nil {
		_ = res.DB.Close()
		return nil, err
	}

	catalogStore := catalog.NewStore(res.DB)
	clientStore := clients.NewStore(res.DB)
	orderStore := payment.NewOrderStore(res.DB)

	machine := shop.NewMachine(sessions, catalogStore, clientStore, payment.NewService(orderStore), shop.Options{
		PageSize: cfg.Shop.PageSize,
		Currency: cfg.Payments.Currency,
		MaxDepth: cfg.Shop.MaxDepth,
	})
	handlers := shop.NewHandlers(machine, orderStore, cfg.Payments.ProviderToken)

	registry := tg.NewRegistry()
	registry.RegisterCommand("/start", commands.Command{
		Handler:     handlers.OnStart,
		Description: "Главное меню",
	})
	registry.RegisterCommand("/cancel", commands.Command{
		Handler:     handlers.OnCancel,
		Description: "Отменить текущее действие",
	})
	registry.RegisterCommand("/help", commands.Command{
		Handler:     handlers.OnHelp,
		Description: "Справка",
	})
	registry.RegisterCommand("/orders", commands.Command{
		Handler:     handlers.OnOrders,
		Description: "Последние заказы",
		AdminOnly:   true,
		Hidden:      true,
	})
	if err := handlers.Register(registry); err != nil {
		_ = res.DB.Close()
		return nil, err
	}

	return &App{
		cfg:      cfg,
		db:       res.DB,
		sessions: sessions,
		handlers: handlers,
		registry: registry,
	}, nil
}

func buildSessionStore(cfg *Config) (session.Store, error) {
	if cfg.Session.Backend != "redis" {
		return session.NewMemoryStore(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store, err := session.NewRedisStore(ctx, session.RedisOptions{
		Addr:     cfg.Session.Redis.Addr,
		Password: cfg.Session.Redis.Password,
		DB:       cfg.Session.Redis.DB,
		TTL:      time.Duration(cfg.Session.Redis.TTLHours) * time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("app: session backend: %w", err)
	}
	return store, nil
}

// TelegramRunOptions builds the bot runtime configuration for the runner.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	core := a.cfg.CoreConfig()

	routes := []tg.Route{
		router.TextRoute(a.handlers, a.registry, router.TextOptions{}),
		router.CallbackRoute(a.registry, router.CallbackOptions{}),
		{Endpoint: tele.OnCheckout, Handler: a.handlers.OnCheckout},
		{Endpoint: tele.OnPayment, Handler: a.handlers.OnPayment},
	}
	routes = append(routes, router.CommandRoutes(a.registry, router.CommandRouteOptions{
		AdminID: core.Telegram.AdminID,
	})...)

	return tg.RunOptions{
		Config:      core,
		Registry:    a.registry,
		Middlewares: tg.DefaultMiddlewares(core),
		Routes:      routes,
		OnStop: func(context.Context, tg.Runtime) error {
			return a.Close()
		},
	}, nil
}

// Close releases the database and session backend.
func (a *App) Close() error {
	var firstErr error
	if closer, ok := a.sessions.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			firstErr = err
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
