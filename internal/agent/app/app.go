// Package app wires the alarm agent: a logged-in session against the AirBnG
// backend, a live push channel and the durable notification inbox, run as a
// long-lived process.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/HaejunJang/airbng/pkg/notify"
	"github.com/HaejunJang/airbng/pkg/notify/drivers/sqlite"
	"github.com/HaejunJang/airbng/pkg/push"
	"github.com/HaejunJang/airbng/pkg/session"
	"github.com/HaejunJang/airbng/pkg/slogx"
	"github.com/HaejunJang/airbng/pkg/token"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the alarm agent with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	tokens  *token.Store
	client  *session.Client
	db      notify.Store
	channel *push.Manager
	inbox   *notify.Inbox

	alarmSub       *push.Subscription
	removeStateLog func()
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "alarm-agent",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.tokens = token.NewStore(token.DefaultSkew)
	app.client = session.NewClient(cfg.APIBaseURL, app.tokens, app.logger)
	app.channel = push.NewManager(push.Config{
		URL:    cfg.PushURL,
		Tokens: app.tokens,
		Logger: app.logger,
	})

	// A terminally-failed renewal invalidates everything downstream of the
	// credential: tear the channel down rather than let it retry with a
	// dead bearer.
	app.client.SetSessionLostHandler(func() {
		app.logger.Warn("session lost, closing push channel")
		app.channel.Disconnect()
	})

	return app, nil
}

// Run logs in, restores the inbox, opens the push channel and blocks until
// shutdown is requested.
func (app *Application) Run() error {
	ctx := slogx.WithContext(context.Background(), app.logger)

	if err := app.start(ctx); err != nil {
		return err
	}

	// SIGUSR1 is the "app came back to foreground" nudge: reconnect if the
	// channel went quiet, rate-limited inside the manager.
	wake := make(chan os.Signal, 1)
	signal.Notify(wake, syscall.SIGUSR1)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-wake:
			app.channel.WakeUp()
		case sig := <-shutdown:
			app.logger.Info("shutdown signal received", "signal", sig)
			return app.Shutdown()
		}
	}
}

// start authenticates, restores the member's inbox and opens the push
// channel.
func (app *Application) start(ctx context.Context) error {
	if err := app.client.Login(ctx, app.cfg.Email, app.cfg.Password); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	memberID := app.tokens.SubjectID()
	app.inbox = notify.NewInbox(notify.InboxConfig{
		Store:    app.db,
		MemberID: memberID,
		Logger:   app.logger,
		Alerter: notify.AlerterFunc(func(n notify.Notification) {
			fmt.Printf("[%s] %s: %s\n", n.ReceivedAt.Format("15:04:05"), n.Alarm.Type, n.Alarm.Message)
		}),
	})
	if err := app.inbox.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore inbox: %w", err)
	}

	app.alarmSub = app.channel.SubscribeAlarms(func(a push.Alarm) {
		if _, err := app.inbox.IngestAlarm(ctx, notify.Notification{Alarm: a}); err != nil {
			app.logger.Error("failed to ingest alarm", "alarm_id", a.ID, "error", err)
		}
	})
	app.removeStateLog = app.channel.OnStateChange(func(s push.State) {
		app.logger.Info("push channel state changed", "state", s.String())
	})

	app.channel.Connect()
	app.logger.Info("alarm agent started", "member_id", memberID, "version", BuildVersion)
	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down alarm agent...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	app.channel.Disconnect()
	if app.alarmSub != nil {
		app.channel.Unsubscribe(app.alarmSub)
	}
	if app.removeStateLog != nil {
		app.removeStateLog()
	}

	if err := app.client.Logout(ctx); err != nil {
		app.logger.Error("logout failed", "error", err)
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("alarm agent stopped")
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	db, err := sqlite.NewStore(sqlite.FileDSN(app.cfg.DatabaseFile))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}
