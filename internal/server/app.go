// Package server wires the backend worker together: database, migrations,
// bus subscriptions and the services behind them, plus graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/osokin-dev/gatehouse/internal/avatars"
	"github.com/osokin-dev/gatehouse/internal/bus"
	"github.com/osokin-dev/gatehouse/internal/identity"
	"github.com/osokin-dev/gatehouse/internal/logging"
	"github.com/osokin-dev/gatehouse/internal/mailer"
	"github.com/osokin-dev/gatehouse/internal/server/config"
	"github.com/osokin-dev/gatehouse/internal/server/repositories/repomanager"
	"github.com/osokin-dev/gatehouse/internal/sms"
	"github.com/osokin-dev/gatehouse/internal/token"
	"github.com/osokin-dev/gatehouse/internal/twofa"
)

// publishTimeout bounds bus operations issued by the worker itself.
const publishTimeout = 5 * time.Second

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	client   *bus.Client
	handlers *Handlers
}

func NewApp(cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	manager := repomanager.NewPostgresRepositoryManager()
	if err := manager.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	key, err := token.LoadPrivateKey(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("signing key error: %w", err)
	}
	issuer := token.NewIssuer(key, cfg.AccessTokenValidityDuration)

	client, err := bus.Connect(cfg.BusURL, publishTimeout, logger)
	if err != nil {
		return nil, err
	}

	provider := identity.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)

	identityService := identity.NewService(db, manager, issuer,
		cfg.RefreshTokenValidityDuration, provider, client, bus.SubjectEventRegistered, logger)

	emailSender := mailer.New(mailer.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	smsSender := sms.NewLogSender(logger)
	codes := twofa.NewCodeStore(cfg.CodeStoreCapacity)
	twofaService := twofa.NewService(db, manager, codes, smsSender, emailSender, logger)

	avatarService := avatars.NewService(avatars.Config{
		RootUser:     cfg.S3RootUser,
		RootPassword: cfg.S3RootPassword,
		Bucket:       cfg.S3Bucket,
		Region:       cfg.S3Region,
		BaseEndpoint: cfg.S3BaseEndpoint,
	})

	handlers := NewHandlers(identityService, twofaService, avatarService, logger)

	return &App{
		config:   cfg,
		logger:   logger,
		db:       db,
		client:   client,
		handlers: handlers,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run subscribes the handlers and blocks until the context is cancelled,
// then drains the bus so in-flight requests get their replies.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting worker", "bus", app.config.BusURL)

	app.initSignalHandler(cancelFunc)

	if err := app.handlers.Register(app.client); err != nil {
		return fmt.Errorf("subscribing: %w", err)
	}

	<-ctx.Done()

	app.logger.Info(ctx, "shutting down")
	if err := app.client.Drain(); err != nil {
		app.logger.Error(ctx, "bus drain", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close", "error", err)
	}
	return nil
}
