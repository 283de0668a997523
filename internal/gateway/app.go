package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/osokin-dev/gatehouse/internal/bus"
	"github.com/osokin-dev/gatehouse/internal/gateway/config"
	"github.com/osokin-dev/gatehouse/internal/identity"
	"github.com/osokin-dev/gatehouse/internal/logging"
	"github.com/osokin-dev/gatehouse/internal/token"
)

// App owns the HTTP server and the shared bus connection.
type App struct {
	config *config.Config
	logger logging.Logger
	client *bus.Client
	server *http.Server
}

func NewApp(cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	key, err := token.LoadPublicKey(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("verify key error: %w", err)
	}
	verifier := token.NewVerifier(key)

	client, err := bus.Connect(cfg.BusURL, cfg.BusTimeout, logger)
	if err != nil {
		return nil, err
	}

	provider := identity.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)

	handler := NewHandler(client, verifier, provider, CookieConfig{
		Secure:        cfg.CookieSecure,
		AccessMaxAge:  cfg.AccessTokenValidityDuration,
		RefreshMaxAge: cfg.RefreshTokenValidityDuration,
	}, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	handler.RegisterRoutes(router)

	return &App{
		config: cfg,
		logger: logger,
		client: client,
		server: &http.Server{Addr: cfg.Addr, Handler: router},
	}, nil
}

// Run serves HTTP until ListenAndServe returns.
func (app *App) Run(ctx context.Context) error {
	app.logger.Info(ctx, "starting gateway", "addr", app.config.Addr, "bus", app.config.BusURL)

	if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, drains in-flight requests, then
// closes the bus connection.
func (app *App) Shutdown(ctx context.Context) error {
	err := app.server.Shutdown(ctx)
	app.client.Close()
	return err
}
