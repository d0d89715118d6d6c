package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/urfave/cli/v2"

	"storefront/internal/auth"
	"storefront/internal/config"
	httpapi "storefront/internal/http"
	"storefront/internal/logging"
	"storefront/internal/repository"
	"storefront/internal/service"

	_ "storefront/docs"
)

// @title Storefront API
// @version 1.0
// @description Catalog, orders with loyalty points and point transfers.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	app := &cli.App{
		Name:  "storefront",
		Usage: "storefront HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to YAML config",
				EnvVars: []string{"STOREFRONT_CONFIG"},
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run HTTP server",
				Action: serve,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "seed", Usage: "seed demo data before start (useful with the memory driver)"},
				},
			},
			{Name: "migrate", Usage: "apply database migrations and exit", Action: migrate},
			{Name: "seed", Usage: "create demo accounts and products", Action: seed},
		},
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type deps struct {
	cfg    config.Config
	log    *slog.Logger
	stores repository.Stores
	health func(ctx context.Context) error
	close  func() error
}

func setup(c *cli.Context) (*deps, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	a := &deps{cfg: cfg, log: log, close: func() error { return nil }}
	switch cfg.Database.Driver {
	case "memory":
		a.stores = repository.NewMemoryStores()
	default:
		db, err := repository.OpenSQL(c.Context, repository.Dialect(cfg.Database.Driver), cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		a.stores = db.Stores()
		a.health = db.Ping
		a.close = db.Close
	}
	log.Info("storage ready", "driver", cfg.Database.Driver, "schema", repository.CurrentSchemaVersion())
	return a, nil
}

func (a *deps) identity() *service.AuthService {
	return service.NewAuthService(a.stores.Users, auth.NewTokenIssuer(a.cfg.Auth.JWTSecret, a.cfg.Auth.TokenTTL))
}

func serve(c *cli.Context) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	defer a.close()

	if c.Bool("seed") {
		if _, err := service.Seed(c.Context, a.identity(), a.stores.Products); err != nil {
			return err
		}
	}

	gin.SetMode(a.cfg.GinMode)
	st := a.stores
	srv := httpapi.NewServer(
		service.NewProductService(st.Products, st.Tx),
		service.NewOrderService(st.Products, st.Users, st.Orders, st.Tx),
		service.NewPointsService(st.Users, st.Transfers, st.Tx),
		a.identity(),
		httpapi.Options{
			CookieName:   a.cfg.Auth.CookieName,
			CookieSecure: a.cfg.Auth.CookieSecure,
			Logger:       a.log,
			Health:       a.health,
		},
	)

	httpServer := &http.Server{
		Addr:    a.cfg.HTTP.Addr,
		Handler: withCORS(a.cfg.HTTP.CORSOrigins)(srv.Engine()),
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-c.Context.Done():
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		a.log.Error("shutdown error", "error", err)
		return err
	}
	a.log.Info("server stopped")
	return nil
}

// withCORS cookie-сессии требуют AllowCredentials, поэтому "*" не смешивается с явными доменами
func withCORS(origins []string) func(http.Handler) http.Handler {
	wildcard := len(origins) == 0 || (len(origins) == 1 && origins[0] == "*")
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: !wildcard,
		MaxAge:           300,
	})
}

// migrate миграции применяются в OpenSQL; команда только открывает базу
func migrate(c *cli.Context) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	defer a.close()
	if a.cfg.Database.Driver == "memory" {
		a.log.Warn("memory driver has no schema")
		return nil
	}
	a.log.Info("migrations applied", "version", repository.CurrentSchemaVersion())
	return nil
}

func seed(c *cli.Context) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	defer a.close()
	res, err := service.Seed(c.Context, a.identity(), a.stores.Products)
	if err != nil {
		return err
	}
	a.log.Info("seed done", "users", res.Users, "products", res.Products)
	return nil
}
