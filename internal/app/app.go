package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/geowidget/tilefetch/internal/fetcher"
	v1 "github.com/geowidget/tilefetch/internal/infrastructure/http/v1"
	"github.com/geowidget/tilefetch/internal/infrastructure/http/v1/handler"
	"github.com/geowidget/tilefetch/internal/repository/store"
	"github.com/geowidget/tilefetch/internal/tile"
	"github.com/geowidget/tilefetch/internal/usecase"
	"github.com/geowidget/tilefetch/pkg/config"
	"github.com/geowidget/tilefetch/pkg/logger"
	"github.com/geowidget/tilefetch/pkg/telemetry"
	"github.com/geowidget/tilefetch/pkg/worker"
)

func Run() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	l := logger.NewZapLogger(cfg.Logger.Level)

	l.Info("starting tileproxy", "source", cfg.Source.Name, "backend", cfg.Store.Backend)

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.InitTracer(telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Telemetry.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		}, l)
		if err != nil {
			l.Fatal("failed to initialize telemetry", "error", err)
		}
		defer func() {
			if err := shutdownTelemetry(context.Background()); err != nil {
				l.Error("failed to shutdown telemetry", "error", err)
			}
		}()
		l.Info("telemetry initialized", "service", cfg.Telemetry.ServiceName)
	}

	tileStore, err := store.New(store.Config{
		Backend: cfg.Store.Backend,
		Dir:     cfg.Store.Dir,
		Source:  cfg.Source.Name,
		Redis: store.RedisConfig{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			TTL:      cfg.Store.Redis.TTL,
		},
	}, l)
	if err != nil {
		l.Fatal("failed to initialize tile store", "error", err)
	}

	pool := worker.NewPool(cfg.Fetch.Workers)
	defer pool.Shutdown()

	tiles := usecase.NewTileService(l)

	tileURL := cfg.Source.TileURL
	f := fetcher.New(fetcher.Options{
		URL: func(c tile.Coord) string {
			return fmt.Sprintf("%s/%d/%d/%d.png", tileURL, c.Zoom, c.X, c.Y)
		},
		Deliver:         tiles.Deliver,
		Store:           tileStore,
		Workers:         pool,
		UserAgent:       cfg.Fetch.UserAgent,
		Timeout:         cfg.Fetch.Timeout,
		RecacheFallback: cfg.Fetch.RecacheFallback,
		Logger:          l,
	})
	tiles.Bind(f)

	h := handler.NewHandler(validator.New(), tiles, cfg.HTTP.Timeout)
	router := v1.NewRouter(h, l, cfg.Telemetry.Enabled)

	server := &http.Server{
		Addr:         ":" + cfg.HTTP.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.Server.ReadTimeout,
		WriteTimeout: cfg.HTTP.Server.WriteTimeout,
		IdleTimeout:  cfg.HTTP.Server.IdleTimeout,
	}

	go func() {
		l.Info("starting http server", "port", cfg.HTTP.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		l.Fatal("server forced to shutdown", "error", err)
	}

	l.Info("server stopped")
}
