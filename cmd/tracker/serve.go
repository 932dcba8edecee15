package main

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/prodline/tracker/internal/api"
	"github.com/prodline/tracker/internal/storage"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the tracker backend server",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)

			store, err := storage.NewDuckStore(cfg.Storage.DataDirectory)
			if err != nil {
				return err
			}
			defer store.Close()

			e := echo.New()
			e.HideBanner = true
			e.HidePort = true

			e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
				Skipper: func(c echo.Context) bool {
					path := c.Request().URL.Path
					return path == "/health" ||
						path == "/api/health" ||
						strings.HasPrefix(path, "/api/timer") ||
						strings.HasPrefix(path, "/api/ws/")
				},
			}))

			e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
				Skipper: func(c echo.Context) bool {
					path := c.Request().URL.Path
					return strings.HasPrefix(path, "/api/timer") ||
						strings.HasPrefix(path, "/api/ws/") ||
						c.Request().Header.Get("Accept") == "text/event-stream"
				},
			}))

			e.Use(middleware.BodyLimit("1M"))

			api.SetupMiddleware(e)
			handlers := api.NewHandlers(&api.Dependencies{
				Store:        store,
				LockTTL:      cfg.LockTTL(),
				FeedInterval: cfg.FeedInterval(),
				Version:      Version,
				Logger:       logger,
			})
			api.RegisterRoutes(e, handlers)

			s := &http.Server{
				Addr:         cfg.GetServerAddr(),
				ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
				WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
				IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
			}

			logger.Info().
				Str("version", Version).
				Str("buildTime", BuildTime).
				Str("addr", cfg.GetServerAddr()).
				Str("dataDir", cfg.Storage.DataDirectory).
				Dur("lockTtl", cfg.LockTTL()).
				Dur("feedInterval", cfg.FeedInterval()).
				Msg("tracker server starting")

			return e.StartServer(s)
		},
	}
}
