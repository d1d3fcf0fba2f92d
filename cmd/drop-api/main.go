package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gratitudedrop/backend/internal/config"
	"github.com/gratitudedrop/backend/internal/database"
	"github.com/gratitudedrop/backend/internal/dropcache"
	"github.com/gratitudedrop/backend/internal/dropwindow"
	"github.com/gratitudedrop/backend/internal/drops"
	"github.com/gratitudedrop/backend/internal/logging"
	"github.com/gratitudedrop/backend/internal/notify"
	"github.com/gratitudedrop/backend/internal/ratelimit"
	"github.com/gratitudedrop/backend/internal/server"
	"github.com/gratitudedrop/backend/internal/submissions"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "drop-api",
		Short: "Gratitude Drop backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("admin-secret", "", "Operator key for the admin surface (overrides env)")
	cmd.PersistentFlags().StringSlice("cors-origin", defaults.GetStringSlice("cors.origins"), "Allowed CORS origin (repeatable)")
	cmd.PersistentFlags().String("timezone", defaults.GetString("drop.timezone"), "Reference timezone for drop rollover")
	cmd.PersistentFlags().Int("drop-size", defaults.GetInt("drop.size"), "Target note count per drop")
	cmd.PersistentFlags().Int("cache-ttl-seconds", defaults.GetInt("drop.cache_ttl_seconds"), "Drop payload cache TTL in seconds")
	cmd.PersistentFlags().String("notify-url", defaults.GetString("notify.url"), "shoutrrr URL for submission notifications")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "admin.secret", "admin-secret")
	bindFlag(cmd, "cors.origins", "cors-origin")
	bindFlag(cmd, "drop.timezone", "timezone")
	bindFlag(cmd, "drop.size", "drop-size")
	bindFlag(cmd, "drop.cache_ttl_seconds", "cache-ttl-seconds")
	bindFlag(cmd, "notify.url", "notify-url")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	resolver, err := dropwindow.NewResolver(appConfig.Timezone)
	if err != nil {
		return err
	}

	submissionsService, err := submissions.NewService(submissions.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	dropsService, err := drops.NewService(drops.ServiceConfig{
		Database: db,
		Resolver: resolver,
		Cache:    dropcache.New(appConfig.DropCacheTTL),
		DropSize: appConfig.DropSize,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	notifier, err := notify.New(appConfig.NotifyURL, logger)
	if err != nil {
		return err
	}
	if notifier.Enabled() {
		logger.Info("submission notifications enabled")
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		DropsService:       dropsService,
		SubmissionsService: submissionsService,
		Limiter:            ratelimit.New(ratelimit.DefaultLimit, ratelimit.DefaultWindow),
		Notifier:           notifier,
		Clock:              time.Now,
		AdminSecret:        appConfig.AdminSecret,
		CORSOrigins:        appConfig.CORSOrigins,
		PendingPageSize:    appConfig.PendingPageSize,
		ApprovedPreview:    appConfig.ApprovedPreview,
		Logger:             logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
