package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"recscribe/internal/api"
	"recscribe/internal/auth"
	"recscribe/internal/events"
	"recscribe/internal/worker"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and the transcription workers",
		Example: `  # Start with config.json in the working directory
  recscribe serve

  # YAML config, custom address
  recscribe serve --config recscribe.yaml --addr :9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			db, err := openDatabase(opts, cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			cache, err := openCache(cfg)
			if err != nil {
				return err
			}
			defer cache.Close()

			ttl := time.Duration(cfg.Auth.TokenTTLHours) * time.Hour
			authService := auth.NewService(db, cache, ttl)
			if cfg.Auth.AdminUsername != "" && cfg.Auth.AdminPassword != "" {
				if _, err := authService.EnsureUser(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
					return err
				}
				logrus.WithField("username", cfg.Auth.AdminUsername).Info("admin user ready")
			}

			be, err := newBackend(ctx, cfg, cache)
			if err != nil {
				return err
			}
			manager := worker.NewManager(be.pipeline, cache, worker.DispatcherConfig{
				MinWorkers:  cfg.BasicConfig.MinWorkers,
				MaxWorkers:  cfg.BasicConfig.MaxWorkers,
				QueueSize:   cfg.BasicConfig.QueueSize,
				IdleTimeout: cfg.BasicConfig.IdleTimeout(),
				JobTimeout:  10 * time.Minute,
			})
			defer manager.Stop()

			handler := api.NewHandler(authService, be.library, be.store, manager, db, api.Options{
				PresignTTL:    cfg.Storage.PresignTTL(),
				WebhookSecret: cfg.Events.WebhookSecret,
			})
			if cfg.BasicConfig.LogLevel != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}
			router := api.NewRouter(handler)

			pollCtx, stopPolling := context.WithCancel(ctx)
			defer stopPolling()
			if cfg.Events.SQSQueueURL != "" {
				poller, err := events.NewSQSPoller(ctx, cfg.Storage, cfg.Events.SQSQueueURL, events.NewIntake(manager))
				if err != nil {
					return err
				}
				go func() {
					if err := poller.Run(pollCtx); err != nil && !errors.Is(err, context.Canceled) {
						logrus.WithError(err).Error("sqs poller stopped")
					}
				}()
			}

			if addr == "" {
				addr = cfg.BasicConfig.ServerAddress
			}
			if addr == "" {
				addr = ":8090"
			}
			server := &http.Server{Addr: addr, Handler: router}

			serverErr := make(chan error, 1)
			go func() {
				logrus.WithField("addr", addr).Info("recscribe listening")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case <-ctx.Done():
				logrus.Info("shutting down server")
				stopPolling()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					logrus.WithError(err).Error("server shutdown failed")
					return err
				}
				logrus.Info("server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (overrides basic_config.server_address)")

	return cmd
}
