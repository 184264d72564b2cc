package main

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

	"github.com/urfave/cli/v3"

	"github.com/silvernonstop/auditapi/internal/app"
)

func main() {
	cmd := &cli.Command{
		Name:  "auditapi",
		Usage: "Audit-event logging and review backend for the SilverNonStop pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Value: ":8080",
				Usage: "HTTP listen address",
			},
			&cli.StringFlag{
				Name:  "db-path",
				Value: "./auditapi.sqlite",
				Usage: "SQLite file path",
			},
			&cli.StringFlag{
				Name:    "bootstrap-api-key",
				Sources: cli.EnvVars("SNS_AUDIT_BOOTSTRAP_API_KEY"),
				Usage:   "Optional API key to upsert at startup",
			},
			&cli.StringFlag{
				Name:    "bootstrap-key-name",
				Value:   "bootstrap",
				Sources: cli.EnvVars("SNS_AUDIT_BOOTSTRAP_KEY_NAME"),
				Usage:   "Name for bootstrap API key",
			},
			&cli.StringFlag{
				Name:    "alert-webhook-url",
				Sources: cli.EnvVars("SNS_AUDIT_ALERT_WEBHOOK_URL"),
				Usage:   "Webhook target for critical-event alerts (falls back to log delivery when empty)",
			},
			&cli.StringFlag{
				Name:    "alert-webhook-secret",
				Sources: cli.EnvVars("SNS_AUDIT_ALERT_WEBHOOK_SECRET"),
				Usage:   "HMAC-SHA256 signing secret for outbound alert webhooks",
			},
			&cli.DurationFlag{
				Name:    "alert-interval",
				Value:   2 * time.Second,
				Sources: cli.EnvVars("SNS_AUDIT_ALERT_INTERVAL"),
				Usage:   "Alert dispatcher poll interval",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := app.Config{
				Addr:               c.String("addr"),
				DBPath:             c.String("db-path"),
				BootstrapAPIKey:    c.String("bootstrap-api-key"),
				BootstrapKeyName:   c.String("bootstrap-key-name"),
				AlertWebhookURL:    c.String("alert-webhook-url"),
				AlertWebhookSecret: c.String("alert-webhook-secret"),
				AlertInterval:      c.Duration("alert-interval"),
			}

			server, closer, err := app.NewServer(ctx, cfg)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}
			defer func() {
				if closeErr := closer.Close(); closeErr != nil {
					log.Printf("close resources: %v", closeErr)
				}
			}()

			errCh := make(chan error, 1)
			go func() {
				log.Printf("listening on %s", cfg.Addr)
				errCh <- server.ListenAndServe()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case sig := <-sigCh:
				log.Printf("received signal %s", sig)
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
