/**
 * @description
 * entitlementctl is the operator CLI for the entitlement service. It talks to
 * the entitlement store directly, using the same environment configuration as
 * the server.
 */
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/StephenStolk/nutriapp-sub001/internal/app"
	"github.com/StephenStolk/nutriapp-sub001/internal/config"
	"github.com/StephenStolk/nutriapp-sub001/internal/domain"
	"github.com/StephenStolk/nutriapp-sub001/internal/logging"
	"github.com/StephenStolk/nutriapp-sub001/internal/store"
	"github.com/StephenStolk/nutriapp-sub001/pkg/rabbitmq"
)

// Version is set at build time with -ldflags.
var Version = "dev"

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "entitlementctl",
		Short:         "Operate the subscription entitlement store",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSweepCmd(), newInspectCmd(), newSignCallbackCmd())
	return root
}

func newSweepCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Deactivate Pro subscriptions whose paid period has ended",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadStoreConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			repo, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer repo.Close()

			var publisher app.EventPublisher
			if strings.TrimSpace(cfg.RabbitMQURL) != "" {
				producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, logger)
				if err != nil {
					logger.Warn().Err(err).Msg("rabbitmq unavailable; expiry events will not be published")
				} else {
					defer producer.Close()
					publisher = producer
				}
			}

			deactivated, err := app.NewSweeper(repo, publisher, cfg.EntitlementEventsExchange, logger).Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deactivated %d subscription(s)\n", deactivated)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "maximum time the sweep may run")
	return cmd
}

type inspection struct {
	UserID       string                  `json:"user_id"`
	State        domain.EntitlementState `json:"state"`
	Subscription *domain.Subscription    `json:"subscription"`
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <user-id>",
		Short: "Show a user's stored subscription row and derived state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadStoreConfig()
			if err != nil {
				return err
			}

			repo, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer repo.Close()

			sub, err := app.NewViewService(repo).Inspect(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(inspection{
				UserID:       args[0],
				State:        domain.DeriveState(sub, time.Now()),
				Subscription: sub,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newSignCallbackCmd() *cobra.Command {
	var orderID, paymentID, secret string
	cmd := &cobra.Command{
		Use:   "sign-callback",
		Short: "Compute the gateway signature for a checkout callback",
		Example: `  # Sign a sandbox callback with GATEWAY_KEY_SECRET from the environment
  entitlementctl sign-callback --order-id order_123 --payment-id pay_456`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("GATEWAY_KEY_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("gateway secret required: pass --secret or set GATEWAY_KEY_SECRET")
			}
			fmt.Fprintln(cmd.OutOrStdout(), app.SignCallback(secret, orderID, paymentID))
			return nil
		},
	}
	cmd.Flags().StringVar(&orderID, "order-id", "", "gateway order id")
	cmd.Flags().StringVar(&paymentID, "payment-id", "", "gateway payment id")
	cmd.Flags().StringVar(&secret, "secret", "", "gateway key secret (defaults to GATEWAY_KEY_SECRET)")
	_ = cmd.MarkFlagRequired("order-id")
	_ = cmd.MarkFlagRequired("payment-id")
	return cmd
}

func loadStoreConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if err := cfg.ValidateStore(); err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := logging.Init(logging.Config{
		Format:    "console",
		Level:     cfg.LogLevel,
		Component: "entitlementctl",
		Output:    os.Stderr,
	})
	return cfg, logger, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Repository, error) {
	return store.Open(ctx, store.Options{
		Driver:      cfg.DatabaseDriver,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
	})
}
