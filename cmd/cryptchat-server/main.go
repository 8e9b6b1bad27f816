package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cryptchat/internal/config"
	"cryptchat/internal/relay"
	"cryptchat/internal/server"
)

func main() {
	root := &cobra.Command{
		Use:   "cryptchat-server",
		Short: "Relay server for end-to-end encrypted chat",
	}
	root.AddCommand(startCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// startCmd starts the relay server.
func startCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log, err := newLogger(cfg.Debug)
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			hub := relay.NewHub(relay.Options{
				MaxEncryptedLength: cfg.MaxEncryptedLength,
				MaxClients:         cfg.MaxClients,
				Logger:             log,
			})
			srv := server.New(cfg, hub, log)

			// Graceful shutdown on SIGINT/SIGTERM.
			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

			errChan := make(chan error, 1)
			go func() {
				errChan <- srv.Run()
			}()

			select {
			case sig := <-sigs:
				log.Info("shutting down", zap.String("signal", sig.String()))
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(ctx)
			case err := <-errChan:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			}
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the JSON config file")
	return cmd
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
