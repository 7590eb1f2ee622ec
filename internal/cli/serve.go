// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// serve.go - The "fimum serve" command.
//
// Examples:
//   fimum serve                      Listen on the configured address
//   fimum serve --addr :8080         Override the listen address

package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/fimum/internal/cloud"
	"github.com/jeranaias/fimum/internal/config"
	"github.com/jeranaias/fimum/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			srv := buildServer(a.cfg, addr)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errc := make(chan error, 1)
			go func() { errc <- srv.Start() }()

			select {
			case err := <-errc:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

// buildServer wires the upstream client and middleware from cfg.
func buildServer(cfg *config.Config, addr string) *server.Server {
	client := cloud.NewOpenRouterClient(cfg.APIKey).
		WithBaseURL(cfg.Upstream.BaseURL).
		WithTimeout(cfg.Upstream.Timeout.Duration).
		WithSiteURL(cfg.Upstream.SiteURL).
		WithSiteName(cfg.Upstream.SiteName)

	if client.IsConfigured() {
		log.Printf("UPSTREAM_CONFIGURED | base=%s key=%s", client.BaseURL(), client.KeyFingerprint())
	} else {
		log.Printf("UPSTREAM_UNCONFIGURED | set FIMUM_OPENROUTER_KEY or OPENROUTER_API_KEY")
	}

	srv := server.NewServer(addr, client).
		WithMaxBodyBytes(cfg.Server.MaxBodyBytes)

	if cfg.Server.RateLimit > 0 {
		srv.WithRateLimiter(server.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst))
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		cors := server.DefaultCORSConfig()
		cors.AllowedOrigins = cfg.Server.CORSOrigins
		srv.WithCORS(cors)
	}
	return srv
}
