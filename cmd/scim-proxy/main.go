// Command scim-proxy runs the SCIM reverse proxy: parses CLI flags, loads
// configuration, and serves HTTP until SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	scimproxy "github.com/coreward/scimproxy"
	"github.com/coreward/scimproxy/config"
	"github.com/coreward/scimproxy/internal/logging"
)

func main() {
	app := &cli.App{
		Name:  "scim-proxy",
		Usage: "SCIM 2.0 reverse proxy with client-side filtering and PATCH adaptation",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a YAML config file"},
			&cli.StringFlag{Name: "log-level", Usage: "overrides log_level from config"},
			&cli.StringFlag{Name: "log-format", Usage: "overrides log_format from config"},
			&cli.StringFlag{Name: "addr", Usage: "overrides proxy_host:proxy_port from config"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v := c.String("log-format"); v != "" {
		cfg.LogFormat = v
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	addr := fmt.Sprintf("%s:%d", cfg.ProxyHost, cfg.ProxyPort)
	if v := c.String("addr"); v != "" {
		addr = v
	}

	gw := scimproxy.New(cfg)
	gw.SetLogger(logger)
	if err := gw.Initialize(); err != nil {
		return fmt.Errorf("initializing gateway: %w", err)
	}

	handler, err := gw.Handler()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info().Str("addr", addr).Msg("starting SCIM proxy")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		logger.Info().Msg("shutting down SCIM proxy")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return gw.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
