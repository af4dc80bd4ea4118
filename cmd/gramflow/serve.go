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

	"github.com/spf13/cobra"

	"github.com/sweetpotato0/gramflow/compare"
	"github.com/sweetpotato0/gramflow/gateway"
	"github.com/sweetpotato0/gramflow/middleware"
	"github.com/sweetpotato0/gramflow/middleware/defaults"
	"github.com/sweetpotato0/gramflow/middleware/limiter"
	mwlogger "github.com/sweetpotato0/gramflow/middleware/logger"
	"github.com/sweetpotato0/gramflow/middleware/validator"
	"github.com/sweetpotato0/gramflow/pkg/logging"
	"github.com/sweetpotato0/gramflow/pkg/telemetry"
	"github.com/sweetpotato0/gramflow/store"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var (
		configPath    string
		serverURL     string
		storeBackend  string
		addr          string
		rateLimit     float64
		burst         int
		maxConcurrent int
		trace         bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the comparison gateway",
		Long: `Serve starts the HTTP gateway in front of the grammar server. It
exposes comparison sessions over server-sent events, the grammar
library, run history from the record store, and a health probe. The
gateway shuts down gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, serverURL, storeBackend, addr, rateLimit, burst, maxConcurrent, trace)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&serverURL, "server", "", "grammar server base URL")
	cmd.Flags().StringVar(&storeBackend, "store", "", "record store backend (memory, redis, mongo, postgres)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to gateway.addr)")
	cmd.Flags().Float64Var(&rateLimit, "rate-limit", 0, "session starts per second (0 disables rate limiting)")
	cmd.Flags().IntVar(&burst, "burst", 5, "rate limiter burst size")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "concurrent session cap (0 for unlimited)")
	cmd.Flags().BoolVar(&trace, "trace", false, "enable OpenTelemetry tracing")

	return cmd
}

func runServe(cmd *cobra.Command, configPath, serverURL, storeBackend, addr string, rateLimit float64, burst, maxConcurrent int, trace bool) error {
	cfg, err := loadConfig(configPath, serverURL, storeBackend)
	if err != nil {
		return err
	}
	if addr == "" {
		addr = cfg.Gateway.Addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "gramflow-gateway",
		ServiceVersion: Version,
		Disable:        !trace,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	st, err := openStore(cfg, false)
	if err != nil {
		return err
	}
	if st == nil {
		st = store.NewInMemory()
	}
	defer st.Close(context.Background())

	lib, err := openLibrary(cfg)
	if err != nil {
		return err
	}
	if cfg.GrammarDir != "" {
		if err := lib.Watch(ctx); err != nil {
			return err
		}
	}

	mws := []middleware.Middleware{
		mwlogger.NewRequestLogger(nil),
		defaults.New(cfg.Generation.Model, cfg.Generation.MaxTokens, cfg.Generation.GrammarTokens),
		validator.New(),
	}
	if rateLimit > 0 || maxConcurrent > 0 {
		perSecond := rateLimit
		if perSecond <= 0 {
			// Concurrency capped but rate uncapped; keep the token
			// bucket effectively open.
			perSecond = 1000
		}
		mws = append(mws, limiter.New(perSecond, burst, maxConcurrent))
	}

	upstream := newClient(cfg)
	manager := compare.NewManager(compare.NewServerBackend(upstream), st)
	srv := gateway.New(manager,
		gateway.WithLibrary(lib),
		gateway.WithUpstream(upstream),
		gateway.WithChain(middleware.NewChain(mws...)),
	)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger := logging.WithComponent("serve")
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "gateway listening on %s (grammar server %s, store %s)\n",
		addr, cfg.Server.BaseURL, cfg.Store.Backend)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
