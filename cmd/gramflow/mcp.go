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

	"github.com/sweetpotato0/gramflow/mcp"
)

func newMCPCmd() *cobra.Command {
	var (
		configPath   string
		serverURL    string
		storeBackend string
		httpAddr     string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the toolkit as MCP tools",
		Long: `MCP exposes grammar validation, debugging, partial checks, AST parsing
and full comparisons as Model Context Protocol tools, so agent hosts
can call the grammar server through this process. It speaks stdio by
default; --http serves the streamable HTTP transport instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(cmd, configPath, serverURL, storeBackend, httpAddr)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&serverURL, "server", "", "grammar server base URL")
	cmd.Flags().StringVar(&storeBackend, "store", "", "record store backend (memory, redis, mongo, postgres)")
	cmd.Flags().StringVar(&httpAddr, "http", "", "serve MCP over HTTP on this address instead of stdio")

	return cmd
}

func runMCP(cmd *cobra.Command, configPath, serverURL, storeBackend, httpAddr string) error {
	cfg, err := loadConfig(configPath, serverURL, storeBackend)
	if err != nil {
		return err
	}

	lib, err := openLibrary(cfg)
	if err != nil {
		return err
	}

	opts := []mcp.ServerOption{
		mcp.WithServerInfo("gramflow", "Grammar-constrained generation tools", Version),
		mcp.WithLibrary(lib),
	}
	st, err := openStore(cfg, false)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close(context.Background())
		opts = append(opts, mcp.WithStore(st))
	}

	server := mcp.NewServer(mcp.NewClientService(newClient(cfg)), opts...)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if httpAddr == "" {
		return mcp.Serve(ctx, server)
	}

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           mcp.HTTPHandler(server, "/mcp"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "mcp listening on %s/mcp (grammar server %s)\n", httpAddr, cfg.Server.BaseURL)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("mcp shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
