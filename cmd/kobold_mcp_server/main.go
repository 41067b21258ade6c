package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/windlant/kobold-mcp-server/internal/config"
	"github.com/windlant/kobold-mcp-server/internal/dispatch"
	"github.com/windlant/kobold-mcp-server/internal/kobold"
	"github.com/windlant/kobold-mcp-server/internal/mcpserver"
	"github.com/windlant/kobold-mcp-server/internal/memory"
	"github.com/windlant/kobold-mcp-server/internal/tools/registry"
)

var version = "dev"

const shutdownTimeout = 10 * time.Second

// 启动 KoboldCpp MCP 服务器；stdout 只用于协议数据，日志全部写到 stderr
func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML config file")
	envPath := flag.String("env", ".env", "path to an optional .env file")
	flag.Parse()

	logger := log.New(os.Stderr, "kobold-mcp: ", log.LstdFlags)

	if err := config.LoadEnvFile(*envPath); err != nil {
		logger.Printf("warning: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	reg, err := registry.Default(cfg.Server.DisabledTools...)
	if err != nil {
		logger.Fatalf("failed to build tool registry: %v", err)
	}
	d := dispatch.New(reg, kobold.NewClient(cfg.Timeout()), memory.NewTranscript(), dispatch.Options{
		BaseURL: cfg.Kobold.APIURL,
		Logger:  logger,
		Verbose: cfg.Log.Verbose,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Printf("serving %d tools over %s, default KoboldCpp at %s", len(d.List()), cfg.Server.Transport, cfg.Kobold.APIURL)

	switch cfg.Server.Transport {
	case config.TransportNDJSON:
		err = serveLines(ctx, NewServer(d), os.Stdin, os.Stdout, logger)
	case config.TransportHTTP:
		err = serveHTTP(ctx, d, cfg.Server.HTTPAddr, logger)
	default:
		err = serveStdio(ctx, d)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("server stopped: %v", err)
	}
}

func serveStdio(ctx context.Context, d *dispatch.Dispatcher) error {
	server, err := mcpserver.New(d, version)
	if err != nil {
		return err
	}
	return server.Run(ctx, &mcp.StdioTransport{})
}

func serveHTTP(ctx context.Context, d *dispatch.Dispatcher, addr string, logger *log.Logger) error {
	server, err := mcpserver.New(d, version)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mcpserver.HTTPHandler(server),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	logger.Printf("listening on http://%s/mcp", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return <-errCh
}

// serveLines 从 r 逐行读取请求，处理后将响应写回 w（NDJSON，每条 JSON 单独一行）
func serveLines(ctx context.Context, srv *Server, r io.Reader, w io.Writer, logger *log.Logger) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		respBytes, err := srv.HandleRequest(ctx, line)
		if err != nil {
			logger.Printf("server error: %v", err)
			continue
		}

		if _, err := w.Write(append(respBytes, '\n')); err != nil {
			return fmt.Errorf("write error: %w", err)
		}
	}

	// 检查是否因非 EOF 原因导致读取失败
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read error: %w", err)
	}
	return nil
}
