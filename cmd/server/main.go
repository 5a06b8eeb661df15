package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"quickloginas-mcp-server/internal/browser"
	"quickloginas-mcp-server/internal/config"
	"quickloginas-mcp-server/internal/httpapi"
	"quickloginas-mcp-server/internal/inspector"
	"quickloginas-mcp-server/internal/mangle"
	mcpserver "quickloginas-mcp-server/internal/mcp"
	"quickloginas-mcp-server/internal/messaging"
	"quickloginas-mcp-server/internal/recorder"
	"quickloginas-mcp-server/internal/salesforce"
	"quickloginas-mcp-server/internal/sfapi"
	"quickloginas-mcp-server/internal/userlist"

	"github.com/go-chi/chi/v5"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the Quick Login As MCP config file")
	ssePort := flag.Int("sse-port", 0, "Optional SSE port override (falls back to config)")
	httpPort := flag.Int("http-port", 0, "Optional HTTP API port override (falls back to config)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *ssePort != 0 {
		cfg.MCP.SSEPort = *ssePort
	}
	if *httpPort != 0 {
		cfg.HTTP.Port = *httpPort
	}

	// stdout carries the MCP protocol in stdio mode; keep logs off it.
	if cfg.MCP.SSEPort == 0 && cfg.Server.LogFile != "" {
		logFile, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			log.SetOutput(logFile)
			defer logFile.Close()
		} else {
			log.SetOutput(io.Discard)
		}
	}

	a, err := newApp(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer a.close()

	if cfg.Browser.AutoStart {
		if err := a.sessions.Start(ctx); err != nil {
			log.Fatalf("failed to initialize Rod session manager: %v", err)
		}
	} else {
		log.Printf("browser auto-start disabled; use launch-browser to attach later")
	}

	// One port may serve both the HTTP API and the MCP SSE endpoints.
	if cfg.HTTP.Port > 0 && cfg.HTTP.Port == cfg.MCP.SSEPort {
		base := "http://localhost:" + strconv.Itoa(cfg.HTTP.Port)
		handler := a.httpHandler(func(r chi.Router) { a.server.MountSSE(r, base) })
		log.Printf("starting Quick Login As HTTP API and MCP SSE server on port %d", cfg.HTTP.Port)
		exit(httpapi.ListenAndServe(ctx, cfg.HTTP.Port, handler))
		return
	}

	if cfg.HTTP.Port > 0 {
		handler := a.httpHandler()
		go func() {
			if err := httpapi.ListenAndServe(ctx, cfg.HTTP.Port, handler); err != nil {
				log.Printf("http api stopped: %v", err)
			}
		}()
	}

	if cfg.MCP.SSEPort > 0 {
		log.Printf("starting Quick Login As MCP SSE server on port %d", cfg.MCP.SSEPort)
		exit(a.server.StartSSE(ctx, cfg.MCP.SSEPort))
		return
	}
	log.Printf("starting Quick Login As MCP stdio server")
	exit(a.server.Start(ctx))
}

// app holds the wired services.
type app struct {
	engine   *mangle.Engine
	traces   *recorder.Recorder
	sessions *browser.SessionManager
	router   *messaging.Router
	views    *inspector.Registry
	server   *mcpserver.Server
}

func newApp(cfg config.Config) (*app, error) {
	engine, err := mangle.NewEngine(cfg.Mangle)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mangle engine: %w", err)
	}

	traces, err := recorder.NewRecorder(cfg.Server.TraceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize trace recorder: %w", err)
	}
	if err := traces.Start("session"); err != nil {
		log.Printf("trace file unavailable, keeping traces in memory: %v", err)
	}

	sessions := browser.NewSessionManager(cfg.Browser, engine)
	var cookies salesforce.CookieStore = browser.NewCookieJar(sessions)
	if cfg.Salesforce.CookieFile != "" {
		store, err := salesforce.LoadCookieFile(cfg.Salesforce.CookieFile)
		if err != nil {
			_ = traces.Close()
			return nil, fmt.Errorf("failed to load cookie file: %w", err)
		}
		log.Printf("reading session cookies from %s", cfg.Salesforce.CookieFile)
		cookies = store
	}
	resolver := salesforce.NewResolver(cookies,
		salesforce.WithParallelSearch(cfg.Salesforce.IsParallelSearch()))
	router := messaging.NewRouter(resolver, sessions, engine, traces)

	apiOpts := sfapi.Options{
		APIVersion: cfg.Salesforce.GetAPIVersion(),
		Timeout:    cfg.Salesforce.GetRequestTimeout(),
	}
	views := inspector.NewRegistry(router, inspector.NewAPIFactory(apiOpts), engine, "")

	server, err := mcpserver.NewServer(cfg, mcpserver.Dependencies{
		Sessions:  sessions,
		Engine:    engine,
		Router:    router,
		Inspector: views,
		Pages: func(s *salesforce.Session) userlist.PageFetcher {
			return sfapi.NewClient(s.Origin(), s.Credential, apiOpts)
		},
		Traces: traces,
	})
	if err != nil {
		_ = traces.Close()
		return nil, fmt.Errorf("failed to initialize MCP server: %w", err)
	}

	return &app{engine: engine, traces: traces, sessions: sessions, router: router, views: views, server: server}, nil
}

func (a *app) httpHandler(mounts ...func(chi.Router)) http.Handler {
	return httpapi.NewRouter(a.router, a.views, mounts...)
}

func (a *app) close() {
	_ = a.sessions.Shutdown(context.Background())
	_ = a.traces.Close()
}

func exit(err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("server exited with error: %v", err)
	}
}
