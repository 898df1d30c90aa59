package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brunobiangulo/deckport"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML or JSON)")
	addr := flag.String("addr", "", "Listen address (overrides server.addr)")
	flag.Parse()

	cfg, err := deckport.LoadConfig(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	// Structured JSON logging.
	level, _ := cfg.LogLevel()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))

	engine, err := deckport.New(cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      newServer(engine, cfg.Server),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 0, // deck uploads extract and upload inline
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}

// newServer builds the routed handler wrapped in the middleware chain.
func newServer(e deckport.Engine, sc deckport.ServerConfig) http.Handler {
	h := newHandler(e)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /lessons", h.handleListLessons)
	mux.HandleFunc("POST /lessons", h.handleCreateLesson)
	mux.HandleFunc("GET /lessons/{id}", h.handleGetLesson)
	mux.HandleFunc("DELETE /lessons/{id}", h.handleDeleteLesson)
	mux.HandleFunc("GET /lessons/{id}/viewer", h.handleViewer)
	mux.HandleFunc("GET /catalog", h.handleCatalog)
	mux.HandleFunc("GET /blobs/{key...}", h.handleBlob)

	// Middleware chain: recovery -> cors -> auth -> logging -> mux
	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = authMiddleware(sc.APIKey, handler)
	handler = corsMiddleware(sc.CORSOrigins, handler)
	handler = recoveryMiddleware(handler)
	return handler
}
