package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cbegin/samplerbox/internal/config"
	"github.com/cbegin/samplerbox/internal/presets"
)

func main() {
	cfg := config.Load()
	var (
		port = flag.Int("port", cfg.Port, "listen port")
		dir  = flag.String("presets", cfg.PresetsDir, "presets directory: one folder per category")
	)
	flag.Parse()

	if fi, err := os.Stat(*dir); err != nil || !fi.IsDir() {
		log.Fatalf("presets directory %q not found", *dir)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	addr := fmt.Sprintf(":%d", *port)
	server := &http.Server{Addr: addr, Handler: presets.NewHandler(presets.NewDir(*dir), logger)}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("Ready: http://localhost%s (presets from %s)", addr, *dir)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}
}
