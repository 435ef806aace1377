// Command stubapi runs the local MedBuddy backend stub so the admin
// client can be exercised without the production API.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medadmin/config"
	"medadmin/stubapi"
)

func main() {
	configPath := flag.String("config", os.Getenv("MEDADMIN_CONFIG"), "Path to YAML config")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	srv, err := stubapi.New(cfg.Stub, logger)
	if err != nil {
		log.Fatalf("build stub server: %v", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Stub.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("stub backend listening",
			"addr", cfg.Stub.ListenAddr,
			"admin_email", cfg.Stub.AdminEmail,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("stub server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("stub backend stopped")
}
