package main

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/relaykit/chatrelay/internal/logging"
	"github.com/relaykit/chatrelay/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log := logging.New(zapcore.InfoLevel)
	defer func() { _ = log.Sync() }()

	cfg := server.NewConfigFromEnv()

	hub := server.NewHub(*cfg, log)
	go hub.Run()

	mux := server.SetupRoutes(hub)
	httpServer := server.CreateServer(cfg.Port, mux)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer, log)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", zap.Error(err))
		}
	}

	if err := server.ShutdownServer(httpServer, shutdownTimeout, log); err != nil {
		log.Warn("HTTP shutdown did not complete cleanly", zap.Error(err))
	}
	if err := hub.Shutdown(shutdownTimeout); err != nil {
		log.Warn("Hub shutdown did not complete cleanly", zap.Error(err))
	}
}
