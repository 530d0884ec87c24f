// Command smoothsync-relay forwards sync messages between WebSocket peers.
// Owners and receivers connect to ws://<addr>/sync; every frame one peer
// sends is delivered to all the others.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OCAP2/smoothsync/internal/config"
	"github.com/OCAP2/smoothsync/internal/logging"
	"github.com/OCAP2/smoothsync/internal/transport"
)

const BinaryName = "smoothsync-relay"

var (
	SessionStartTime = time.Now()

	SlogManager *logging.SlogManager
	Logger      *slog.Logger
)

func main() {
	addr := flag.String("addr", ":8765", "listen address")
	configDir := flag.String("config", ".", "directory containing "+config.FileName)
	flag.Parse()

	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(logging.Options{Level: "info"})
	Logger = SlogManager.Logger()

	if err := config.Load(*configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	}

	logCfg := config.GetLoggingConfig()
	opts := logging.Options{Level: logCfg.Level}
	if logCfg.GraylogEnabled {
		w, err := logging.DialGraylog(logCfg.GraylogAddress, BinaryName)
		if err != nil {
			Logger.Warn("Failed to connect to Graylog", "error", err, "address", logCfg.GraylogAddress)
		} else {
			defer w.Close()
			opts.Graylog = w
		}
	}
	SlogManager.Setup(opts)
	Logger = SlogManager.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, *addr); err != nil {
		Logger.Error("Relay failed", "error", err)
		os.Exit(1)
	}
}

func newMux(hub *transport.Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/sync", hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "ok %d\n", hub.Peers())
	})
	return mux
}

func serve(ctx context.Context, addr string) error {
	hub := transport.NewHub(Logger)
	srv := &http.Server{
		Addr:              addr,
		Handler:           newMux(hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		Logger.Info("Relay listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	Logger.Info("Shutting down relay", "peers", hub.Peers())
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
