// Command fakerealtime runs the in-process realtime backend as a standalone
// websocket server for manual testing.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thejuampi/realtime-client-go/internal/fakeserver"
	"github.com/Thejuampi/realtime-client-go/internal/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	flagAddr       = flag.String("addr", "127.0.0.1:19100", "listen address")
	flagPath       = flag.String("path", "/realtime", "websocket endpoint path")
	flagJournalMax = flag.Int("journal-max", 100_000, "maximum journal entries per channel")
	flagEcho       = flag.Bool("echo", true, "deliver publishes back to a subscribed publisher")
	flagMetrics    = flag.Bool("metrics", false, "serve the default prometheus registry on /metrics")
	flagLogLevel   = flag.String("log-level", "", "log level (trace, debug, info, warn, error, off)")
)

func main() {
	flag.Parse()

	logging.ConfigureRuntime()
	logger := logging.New("fakerealtime")
	if level, ok := logging.ParseLevel(*flagLogLevel); ok {
		logger = logger.Level(level)
	}

	cfg := fakeserver.DefaultConfig()
	cfg.JournalMax = *flagJournalMax
	cfg.Echo = *flagEcho
	cfg.Logger = logger
	backend := fakeserver.New(cfg)

	mux := http.NewServeMux()
	mux.Handle(*flagPath, backend)
	if *flagMetrics {
		mux.Handle("/metrics", promhttp.Handler())
	}
	server := &http.Server{Addr: *flagAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		backend.Close()
	}()

	logger.Info().Str("addr", *flagAddr).Str("path", *flagPath).Bool("echo", *flagEcho).Msg("listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("listen failed")
	}
	<-closed
}
