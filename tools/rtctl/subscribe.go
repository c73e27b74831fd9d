package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thejuampi/realtime-client-go/realtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func subscribeCmd(flags *globalFlags) *cobra.Command {
	var (
		count       int
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "subscribe <channel> [name]",
		Short: "Print messages published on a channel",
		Long: `Subscribe to a channel and print one JSON line per message.

Without [name] every message of the channel is printed. The command
runs until interrupted or until --count messages were received.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			options, err := buildOptions(cmd, flags)
			if err != nil {
				return err
			}

			if metricsAddr != "" {
				registry := prometheus.NewRegistry()
				options.Metrics = realtime.NewMetrics(registry)
				stop := serveMetrics(metricsAddr, registry)
				defer stop()
			}

			client, err := connect(options, flags.timeout)
			if err != nil {
				return err
			}
			defer closeClient(client)
			client.On(realtime.EventConnecting, func(event realtime.ConnectionEvent) { logEvent(*options.Logger, event) })
			client.On(realtime.EventError, func(event realtime.ConnectionEvent) { logEvent(*options.Logger, event) })

			name := ""
			if len(args) == 2 {
				name = args[1]
			}
			channel, err := client.Channel(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			messages := make(chan *realtime.Message, 64)
			if _, err := channel.Subscribe(name, func(message *realtime.Message) {
				select {
				case messages <- message:
				default:
					options.Logger.Warn().Str("id", message.ID).Msg("output backlog full, dropping message")
				}
			}); err != nil {
				return err
			}

			return printMessages(ctx, cmd, messages, client.Done(), count)
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 0, "exit after this many messages (0 runs until interrupted)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	return cmd
}

func printMessages(ctx context.Context, cmd *cobra.Command, messages <-chan *realtime.Message, done <-chan struct{}, count int) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	received := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return errors.New("connection failed")
		case message := <-messages:
			if err := encoder.Encode(message); err != nil {
				return fmt.Errorf("write message: %w", err)
			}
			received++
			if count > 0 && received >= count {
				return nil
			}
		}
	}
}

func serveMetrics(addr string, registry *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "rtctl: metrics server: %v\n", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}
