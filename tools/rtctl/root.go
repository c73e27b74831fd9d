package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Thejuampi/realtime-client-go/internal/logging"
	"github.com/Thejuampi/realtime-client-go/realtime"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	url        string
	encoding   string
	clientID   string
	logLevel   string
	timeout    time.Duration
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "rtctl",
		Short: "Publish to and subscribe on realtime channels",
		Long: `rtctl talks to a realtime backend over a websocket.

Connection settings come from --config (TOML or YAML) and can be
overridden with --url, --encoding and --client-id.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	persistent := rootCmd.PersistentFlags()
	persistent.StringVarP(&flags.configPath, "config", "c", "", "options file (.toml, .yaml or .yml)")
	persistent.StringVar(&flags.url, "url", "", "backend websocket url")
	persistent.StringVar(&flags.encoding, "encoding", "", "wire encoding: msgpack, json or cbor")
	persistent.StringVar(&flags.clientID, "client-id", "", "client id reported in logs")
	persistent.StringVar(&flags.logLevel, "log-level", "", "log level (trace, debug, info, warn, error, off)")
	persistent.DurationVar(&flags.timeout, "timeout", 10*time.Second, "time to wait for the connection")

	rootCmd.AddCommand(
		publishCmd(flags),
		subscribeCmd(flags),
		versionCmd(),
	)
	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), realtime.DefaultUserAgent)
		},
	}
}

// buildOptions loads the options file, when given, and applies the flags
// that were set explicitly.
func buildOptions(cmd *cobra.Command, flags *globalFlags) (realtime.Options, error) {
	options := realtime.DefaultOptions()
	if flags.configPath != "" {
		loaded, err := realtime.LoadOptions(flags.configPath)
		if err != nil {
			return realtime.Options{}, err
		}
		options = loaded
	}

	changed := cmd.Flags().Changed
	if changed("url") {
		options.URL = flags.url
	}
	if changed("encoding") {
		options.Encoding = flags.encoding
	}
	if changed("client-id") {
		options.ClientID = flags.clientID
	}
	if options.URL == "" {
		return realtime.Options{}, errors.New("no backend url: set --url or url in the options file")
	}

	logging.ConfigureRuntime()
	logger := logging.New("rtctl")
	if changed("log-level") {
		level, ok := logging.ParseLevel(flags.logLevel)
		if !ok {
			return realtime.Options{}, fmt.Errorf("unknown log level %q", flags.logLevel)
		}
		logger = logger.Level(level)
	}
	options.Logger = &logger
	options.DisableAutoconnect = true
	options.UserAgent = "rtctl/" + realtime.Version
	return options, nil
}

// connect creates a client and waits until it is connected.
func connect(options realtime.Options, timeout time.Duration) (*realtime.Client, error) {
	client, err := realtime.NewClient(options)
	if err != nil {
		return nil, err
	}

	outcome := make(chan error, 1)
	report := func(err error) {
		select {
		case outcome <- err:
		default:
		}
	}
	connectedToken := client.On(realtime.EventConnected, func(realtime.ConnectionEvent) { report(nil) })
	failedToken := client.On(realtime.EventFailed, func(event realtime.ConnectionEvent) { report(event.Err) })
	defer client.Off(realtime.EventConnected, connectedToken)
	defer client.Off(realtime.EventFailed, failedToken)

	if err := client.Connect(); err != nil {
		return nil, err
	}
	select {
	case err := <-outcome:
		if err != nil {
			closeClient(client)
			return nil, err
		}
		return client, nil
	case <-time.After(timeout):
		closeClient(client)
		return nil, fmt.Errorf("not connected after %s", timeout)
	}
}

func closeClient(client *realtime.Client) {
	client.Close()
	select {
	case <-client.Done():
	case <-time.After(5 * time.Second):
	}
}

// parseData decodes raw as JSON when asked to, and otherwise sends it as a
// string.
func parseData(raw string, asJSON bool) (any, error) {
	if !asJSON {
		return raw, nil
	}
	var data any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("parse --json data: %w", err)
	}
	return data, nil
}

func logEvent(logger zerolog.Logger, event realtime.ConnectionEvent) {
	entry := logger.Info().Str("state", event.State.String())
	if event.Err != nil {
		entry = logger.Warn().Str("state", event.State.String()).Int("code", event.Err.Code).Str("reason", event.Err.Message)
	}
	entry.Msg(string(event.Name))
}
