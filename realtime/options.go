package realtime

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Version is reported in the default user agent.
const Version = "0.3.0"

const (
	DefaultHeartbeatTimeout = 15 * time.Second
	DefaultMaxRetries       = 10
	DefaultEncoding         = "msgpack"
)

// HeartbeatDisabled and NoRetries switch off heartbeats and reconnection.
// The zero values of those fields select the defaults instead.
const (
	HeartbeatDisabled time.Duration = -1
	NoRetries                       = -1
)

// DefaultUserAgent is sent as the user-agent connection parameter.
var DefaultUserAgent = "realtime-go/" + Version

// Options configures a Client and its Transport.
type Options struct {
	URL      string
	ClientID string
	// Encoding is one of msgpack, json or cbor.
	Encoding string
	// HeartbeatTimeout is the idle period after which a heartbeat is sent.
	// Zero means DefaultHeartbeatTimeout, a negative value disables heartbeats.
	HeartbeatTimeout time.Duration
	// DisableAutoconnect keeps the transport idle until Connect is called.
	DisableAutoconnect bool
	// MaxRetries bounds consecutive reconnection attempts before the
	// transport fails. Zero means DefaultMaxRetries, a negative value fails on
	// the first unexpected close.
	MaxRetries        int
	UserAgent         string
	ReconnectStrategy ReconnectDelayStrategy
	Dialer            Dialer
	Logger            *zerolog.Logger
	Metrics           *Metrics

	clock clock
}

// DefaultOptions returns the options used when a field is not configured.
// NewTransport applies the same values to zero fields.
func DefaultOptions() Options {
	return Options{
		Encoding:          DefaultEncoding,
		HeartbeatTimeout:  DefaultHeartbeatTimeout,
		MaxRetries:        DefaultMaxRetries,
		UserAgent:         DefaultUserAgent,
		ReconnectStrategy: DefaultReconnectStrategy(),
	}
}

type fileOptions struct {
	URL                string `toml:"url" yaml:"url"`
	ClientID           string `toml:"client_id" yaml:"client_id"`
	Encoding           string `toml:"encoding" yaml:"encoding"`
	HeartbeatTimeout   string `toml:"heartbeat_timeout" yaml:"heartbeat_timeout"`
	HeartbeatTimeoutMS int64  `toml:"heartbeat_timeout_ms" yaml:"heartbeat_timeout_ms"`
	Autoconnect        bool   `toml:"autoconnect" yaml:"autoconnect"`
	MaxRetries         int    `toml:"max_retries" yaml:"max_retries"`
	UserAgent          string `toml:"user_agent" yaml:"user_agent"`
}

// LoadOptions reads options from a TOML file, or a YAML file when the
// extension is .yaml or .yml. Keys absent from the file keep their
// DefaultOptions value.
func LoadOptions(path string) (Options, error) {
	var (
		raw     fileOptions
		defined func(key string) bool
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		defined, err = decodeYAMLOptions(path, &raw)
	default:
		defined, err = decodeTOMLOptions(path, &raw)
	}
	if err != nil {
		return Options{}, err
	}
	return applyFileOptions(DefaultOptions(), raw, defined)
}

func decodeTOMLOptions(path string, raw *fileOptions) (func(string) bool, error) {
	meta, err := toml.DecodeFile(path, raw)
	if err != nil {
		return nil, fmt.Errorf("load options: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("load options: unknown key %q", undecoded[0].String())
	}
	return func(key string) bool { return meta.IsDefined(key) }, nil
}

func decodeYAMLOptions(path string, raw *fileOptions) (func(string) bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load options: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	var document yaml.Node
	if err := decoder.Decode(&document); err != nil {
		if errors.Is(err, io.EOF) {
			return func(string) bool { return false }, nil
		}
		return nil, fmt.Errorf("load options: %w", err)
	}
	keys := make(map[string]bool)
	if len(document.Content) > 0 {
		root := document.Content[0]
		if root.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("load options: expected a mapping at the document root")
		}
		for index := 0; index+1 < len(root.Content); index += 2 {
			keys[root.Content[index].Value] = true
		}
	}

	strict := yaml.NewDecoder(bytes.NewReader(data))
	strict.KnownFields(true)
	if err := strict.Decode(raw); err != nil {
		return nil, fmt.Errorf("load options: %w", err)
	}
	return func(key string) bool { return keys[key] }, nil
}

func applyFileOptions(options Options, raw fileOptions, defined func(string) bool) (Options, error) {
	if defined("url") {
		options.URL = strings.TrimSpace(raw.URL)
	}
	if defined("client_id") {
		options.ClientID = strings.TrimSpace(raw.ClientID)
	}
	if defined("encoding") {
		options.Encoding = strings.TrimSpace(raw.Encoding)
	}
	if defined("heartbeat_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.HeartbeatTimeout))
		if err != nil {
			return Options{}, fmt.Errorf("parse heartbeat_timeout: %w", err)
		}
		options.HeartbeatTimeout = d
	}
	if defined("heartbeat_timeout_ms") {
		options.HeartbeatTimeout = time.Duration(raw.HeartbeatTimeoutMS) * time.Millisecond
	}
	if options.HeartbeatTimeout <= 0 {
		options.HeartbeatTimeout = HeartbeatDisabled
	}
	if defined("autoconnect") {
		options.DisableAutoconnect = !raw.Autoconnect
	}
	if defined("max_retries") {
		if raw.MaxRetries < 0 {
			return Options{}, fmt.Errorf("parse max_retries: must not be negative, got %d", raw.MaxRetries)
		}
		options.MaxRetries = raw.MaxRetries
		if options.MaxRetries == 0 {
			options.MaxRetries = NoRetries
		}
	}
	if defined("user_agent") {
		options.UserAgent = strings.TrimSpace(raw.UserAgent)
	}
	return options, nil
}
