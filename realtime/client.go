package realtime

import (
	"github.com/google/uuid"
)

// Client is the entry point of the library. It wires options into a
// Transport and exposes channels.
type Client struct {
	id        string
	transport *Transport
	channels  *ChannelManager
}

// NewClient builds a client from options. Unless options.DisableAutoconnect
// is set the client starts connecting right away.
func NewClient(options Options) (*Client, error) {
	id := uuid.NewString()
	if options.Logger != nil {
		logger := options.Logger.With().Str("instance", id).Logger()
		options.Logger = &logger
	}
	transport, err := NewTransport(options)
	if err != nil {
		return nil, err
	}
	return &Client{
		id:        id,
		transport: transport,
		channels:  newChannelManager(transport),
	}, nil
}

// ID returns the client's instance id.
func (client *Client) ID() string { return client.id }

// Connection returns the underlying transport.
func (client *Client) Connection() *Transport { return client.transport }

// Channels returns the channel manager.
func (client *Client) Channels() *ChannelManager { return client.channels }

// Channel is shorthand for Channels().Get(name).
func (client *Client) Channel(name string) (*Channel, error) {
	return client.channels.Get(name)
}

// Connect starts connecting when the client was created without
// autoconnect.
func (client *Client) Connect() error { return client.transport.Connect() }

// Close closes the connection. Done is closed once it completed.
func (client *Client) Close() { client.transport.Close() }

// Done is closed when the client reached closed or failed.
func (client *Client) Done() <-chan struct{} { return client.transport.Done() }

// State returns the connection state.
func (client *Client) State() ConnectionState { return client.transport.State() }

// SocketID returns the socket id of the current session.
func (client *Client) SocketID() (string, bool) { return client.transport.SocketID() }

// On registers a connection event listener.
func (client *Client) On(name EventName, listener func(ConnectionEvent)) ListenerToken {
	return client.transport.On(name, listener)
}

// Once registers a connection event listener for one occurrence.
func (client *Client) Once(name EventName, listener func(ConnectionEvent)) ListenerToken {
	return client.transport.Once(name, listener)
}

// Off removes a connection event listener.
func (client *Client) Off(name EventName, token ListenerToken) bool {
	return client.transport.Off(name, token)
}

// OffAll removes every listener of the named connection event.
func (client *Client) OffAll(name EventName) { client.transport.OffAll(name) }
