package realtime

import "sync"

// Channel is a handle for one named channel. It holds no state of its own;
// every call is forwarded to the transport.
type Channel struct {
	name      string
	transport *Transport
}

// Name returns the channel name.
func (channel *Channel) Name() string {
	return channel.name
}

// Attach attaches the channel without subscribing to any message name.
func (channel *Channel) Attach() error {
	return channel.transport.Attach(channel.name)
}

// Detach detaches the channel and drops its subscriptions.
func (channel *Channel) Detach() error {
	return channel.transport.Detach(channel.name)
}

// Subscribe attaches the channel, registers listener for messages called
// name and subscribes to name. An empty name receives every message.
func (channel *Channel) Subscribe(name string, listener MessageListener) (ListenerToken, error) {
	if listener == nil {
		return 0, ErrNilListener
	}
	if err := channel.transport.Attach(channel.name); err != nil {
		return 0, err
	}
	token, err := channel.transport.Listen(channel.name, name, listener)
	if err != nil {
		return 0, err
	}
	if err := channel.transport.Subscribe(channel.name, name); err != nil {
		return 0, err
	}
	return token, nil
}

// Unsubscribe removes the listener registered under token.
func (channel *Channel) Unsubscribe(token ListenerToken) error {
	return channel.transport.Unlisten(channel.name, token)
}

// UnsubscribeAll removes every listener for name. The channel stays
// attached.
func (channel *Channel) UnsubscribeAll(name string) error {
	return channel.transport.UnlistenAll(channel.name, name)
}

// Publish sends data as a message called name.
func (channel *Channel) Publish(name string, data any) error {
	return channel.transport.Publish(channel.name, name, data)
}

// ChannelManager hands out Channel handles.
type ChannelManager struct {
	transport *Transport

	lock     sync.Mutex
	channels map[string]*Channel
}

func newChannelManager(transport *Transport) *ChannelManager {
	return &ChannelManager{transport: transport, channels: make(map[string]*Channel)}
}

// Get returns the handle for name, creating it on first use.
func (manager *ChannelManager) Get(name string) (*Channel, error) {
	if name == "" {
		return nil, ErrInvalidChannel
	}
	manager.lock.Lock()
	defer manager.lock.Unlock()
	if channel, ok := manager.channels[name]; ok {
		return channel, nil
	}
	channel := &Channel{name: name, transport: manager.transport}
	manager.channels[name] = channel
	return channel, nil
}
