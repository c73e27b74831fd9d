// Package realtime is a client for a channel-based publish/subscribe
// backend reached over a websocket.
//
// A Client owns one Transport. The transport connects, keeps the link alive
// with heartbeats, reconnects with backoff after unexpected closes and
// replays channel attachments and subscriptions once the backend confirms
// the new session. Messages published while disconnected are queued and
// flushed in order after reconnection.
//
//	client, err := realtime.NewClient(options)
//	channel, err := client.Channel("orders")
//	token, err := channel.Subscribe("created", func(message *realtime.Message) { ... })
//	err = channel.Publish("created", payload)
package realtime
