package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec errors.
var (
	ErrUnknownEventType   = errors.New("protocol: unknown event type")
	ErrUnknownEncoding    = errors.New("protocol: unknown encoding")
	ErrEventTypeMismatch  = errors.New("protocol: event type mismatch")
	ErrMissingChannelName = errors.New("protocol: missing channel name")
)

// Encoding selects the wire representation of envelopes.
type Encoding uint8

const (
	// EncodingMsgpack encodes frames as MessagePack. It is the default.
	EncodingMsgpack Encoding = iota
	// EncodingJSON encodes frames as JSON text.
	EncodingJSON
	// EncodingCBOR encodes frames as CBOR.
	EncodingCBOR
)

// ParseEncoding maps the name used in options and connection URLs to an
// Encoding. The empty string selects the default.
func ParseEncoding(name string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "msgpack":
		return EncodingMsgpack, nil
	case "json":
		return EncodingJSON, nil
	case "cbor":
		return EncodingCBOR, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
}

func (encoding Encoding) String() string {
	switch encoding {
	case EncodingMsgpack:
		return "msgpack"
	case EncodingJSON:
		return "json"
	case EncodingCBOR:
		return "cbor"
	}
	return "unknown"
}

// Binary reports whether frames of this encoding travel as binary messages.
func (encoding Encoding) Binary() bool {
	return encoding != EncodingJSON
}

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix,
	}
	cborEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:      cbor.DupMapKeyQuiet,
		IndefLength:    cbor.IndefLengthAllowed,
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}
	cborDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

type jsonEnvelope struct {
	EventType string          `json:"event_type"`
	Event     json.RawMessage `json:"event,omitempty"`
}

type msgpackEnvelope struct {
	EventType string             `msgpack:"event_type"`
	Event     msgpack.RawMessage `msgpack:"event,omitempty"`
}

type cborEnvelope struct {
	EventType string          `cbor:"event_type"`
	Event     cbor.RawMessage `cbor:"event,omitempty"`
}

// Envelope is a decoded frame whose payload is still encoded.
type Envelope struct {
	EventType EventType
	event     []byte
	encoding  Encoding
}

// Decode unmarshals the envelope payload into target. An envelope without a
// payload leaves target untouched.
func (envelope *Envelope) Decode(target any) error {
	if envelope == nil || len(envelope.event) == 0 {
		return nil
	}
	var err error
	switch envelope.encoding {
	case EncodingJSON:
		err = json.Unmarshal(envelope.event, target)
	case EncodingMsgpack:
		err = msgpack.Unmarshal(envelope.event, target)
	case EncodingCBOR:
		err = cborDecMode.Unmarshal(envelope.event, target)
	default:
		return ErrUnknownEncoding
	}
	if err != nil {
		return fmt.Errorf("protocol: decode %s event: %w", envelope.EventType, err)
	}
	return nil
}

// Codec encodes and decodes envelopes for one encoding. It holds no mutable
// state and is safe for concurrent use.
type Codec struct {
	encoding Encoding
}

// NewCodec returns a codec for the given encoding.
func NewCodec(encoding Encoding) *Codec {
	return &Codec{encoding: encoding}
}

// Encoding returns the codec's encoding.
func (codec *Codec) Encoding() Encoding { return codec.encoding }

// Encode wraps event in an envelope of the given type.
func (codec *Codec) Encode(eventType EventType, event any) ([]byte, error) {
	if !eventType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, string(eventType))
	}
	if event == nil {
		event = empty{}
	}

	switch codec.encoding {
	case EncodingJSON:
		raw, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("protocol: encode %s event: %w", eventType, err)
		}
		return json.Marshal(jsonEnvelope{EventType: string(eventType), Event: raw})
	case EncodingMsgpack:
		raw, err := msgpack.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("protocol: encode %s event: %w", eventType, err)
		}
		return msgpack.Marshal(msgpackEnvelope{EventType: string(eventType), Event: raw})
	case EncodingCBOR:
		raw, err := cborEncMode.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("protocol: encode %s event: %w", eventType, err)
		}
		return cborEncMode.Marshal(cborEnvelope{EventType: string(eventType), Event: raw})
	}
	return nil, ErrUnknownEncoding
}

// Decode parses a frame. Frames whose event type is outside the protocol
// vocabulary fail with ErrUnknownEventType.
func (codec *Codec) Decode(frame []byte) (*Envelope, error) {
	var eventType string
	var event []byte

	switch codec.encoding {
	case EncodingJSON:
		var wire jsonEnvelope
		if err := json.Unmarshal(frame, &wire); err != nil {
			return nil, fmt.Errorf("protocol: decode envelope: %w", err)
		}
		eventType, event = wire.EventType, wire.Event
	case EncodingMsgpack:
		var wire msgpackEnvelope
		if err := msgpack.Unmarshal(frame, &wire); err != nil {
			return nil, fmt.Errorf("protocol: decode envelope: %w", err)
		}
		eventType, event = wire.EventType, wire.Event
	case EncodingCBOR:
		var wire cborEnvelope
		if err := cborDecMode.Unmarshal(frame, &wire); err != nil {
			return nil, fmt.Errorf("protocol: decode envelope: %w", err)
		}
		eventType, event = wire.EventType, wire.Event
	default:
		return nil, ErrUnknownEncoding
	}

	envelope := &Envelope{EventType: EventType(eventType), event: event, encoding: codec.encoding}
	if !envelope.EventType.Valid() {
		return envelope, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
	return envelope, nil
}

// Heartbeat encodes a heartbeat frame.
func (codec *Codec) Heartbeat() ([]byte, error) {
	return codec.Encode(EventHeartbeat, nil)
}

// Disconnect encodes a disconnect frame.
func (codec *Codec) Disconnect() ([]byte, error) {
	return codec.Encode(EventDisconnect, nil)
}

// Attach encodes an attach frame for channel.
func (codec *Codec) Attach(channel string) ([]byte, error) {
	if channel == "" {
		return nil, ErrMissingChannelName
	}
	return codec.Encode(EventAttach, ChannelRef{Channel: channel})
}

// Detach encodes a detach frame for channel.
func (codec *Codec) Detach(channel string) ([]byte, error) {
	if channel == "" {
		return nil, ErrMissingChannelName
	}
	return codec.Encode(EventDetach, ChannelRef{Channel: channel})
}

// Subscribe encodes a subscribe frame resuming after position.
func (codec *Codec) Subscribe(channel string, name string, position string) ([]byte, error) {
	if channel == "" {
		return nil, ErrMissingChannelName
	}
	return codec.Encode(EventSubscribe, Subscription{Channel: channel, Name: name, Position: position})
}

// Unsubscribe encodes an unsubscribe frame. An empty name refers to the
// subscription covering every message name.
func (codec *Codec) Unsubscribe(channel string, name string) ([]byte, error) {
	if channel == "" {
		return nil, ErrMissingChannelName
	}
	return codec.Encode(EventUnsubscribe, ChannelRef{Channel: channel, Name: name})
}

// Message encodes an outbound channel message.
func (codec *Codec) Message(channel string, name string, data any) ([]byte, error) {
	if channel == "" {
		return nil, ErrMissingChannelName
	}
	return codec.Encode(EventMessage, Message{Channel: channel, Name: name, Data: data})
}

func expect(envelope *Envelope, eventType EventType) error {
	if envelope == nil {
		return fmt.Errorf("%w: nil envelope", ErrEventTypeMismatch)
	}
	if envelope.EventType != eventType {
		return fmt.Errorf("%w: want %s, got %s", ErrEventTypeMismatch, eventType, envelope.EventType)
	}
	return nil
}

// ParseConnected extracts the session fields of a connected event.
func ParseConnected(envelope *Envelope) (Connected, error) {
	var connected Connected
	if err := expect(envelope, EventConnected); err != nil {
		return connected, err
	}
	err := envelope.Decode(&connected)
	return connected, err
}

// ParseMessage extracts a channel message.
func ParseMessage(envelope *Envelope) (Message, error) {
	var message Message
	if err := expect(envelope, EventMessage); err != nil {
		return message, err
	}
	if err := envelope.Decode(&message); err != nil {
		return message, err
	}
	if message.Channel == "" {
		return message, ErrMissingChannelName
	}
	return message, nil
}

// ParseError extracts a backend error.
func ParseError(envelope *Envelope) (ErrorEvent, error) {
	var event ErrorEvent
	if err := expect(envelope, EventError); err != nil {
		return event, err
	}
	err := envelope.Decode(&event)
	return event, err
}
