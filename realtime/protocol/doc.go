// Package protocol defines the envelope exchanged with the realtime backend
// and the codec that maps it to and from a wire encoding.
//
// Every frame is an envelope {event_type, event}. The event payload stays in
// its encoded form until a caller asks for it through Envelope.Decode or one
// of the typed parsers, so routing only pays for the fields it inspects.
//
// Three encodings are supported: JSON (text frames), MessagePack and CBOR
// (binary frames). MessagePack is the default.
package protocol
