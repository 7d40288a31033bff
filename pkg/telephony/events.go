// Package telephony implements the Twilio Media Streams side of the voice
// bridge: decoding the framed JSON event protocol that arrives on the call
// WebSocket and encoding the outbound media, mark and clear frames.
package telephony

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Inbound event kinds sent by Twilio over the media stream socket.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventMark      = "mark"
	EventStop      = "stop"
	EventDTMF      = "dtmf"
)

// Timestamp is a media timestamp in milliseconds since stream start.
// Twilio encodes it as a quoted decimal string; some gateways send a bare
// number. Both shapes are accepted.
type Timestamp int64

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*t = 0
			return nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("telephony: invalid timestamp %q: %w", s, err)
		}
		*t = Timestamp(v)
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*t = Timestamp(v)
	return nil
}

// Message is one inbound frame from the media stream socket.
type Message struct {
	Event          string        `json:"event"`
	StreamSID      string        `json:"streamSid,omitempty"`
	SequenceNumber string        `json:"sequenceNumber,omitempty"`
	Start          *StartPayload `json:"start,omitempty"`
	Media          *MediaPayload `json:"media,omitempty"`
	Mark           *MarkPayload  `json:"mark,omitempty"`
	Stop           *StopPayload  `json:"stop,omitempty"`
	DTMF           *DTMFPayload  `json:"dtmf,omitempty"`
}

// StartPayload carries the stream identity delivered with the start event.
type StartPayload struct {
	StreamSID        string            `json:"streamSid"`
	AccountSID       string            `json:"accountSid"`
	CallSID          string            `json:"callSid"`
	Tracks           []string          `json:"tracks"`
	MediaFormat      MediaFormat       `json:"mediaFormat"`
	CustomParameters map[string]string `json:"customParameters"`
}

// MediaFormat describes the negotiated audio encoding.
type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// MediaPayload carries one base64 audio chunk.
type MediaPayload struct {
	Track     string    `json:"track"`
	Chunk     string    `json:"chunk"`
	Timestamp Timestamp `json:"timestamp"`
	Payload   string    `json:"payload"`
}

// MarkPayload acknowledges playback of a previously sent mark.
type MarkPayload struct {
	Name string `json:"name"`
}

// StopPayload carries the identifiers delivered with the stop event.
type StopPayload struct {
	AccountSID string `json:"accountSid"`
	CallSID    string `json:"callSid"`
}

// DTMFPayload carries a keypad digit pressed by the caller.
type DTMFPayload struct {
	Track string `json:"track"`
	Digit string `json:"digit"`
}

// Decode parses one inbound frame and normalizes provider quirks.
//
// Some gateways put streamSid at the top level of the start frame instead of
// nesting it under "start"; Decode accepts either shape, so callers can read
// msg.Start.StreamSID unconditionally after a start event.
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("telephony: malformed frame: %w", err)
	}
	if msg.Event == EventStart {
		if msg.Start == nil {
			msg.Start = &StartPayload{}
		}
		if msg.Start.StreamSID == "" {
			msg.Start.StreamSID = msg.StreamSID
		}
		if msg.StreamSID == "" {
			msg.StreamSID = msg.Start.StreamSID
		}
	}
	return &msg, nil
}

// Outbound frame shapes. All are keyed to the stream identifier from the
// start event.

type outboundMedia struct {
	Event     string       `json:"event"`
	StreamSID string       `json:"streamSid"`
	Media     mediaContent `json:"media"`
}

type mediaContent struct {
	Payload string `json:"payload"`
}

type outboundMark struct {
	Event     string      `json:"event"`
	StreamSID string      `json:"streamSid"`
	Mark      markContent `json:"mark"`
}

type markContent struct {
	Name string `json:"name"`
}

type outboundClear struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
}

// EncodeMedia builds an outbound media frame carrying base64 audio.
func EncodeMedia(streamSID, payloadB64 string) ([]byte, error) {
	return json.Marshal(outboundMedia{
		Event:     EventMedia,
		StreamSID: streamSID,
		Media:     mediaContent{Payload: payloadB64},
	})
}

// EncodeMark builds an outbound mark frame used for playback tracking.
func EncodeMark(streamSID, name string) ([]byte, error) {
	return json.Marshal(outboundMark{
		Event:     EventMark,
		StreamSID: streamSID,
		Mark:      markContent{Name: name},
	})
}

// EncodeClear builds a clear frame telling the provider to discard any
// queued but unplayed audio.
func EncodeClear(streamSID string) ([]byte, error) {
	return json.Marshal(outboundClear{
		Event:     "clear",
		StreamSID: streamSID,
	})
}
