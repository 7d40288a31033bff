package telephony

import (
	"encoding/json"
	"testing"
)

func TestDecode(t *testing.T) {
	t.Run("StartNested", func(t *testing.T) {
		data := []byte(`{
			"event": "start",
			"sequenceNumber": "1",
			"start": {
				"streamSid": "MZ123",
				"accountSid": "AC456",
				"callSid": "CA789",
				"tracks": ["inbound"],
				"mediaFormat": {"encoding": "audio/x-mulaw", "sampleRate": 8000, "channels": 1},
				"customParameters": {"agent": "support"}
			},
			"streamSid": "MZ123"
		}`)
		msg, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if msg.Event != EventStart {
			t.Errorf("event = %s", msg.Event)
		}
		if msg.Start.StreamSID != "MZ123" {
			t.Errorf("streamSid = %s", msg.Start.StreamSID)
		}
		if msg.Start.CallSID != "CA789" {
			t.Errorf("callSid = %s", msg.Start.CallSID)
		}
		if msg.Start.MediaFormat.SampleRate != 8000 {
			t.Errorf("sampleRate = %d", msg.Start.MediaFormat.SampleRate)
		}
		if msg.Start.CustomParameters["agent"] != "support" {
			t.Errorf("customParameters = %v", msg.Start.CustomParameters)
		}
	})

	t.Run("StartTopLevelOnly", func(t *testing.T) {
		// Some gateways omit the nested streamSid.
		data := []byte(`{"event": "start", "streamSid": "MZ999", "start": {"callSid": "CA1"}}`)
		msg, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if msg.Start.StreamSID != "MZ999" {
			t.Errorf("nested streamSid not filled from top level: %q", msg.Start.StreamSID)
		}
	})

	t.Run("StartNestedOnly", func(t *testing.T) {
		data := []byte(`{"event": "start", "start": {"streamSid": "MZ777"}}`)
		msg, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if msg.StreamSID != "MZ777" {
			t.Errorf("top-level streamSid not filled from nested: %q", msg.StreamSID)
		}
	})

	t.Run("MediaQuotedTimestamp", func(t *testing.T) {
		data := []byte(`{
			"event": "media",
			"streamSid": "MZ123",
			"media": {"track": "inbound", "chunk": "4", "timestamp": "5120", "payload": "bXVsYXc="}
		}`)
		msg, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if msg.Media.Timestamp != 5120 {
			t.Errorf("timestamp = %d, want 5120", msg.Media.Timestamp)
		}
		if msg.Media.Payload != "bXVsYXc=" {
			t.Errorf("payload = %q", msg.Media.Payload)
		}
	})

	t.Run("MediaNumericTimestamp", func(t *testing.T) {
		data := []byte(`{"event": "media", "streamSid": "MZ123", "media": {"timestamp": 5120, "payload": "AA=="}}`)
		msg, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if msg.Media.Timestamp != 5120 {
			t.Errorf("timestamp = %d, want 5120", msg.Media.Timestamp)
		}
	})

	t.Run("Mark", func(t *testing.T) {
		data := []byte(`{"event": "mark", "streamSid": "MZ123", "mark": {"name": "b2c3"}}`)
		msg, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if msg.Mark.Name != "b2c3" {
			t.Errorf("mark name = %q", msg.Mark.Name)
		}
	})

	t.Run("DTMF", func(t *testing.T) {
		data := []byte(`{"event": "dtmf", "streamSid": "MZ123", "dtmf": {"track": "inbound_track", "digit": "5"}}`)
		msg, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if msg.DTMF.Digit != "5" {
			t.Errorf("digit = %q", msg.DTMF.Digit)
		}
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		if _, err := Decode([]byte(`{"event": "media"`)); err == nil {
			t.Error("expected error for truncated frame")
		}
	})

	t.Run("UnknownEventPassesThrough", func(t *testing.T) {
		msg, err := Decode([]byte(`{"event": "telemetry"}`))
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if msg.Event != "telemetry" {
			t.Errorf("event = %s", msg.Event)
		}
	})
}

func TestEncode(t *testing.T) {
	t.Run("Media", func(t *testing.T) {
		data, err := EncodeMedia("MZ123", "bXVsYXc=")
		if err != nil {
			t.Fatalf("EncodeMedia: %v", err)
		}
		var frame map[string]any
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if frame["event"] != "media" || frame["streamSid"] != "MZ123" {
			t.Errorf("frame = %v", frame)
		}
		media := frame["media"].(map[string]any)
		if media["payload"] != "bXVsYXc=" {
			t.Errorf("payload = %v", media["payload"])
		}
	})

	t.Run("Mark", func(t *testing.T) {
		data, err := EncodeMark("MZ123", "token-1")
		if err != nil {
			t.Fatalf("EncodeMark: %v", err)
		}
		var frame map[string]any
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		mark := frame["mark"].(map[string]any)
		if mark["name"] != "token-1" {
			t.Errorf("mark = %v", mark)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		data, err := EncodeClear("MZ123")
		if err != nil {
			t.Fatalf("EncodeClear: %v", err)
		}
		var frame map[string]any
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if frame["event"] != "clear" || frame["streamSid"] != "MZ123" {
			t.Errorf("frame = %v", frame)
		}
	})
}

func TestTimestampUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want Timestamp
		err  bool
	}{
		{`"1234"`, 1234, false},
		{`1234`, 1234, false},
		{`""`, 0, false},
		{`null`, 0, false},
		{`"abc"`, 0, true},
	}
	for _, tt := range tests {
		var got Timestamp
		err := json.Unmarshal([]byte(tt.in), &got)
		if tt.err {
			if err == nil {
				t.Errorf("Unmarshal(%s): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("Unmarshal(%s): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Unmarshal(%s) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
