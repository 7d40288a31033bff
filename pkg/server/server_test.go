package server

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestHealthz(t *testing.T) {
	s := New(Config{Port: "0", PublicHost: "example.com"})

	req := httptest.NewRequest("GET", "/healthz", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestStatus(t *testing.T) {
	s := New(Config{Port: "0", PublicHost: "example.com"})

	req := httptest.NewRequest("GET", "/status", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	var body struct {
		ActiveCalls int `json:"activeCalls"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ActiveCalls != 0 {
		t.Errorf("activeCalls = %d, want 0", body.ActiveCalls)
	}
}

func TestInboundCallTwiML(t *testing.T) {
	t.Run("ConnectsToMediaStream", func(t *testing.T) {
		s := New(Config{Port: "0", PublicHost: "bridge.example.com"})

		form := url.Values{}
		form.Set("From", "+15550001111")
		form.Set("CallSid", "CA123")
		req := httptest.NewRequest("POST", "/voice/inbound", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := s.App().Test(req)
		if err != nil {
			t.Fatalf("Test: %v", err)
		}
		if resp.StatusCode != 200 {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "xml") {
			t.Errorf("Content-Type = %q, want XML", ct)
		}

		body, _ := io.ReadAll(resp.Body)
		doc := string(body)
		if !strings.Contains(doc, "<Connect>") {
			t.Errorf("TwiML missing Connect: %s", doc)
		}
		if !strings.Contains(doc, "wss://bridge.example.com/media-stream") {
			t.Errorf("TwiML missing stream URL: %s", doc)
		}
		if strings.Contains(doc, "<Say>") {
			t.Errorf("unexpected Say with no greeting configured: %s", doc)
		}
	})

	t.Run("GreetingAddsSay", func(t *testing.T) {
		s := New(Config{
			Port:       "0",
			PublicHost: "bridge.example.com",
			Greeting:   "Connecting you now.",
		})

		req := httptest.NewRequest("POST", "/voice/inbound", strings.NewReader(""))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := s.App().Test(req)
		if err != nil {
			t.Fatalf("Test: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		doc := string(body)
		if !strings.Contains(doc, "Connecting you now.") {
			t.Errorf("TwiML missing greeting: %s", doc)
		}
		if !strings.Contains(doc, "<Connect>") {
			t.Errorf("TwiML missing Connect: %s", doc)
		}
	})
}

func TestMediaStreamRequiresUpgrade(t *testing.T) {
	s := New(Config{Port: "0", PublicHost: "example.com"})

	req := httptest.NewRequest("GET", "/media-stream", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	if resp.StatusCode != 426 {
		t.Errorf("status = %d, want 426 Upgrade Required", resp.StatusCode)
	}
}

func TestNewDialer(t *testing.T) {
	t.Run("IncompleteConfigRefused", func(t *testing.T) {
		if _, err := NewDialer(DialerConfig{AccountSID: "AC123"}); err != ErrDialerNotConfigured {
			t.Errorf("err = %v, want ErrDialerNotConfigured", err)
		}
	})

	t.Run("CompleteConfigAccepted", func(t *testing.T) {
		d, err := NewDialer(DialerConfig{
			AccountSID: "AC123",
			AuthToken:  "token",
			From:       "+15550001111",
			PublicHost: "bridge.example.com",
		})
		if err != nil {
			t.Fatalf("NewDialer: %v", err)
		}
		if d == nil {
			t.Fatal("nil dialer")
		}
	})
}
