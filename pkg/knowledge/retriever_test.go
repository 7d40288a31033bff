package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPRetriever(t *testing.T) {
	t.Run("ReturnsJoinedResults", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req searchRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode request: %v", err)
			}
			if req.Query != "store hours" {
				t.Errorf("query = %q", req.Query)
			}
			json.NewEncoder(w).Encode(searchResponse{Results: []Result{
				{Title: "Hours", Content: "Open 9am to 5pm weekdays."},
				{Content: "Closed on public holidays."},
			}})
		}))
		defer srv.Close()

		r := NewHTTPRetriever(srv.URL)
		got, err := r.Search(context.Background(), "store hours", nil)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if !strings.Contains(got, "Open 9am to 5pm") {
			t.Errorf("result missing first passage: %q", got)
		}
		if !strings.Contains(got, "public holidays") {
			t.Errorf("result missing second passage: %q", got)
		}
	})

	t.Run("SendsBearerToken", func(t *testing.T) {
		var gotAuth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			json.NewEncoder(w).Encode(searchResponse{})
		}))
		defer srv.Close()

		r := NewHTTPRetriever(srv.URL, WithAPIKey("kb-secret"))
		if _, err := r.Search(context.Background(), "anything", nil); err != nil {
			t.Fatalf("Search: %v", err)
		}
		if gotAuth != "Bearer kb-secret" {
			t.Errorf("Authorization = %q", gotAuth)
		}
	})

	t.Run("ForwardsSourceIDs", func(t *testing.T) {
		var gotReq searchRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
				t.Errorf("decode request: %v", err)
			}
			json.NewEncoder(w).Encode(searchResponse{})
		}))
		defer srv.Close()

		r := NewHTTPRetriever(srv.URL)
		if _, err := r.Search(context.Background(), "refund policy", []string{"vs_1", "vs_2"}); err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(gotReq.SourceIDs) != 2 || gotReq.SourceIDs[0] != "vs_1" || gotReq.SourceIDs[1] != "vs_2" {
			t.Errorf("source_ids = %v", gotReq.SourceIDs)
		}
	})

	t.Run("OmitsSourceIDsWhenUnset", func(t *testing.T) {
		var body []byte
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ = io.ReadAll(r.Body)
			json.NewEncoder(w).Encode(searchResponse{})
		}))
		defer srv.Close()

		r := NewHTTPRetriever(srv.URL)
		if _, err := r.Search(context.Background(), "hello", nil); err != nil {
			t.Fatalf("Search: %v", err)
		}
		if strings.Contains(string(body), "source_ids") {
			t.Errorf("request body should omit source_ids: %s", body)
		}
	})

	t.Run("EmptyResultsGetPlaceholder", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(searchResponse{})
		}))
		defer srv.Close()

		r := NewHTTPRetriever(srv.URL)
		got, err := r.Search(context.Background(), "nothing matches this", nil)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if got != "No relevant information found." {
			t.Errorf("got %q", got)
		}
	})

	t.Run("ServerErrorSurfaces", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "index rebuilding", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		r := NewHTTPRetriever(srv.URL)
		if _, err := r.Search(context.Background(), "query", nil); err == nil {
			t.Error("expected error for 503 response")
		}
	})

	t.Run("EmptyQueryRejected", func(t *testing.T) {
		r := NewHTTPRetriever("http://unused.invalid")
		if _, err := r.Search(context.Background(), "", nil); !errors.Is(err, ErrEmptyQuery) {
			t.Errorf("expected ErrEmptyQuery, got %v", err)
		}
	})
}

func TestStatic(t *testing.T) {
	r := NewStatic("We are open every day.")
	got, err := r.Search(context.Background(), "hours", nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got != "We are open every day." {
		t.Errorf("got %q", got)
	}

	if _, err := r.Search(context.Background(), "", nil); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}
}
