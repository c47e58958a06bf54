package processor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

func TestTriggerSendsPayload(t *testing.T) {
	var got map[string]string
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client, err := NewClient(Options{URL: srv.URL, Token: "tok"})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	err = client.Trigger(context.Background(), TriggerRequest{
		VideoID:          "job-1",
		OriginalURL:      "https://cdn.example.com/u/1.mp4",
		TargetLanguage:   "es",
		UserID:           "u",
		OriginalFilename: "ad.mp4",
	})
	if err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}
	want := map[string]string{
		"video_id":          "job-1",
		"original_url":      "https://cdn.example.com/u/1.mp4",
		"target_language":   "es",
		"user_id":           "u",
		"original_filename": "ad.mp4",
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("payload[%s] = %q, want %q", k, got[k], v)
		}
	}
	if auth != "Bearer tok" {
		t.Fatalf("Authorization = %q", auth)
	}
}

func TestTriggerNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewClient(Options{URL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	err = client.Trigger(context.Background(), TriggerRequest{VideoID: "job-1"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("Trigger() error = %v, want StatusError 502", err)
	}
}

func TestTriggerBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewClient(Options{URL: srv.URL, FailureThreshold: 2, OpenTimeout: time.Minute})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := client.Trigger(context.Background(), TriggerRequest{}); err == nil {
			t.Fatalf("Trigger() #%d expected error", i)
		}
	}
	err = client.Trigger(context.Background(), TriggerRequest{})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("Trigger() error = %v, want open breaker", err)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("server saw %d calls, want 2", n)
	}
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient(Options{URL: "  "}); !errors.Is(err, ErrMissingURL) {
		t.Fatalf("NewClient() error = %v, want ErrMissingURL", err)
	}
}
