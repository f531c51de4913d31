package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOnline_Translate(t *testing.T) {
	var got libreRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"translatedText":"hello"}`))
	}))
	defer srv.Close()

	o := NewOnline(OnlineConfig{URL: srv.URL, APIKey: "k", Logger: testLogger()})
	out, err := o.Translate(context.Background(), "привіт", "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello" {
		t.Errorf("expected hello, got %q", out)
	}
	if got.Q != "привіт" || got.Source != "auto" || got.Target != "en" || got.Format != "text" || got.APIKey != "k" {
		t.Errorf("unexpected request body: %+v", got)
	}
}

func TestOnline_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`},
		{"bad json", http.StatusOK, `not json`},
		{"missing field", http.StatusOK, `{"error":"unsupported language"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			o := NewOnline(OnlineConfig{URL: srv.URL, Logger: testLogger()})
			if _, err := o.Translate(context.Background(), "привіт", "en"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestOnline_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	o := NewOnline(OnlineConfig{URL: srv.URL, Timeout: 50 * time.Millisecond, Logger: testLogger()})
	e := NewEngine(o, testLogger())

	start := time.Now()
	if got := e.Translate(context.Background(), "привіт", "en"); got != "привіт" {
		t.Errorf("expected original text, got %q", got)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout not honored, took %s", elapsed)
	}
}
