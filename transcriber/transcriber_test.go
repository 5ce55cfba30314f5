package transcriber

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNetworkMetricsSum(t *testing.T) {
	m := &NetworkMetrics{
		ConnWait:   10 * time.Millisecond,
		DNS:        20 * time.Millisecond,
		TCP:        30 * time.Millisecond,
		TLS:        40 * time.Millisecond,
		ReqHeaders: 5 * time.Millisecond,
		ReqBody:    15 * time.Millisecond,
		TTFB:       50 * time.Millisecond,
		Download:   25 * time.Millisecond,
	}
	got := m.Sum()
	want := 195 * time.Millisecond
	if got != want {
		t.Errorf("Sum() = %v, want %v", got, want)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	h := http.Header{}
	h.Set("X-Rate-Limit", "100")

	if got := firstNonEmpty(h, "X-Missing", "X-Rate-Limit"); got != "100" {
		t.Errorf("got %q, want %q", got, "100")
	}
	if got := firstNonEmpty(h, "X-A", "X-B"); got != "?" {
		t.Errorf("got %q, want %q", got, "?")
	}
}

// groqAt points a Groq client at a test server.
func groqAt(url string) *Groq {
	g := NewGroq("test-key")
	g.apiURL = url
	return g
}

func TestTranscribeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("x-ratelimit-remaining-requests", "41")
		w.Header().Set("x-ratelimit-limit-requests", "50")
		w.Write([]byte(`{"text": "hello world", "duration": 1.5}`))
	}))
	defer srv.Close()

	result, err := groqAt(srv.URL).Transcribe(context.Background(), []byte("audio"), "flac")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.Text != "hello world" {
		t.Errorf("Text = %q, want %q", result.Text, "hello world")
	}
	if result.RateLimit != "41/50" {
		t.Errorf("RateLimit = %q, want 41/50", result.RateLimit)
	}
	if result.Metrics == nil {
		t.Error("expected network metrics")
	}
}

func TestTranscribeAuthFailure(t *testing.T) {
	for _, status := range []int{401, 403} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
			w.Write([]byte(`{"error": "invalid key"}`))
		}))

		_, err := groqAt(srv.URL).Transcribe(context.Background(), []byte("audio"), "flac")
		srv.Close()

		var terr *Error
		if !errors.As(err, &terr) {
			t.Fatalf("status %d: error %T, want *Error", status, err)
		}
		if terr.Kind != AuthFailure {
			t.Errorf("status %d: kind = %v, want AuthFailure", status, terr.Kind)
		}
		if terr.UserMessage() == "" {
			t.Errorf("status %d: empty user message", status)
		}
	}
}

func TestTranscribeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(500)
	}))
	defer srv.Close()

	_, err := groqAt(srv.URL).Transcribe(context.Background(), []byte("audio"), "flac")
	var terr *Error
	if !errors.As(err, &terr) || terr.Kind != NetworkFailure {
		t.Fatalf("error = %v, want NetworkFailure", err)
	}
}

func TestTranscribeMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`this is not json`))
	}))
	defer srv.Close()

	_, err := groqAt(srv.URL).Transcribe(context.Background(), []byte("audio"), "flac")
	var terr *Error
	if !errors.As(err, &terr) || terr.Kind != MalformedResponse {
		t.Fatalf("error = %v, want MalformedResponse", err)
	}
}

func TestTranscribeTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := groqAt(srv.URL).Transcribe(ctx, []byte("audio"), "flac")
	var terr *Error
	if !errors.As(err, &terr) || terr.Kind != Timeout {
		t.Fatalf("error = %v, want Timeout", err)
	}
}

func TestTranscribeConnectionRefused(t *testing.T) {
	_, err := groqAt("http://127.0.0.1:1/v1/none").Transcribe(context.Background(), []byte("audio"), "flac")
	var terr *Error
	if !errors.As(err, &terr) || terr.Kind != NetworkFailure {
		t.Fatalf("error = %v, want NetworkFailure", err)
	}
}

func TestErrorKindStrings(t *testing.T) {
	for kind, want := range map[ErrorKind]string{
		AuthFailure:       "auth_failure",
		NetworkFailure:    "network_failure",
		Timeout:           "timeout",
		MalformedResponse: "malformed_response",
	} {
		if got := kind.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", kind, got, want)
		}
	}
}
