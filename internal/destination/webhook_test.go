package destination

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ctirelay/relay/internal/ratelimit"
)

func TestWebhookSender_SuccessSingleChunk(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		gotBody = string(buf)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewWebhookSender(ratelimit.New())
	result := sender.Send(srv.URL, "short message", "")

	if result.Outcome != OutcomeOK {
		t.Fatalf("Outcome = %v, want OK, err=%v", result.Outcome, result.Err)
	}
	if !strings.Contains(gotBody, "short message") {
		t.Fatalf("request body = %q, want to contain sent text", gotBody)
	}
}

func TestWebhookSender_429ReturnsRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	sender := NewWebhookSender(ratelimit.New())
	result := sender.Send(srv.URL, "hello", "")

	if result.Outcome != OutcomeRateLimited {
		t.Fatalf("Outcome = %v, want RateLimited", result.Outcome)
	}
	if result.RetryAfter.Seconds() != 3 {
		t.Fatalf("RetryAfter = %v, want 3s", result.RetryAfter)
	}
}

func TestWebhookSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sender := NewWebhookSender(ratelimit.New())
	result := sender.Send(srv.URL, "hello", "")

	if result.Outcome != OutcomeError {
		t.Fatalf("Outcome = %v, want Error", result.Outcome)
	}
}

func TestParseRetryAfter_FallsBackOnGarbage(t *testing.T) {
	if d := parseRetryAfter("not-a-number"); d != defaultRetryAfter {
		t.Fatalf("parseRetryAfter(garbage) = %v, want default %v", d, defaultRetryAfter)
	}
}

func TestParseRetryAfter_Empty(t *testing.T) {
	if d := parseRetryAfter(""); d != defaultRetryAfter {
		t.Fatalf("parseRetryAfter(\"\") = %v, want default", d)
	}
}
