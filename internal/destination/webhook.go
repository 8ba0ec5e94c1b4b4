package destination

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ctirelay/relay/internal/chunk"
	"github.com/ctirelay/relay/internal/logger"
	"github.com/ctirelay/relay/internal/ratelimit"
)

const webhookChunkLimit = 2000

// defaultRetryAfter is used when a 429 response carries no parseable
// Retry-After value (spec.md §4.9).
const defaultRetryAfter = 1 * time.Second

// WebhookSender POSTs a rendered message (and optional first-chunk
// attachment) to an HTTPS endpoint, chunking bodies over webhookChunkLimit.
type WebhookSender struct {
	client  *resty.Client
	limiter *ratelimit.Limiter
}

// NewWebhookSender builds a WebhookSender sharing limiter with other
// senders so a destination's cooldown is tracked under one key space.
func NewWebhookSender(limiter *ratelimit.Limiter) *WebhookSender {
	return &WebhookSender{
		client:  resty.New().SetTimeout(30 * time.Second),
		limiter: limiter,
	}
}

// Send implements Sender. endpoint is the resolved webhook URL; mediaPath,
// if non-empty, is attached to the first chunk only.
func (s *WebhookSender) Send(endpoint, body, mediaPath string) Result {
	chunks := chunk.Split(body, webhookChunkLimit)
	key := "webhook:" + endpoint

	for i, part := range chunks {
		if err := s.limiter.Reserve(context.Background(), key); err != nil {
			return Result{Outcome: OutcomeError, Err: err}
		}

		media := ""
		if i == 0 {
			media = mediaPath
		}

		result := s.sendOne(endpoint, part, media)
		if result.Outcome == OutcomeRateLimited {
			s.limiter.Register(key, result.RetryAfter)
			return result
		}
		if result.Outcome == OutcomeError {
			return result
		}
	}

	return Result{Outcome: OutcomeOK}
}

func (s *WebhookSender) sendOne(endpoint, body, mediaPath string) Result {
	req := s.client.R().SetBody(map[string]string{"content": body})

	if mediaPath != "" {
		f, err := os.Open(mediaPath)
		if err != nil {
			logger.WarnCF("destination", "could not open media for webhook send", map[string]any{
				"path": mediaPath, "error": err.Error(),
			})
		} else {
			defer f.Close()
			req = req.SetFileReader("file", filenameOf(mediaPath), f).SetFormData(map[string]string{"content": body})
		}
	}

	resp, err := req.Post(endpoint)
	if err != nil {
		return Result{Outcome: OutcomeError, Err: err}
	}

	switch {
	case resp.StatusCode() == 429:
		return Result{Outcome: OutcomeRateLimited, RetryAfter: parseRetryAfter(resp.Header().Get("Retry-After"))}
	case resp.StatusCode() >= 200 && resp.StatusCode() < 300:
		return Result{Outcome: OutcomeOK}
	default:
		return Result{Outcome: OutcomeError, Err: fmt.Errorf("webhook send: unexpected status %d", resp.StatusCode())}
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	if when, err := time.Parse(time.RFC1123, header); err == nil {
		d := time.Until(when)
		if d > 0 {
			return d
		}
	}
	return defaultRetryAfter
}

func filenameOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
