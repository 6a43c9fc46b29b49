package telegram

import (
	"log/slog"
	"net"
	"net/http"
	"path"
	"time"

	"github.com/m3rciful/vcfbot/core/logger"
	"github.com/m3rciful/vcfbot/core/telegram/netutil"
)

// HTTPOptions tunes the client behind every Bot API call.
type HTTPOptions struct {
	// Timeout bounds a whole request, body included, so it has to cover
	// downloading the largest accepted upload and the long poll.
	Timeout time.Duration
	// Retries is how often a replayable request is repeated after a
	// transient network failure.
	Retries int
	Backoff time.Duration
}

// NewHTTPClient returns a client for the Bot API with pooled connections
// and retries of replayable requests.
func NewHTTPClient(opts HTTPOptions) *http.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	base := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     60 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: &retryTransport{base: base, retries: opts.Retries, backoff: opts.Backoff},
	}
}

// retryTransport repeats requests whose body can be rebuilt. Streamed
// multipart uploads cannot, so a document send is tried once here and left
// to the dispatcher.
type retryTransport struct {
	base    http.RoundTripper
	retries int
	backoff time.Duration
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err == nil || !replayable(req) {
		return resp, err
	}
	ctx := req.Context()
	delay := t.backoff
	for attempt := 1; attempt <= t.retries && netutil.ShouldRetry(err); attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		next := req.Clone(ctx)
		if req.GetBody != nil {
			body, berr := req.GetBody()
			if berr != nil {
				return nil, berr
			}
			next.Body = body
		}
		logger.Debug(ctx, logger.CompTG, "http.retry",
			slog.Int("attempt", attempt),
			slog.String("call", logger.SanitizeLimit(path.Base(req.URL.Path), 64)),
			slog.Duration("delay", delay),
		)
		if resp, err = t.base.RoundTrip(next); err == nil {
			return resp, nil
		}
		delay *= 2
	}
	return nil, err
}
