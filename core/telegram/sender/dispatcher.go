// Package sender serializes and retries outbound Bot API calls.
//
// Calls are sharded by chat: every call for one chat runs on the same
// worker, so replies produced by a handler and by the upload timer for the
// same chat reach Telegram in the order they were issued.
package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/vcfbot/core/logger"
	"github.com/m3rciful/vcfbot/core/telegram/netutil"
)

var (
	// ErrQueueClosed is returned once the dispatcher is closed.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned when a chat's lane cannot take another call.
	ErrQueueFull = errors.New("telegram sender: queue full")

	tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
)

// Call is one Bot API request made for a chat. Run must be safe to repeat.
type Call struct {
	ChatID   int64
	Action   string // send.text, edit.text, send.document, get.file
	Endpoint string
	Run      func() error
}

// Options tunes the dispatcher. Zero values get defaults.
type Options struct {
	// QueueSize is the buffer of each worker lane.
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds a call including its retries. FileDuration
	// replaces it for document uploads and downloads.
	MaxDuration  time.Duration
	FileDuration time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	if o.FileDuration < o.MaxDuration {
		o.FileDuration = 5 * o.MaxDuration
	}
	return o
}

type job struct {
	ctx  context.Context
	call Call
	done chan error
}

// Dispatcher runs Calls on a fixed set of per-chat lanes.
type Dispatcher struct {
	opts  Options
	lanes []chan job
	wg    sync.WaitGroup
	errs  atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the workers.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{opts: opts, lanes: make([]chan job, opts.Workers)}
	d.wg.Add(opts.Workers)
	for i := range d.lanes {
		d.lanes[i] = make(chan job, opts.QueueSize)
		go d.worker(d.lanes[i])
	}
	return d
}

// Do runs c on its chat's lane and waits for the final result. When the
// dispatcher is closed or the lane is full, c runs on the caller's
// goroutine with the same retry policy.
func (d *Dispatcher) Do(ctx context.Context, c Call) error {
	if c.Run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	j := job{ctx: ctx, call: c, done: make(chan error, 1)}
	if err := d.push(j); err != nil {
		logger.Debug(ctx, logger.CompSender, "queue.inline",
			slog.String("action", c.Action),
			slog.String("err", err.Error()),
		)
		return d.execute(ctx, c)
	}
	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) lane(chatID int64) chan job {
	return d.lanes[uint64(chatID)%uint64(len(d.lanes))]
}

func (d *Dispatcher) push(j job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.lane(j.call.ChatID) <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount is the number of calls that failed for good.
func (d *Dispatcher) ErrorCount() uint64 { return d.errs.Load() }

// Close drains the queued calls and stops the workers.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, l := range d.lanes {
		close(l)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker(jobs <-chan job) {
	defer d.wg.Done()
	for j := range jobs {
		j.done <- d.execute(j.ctx, j.call)
	}
}

func (d *Dispatcher) budget(action string) time.Duration {
	switch action {
	case "send.document", "get.file":
		return d.opts.FileDuration
	}
	return d.opts.MaxDuration
}

func (d *Dispatcher) execute(ctx context.Context, c Call) error {
	start := time.Now()
	deadline, cancel := context.WithTimeout(ctx, d.budget(c.Action))
	defer cancel()

	var err error
	attempt := 0
	for {
		attempt++
		if err = deadline.Err(); err != nil {
			break
		}
		if err = c.Run(); err == nil {
			attrs := append(callAttrs(ctx, c), slog.Int("elapsed_ms", elapsedMS(start)))
			if attempt > 1 {
				logger.Info(ctx, logger.CompSender, "send.retry.success", append(attrs, slog.Int("attempt", attempt))...)
			} else {
				logger.Debug(ctx, logger.CompSender, "send.success", attrs...)
			}
			return nil
		}
		if attempt > d.opts.MaxRetries || !netutil.ShouldRetry(err) {
			break
		}
		delay := max(d.opts.RetryBackoff*time.Duration(attempt), netutil.RetryAfter(err))
		logger.Debug(ctx, logger.CompSender, "send.retry.backoff",
			append(callAttrs(ctx, c), slog.Int("attempt", attempt), slog.Duration("delay", delay))...)
		if werr := sleep(deadline, delay); werr != nil {
			err = errors.Join(err, werr)
			break
		}
	}

	d.errs.Add(1)
	logger.Error(ctx, logger.CompSender, "send.fail", append(callAttrs(ctx, c),
		slog.String("error", redact(err)),
		slog.String("error_kind", classify(err)),
		slog.Int("attempts", attempt),
		slog.Int("elapsed_ms", elapsedMS(start)),
	)...)
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func callAttrs(ctx context.Context, c Call) []slog.Attr {
	attrs := []slog.Attr{slog.String("action", c.Action)}
	if c.Endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", c.Endpoint))
	}
	if c.ChatID != 0 {
		attrs = append(attrs, slog.Int64("chat_id", c.ChatID))
	}
	if rid := logger.RIDFrom(ctx); rid != "" {
		attrs = append(attrs, slog.String("rid", rid))
	}
	if id := logger.UpdateIDFrom(ctx); id != 0 {
		attrs = append(attrs, slog.Int("update_id", id))
	}
	return attrs
}

func elapsedMS(start time.Time) int {
	return int(logger.RoundMS(time.Since(start)) / time.Millisecond)
}

// classify names the failure for log aggregation.
func classify(err error) string {
	var (
		apiErr *tele.Error
		dnsErr *net.DNSError
		netErr net.Error
		opErr  *net.OpError
		alert  tls.AlertError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case netutil.RetryAfter(err) > 0:
		return "flood"
	case errors.As(err, &apiErr):
		if apiErr.Code >= 500 {
			return "http_5xx"
		}
		return "http_4xx"
	case errors.As(err, &dnsErr):
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return "dial"
	case errors.As(err, &alert):
		return "tls"
	}
	if code := netutil.StatusCode(err); code >= 500 {
		return "http_5xx"
	} else if code >= 400 {
		return "http_4xx"
	}
	return "unknown"
}

// redact hides bot tokens that leak into URLs of transport errors.
func redact(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}
