package resource

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/statewire/internal/ir"
	"github.com/roach88/statewire/internal/state"
)

// HTTP backs a Cell with a JSON endpoint. Reads GET the URL and writes PUT
// the canonical JSON body. A connected cell polls, and a token bucket caps
// the request rate across polls, single gets and writes.
type HTTP struct {
	url      string
	client   *http.Client
	limiter  *rate.Limiter
	interval time.Duration
	logger   *slog.Logger

	live *session
}

// HTTPOption configures an HTTP connector.
type HTTPOption func(*HTTP)

// WithClient sets the HTTP client. Defaults to a client with a 10s timeout.
func WithClient(c *http.Client) HTTPOption {
	return func(h *HTTP) {
		h.client = c
	}
}

// WithRateLimit caps requests per second with the given burst.
func WithRateLimit(perSecond float64, burst int) HTTPOption {
	return func(h *HTTP) {
		h.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithHTTPPoll sets the poll interval of a connected cell.
func WithHTTPPoll(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		h.interval = d
	}
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(h *HTTP) {
		h.logger = l
	}
}

// NewHTTP creates a connector for url.
func NewHTTP(url string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		url:      url,
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(10), 5),
		interval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = loggerOr(h.logger).With("backend", ir.BackendHTTP, "url", url)
	return h
}

func (h *HTTP) get(ctx context.Context) (ir.Value, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return ir.Null{}, nil
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("GET %s: %s", h.url, resp.Status)
	}
	return ir.Unmarshal(body)
}

func (h *HTTP) put(ctx context.Context, v ir.Value) error {
	body, err := ir.MarshalCanonical(v)
	if err != nil {
		return err
	}
	if err := h.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, h.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("PUT %s: %s", h.url, resp.Status)
	}
	return nil
}

func (h *HTTP) SingleGet(r *Cell) {
	go func() {
		v, err := h.get(context.Background())
		if err != nil {
			h.logger.Warn("fetch failed", "error", err)
			deliver(r, failure("fetch", err))
			return
		}
		deliver(r, ok(v))
	}()
}

func (h *HTTP) SetupConnection(r *Cell) {
	h.live = startSession(func(ctx context.Context) {
		check := func(ctx context.Context) {
			v, err := h.get(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				h.logger.Warn("poll failed", "error", err)
				deliver(r, failure("poll", err))
				return
			}
			deliver(r, ok(v))
		}
		check(ctx)
		poll(ctx, h.interval, check)
	})
}

func (h *HTTP) TeardownConnection(*Cell) {
	h.live.stop()
	h.live = nil
}

func (h *HTTP) WriteAction(r *Cell, v ir.Value) *state.Future[error] {
	done := state.NewFuture[error]()
	go func() {
		if err := h.put(context.Background(), v); err != nil {
			h.logger.Warn("write failed", "error", err)
			settle(r, done, fmt.Errorf("write: %w", err))
			return
		}
		deliver(r, ok(v))
		settle(r, done, nil)
	}()
	return done
}

var _ Connector = (*HTTP)(nil)
