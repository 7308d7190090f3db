package adminlookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"github.com/pscheid92/chatwarden/internal/adapter/metrics"
	"github.com/pscheid92/chatwarden/internal/domain"
)

// Member statuses that carry moderation rights.
const (
	StatusCreator       = "creator"
	StatusAdministrator = "administrator"
)

// ErrUnexpectedStatus is returned for upstream replies other than 200 and 404.
var ErrUnexpectedStatus = errors.New("unexpected admin lookup status")

type memberResponse struct {
	Status string `json:"status"`
}

// HTTP asks the platform bridge for a chat member's status:
// GET {baseURL}/chats/{chat}/members/{user} -> {"status": "..."}.
// A 404 means the user is not a member and therefore not an admin.
type HTTP struct {
	baseURL string
	token   string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.AdminCacheMetrics
	clock   clockwork.Clock
}

type Option func(*options)

type options struct {
	maxRetries   int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
	timeout      time.Duration
	logger       *slog.Logger
	transport    http.RoundTripper
	metrics      *metrics.AdminCacheMetrics
	clock        clockwork.Clock
	breaker      gobreaker.Settings
}

func WithMaxRetries(n int) Option { return func(o *options) { o.maxRetries = n } }

func WithRetryWait(minWait, maxWait time.Duration) Option {
	return func(o *options) {
		o.retryWaitMin = minWait
		o.retryWaitMax = maxWait
	}
}

func WithTimeout(d time.Duration) Option { return func(o *options) { o.timeout = d } }

func WithLogger(logger *slog.Logger) Option { return func(o *options) { o.logger = logger } }

func WithTransport(rt http.RoundTripper) Option { return func(o *options) { o.transport = rt } }

func WithMetrics(m *metrics.AdminCacheMetrics) Option { return func(o *options) { o.metrics = m } }

func WithClock(c clockwork.Clock) Option { return func(o *options) { o.clock = c } }

// WithBreakerSettings replaces the circuit breaker configuration. Name is always overwritten.
func WithBreakerSettings(s gobreaker.Settings) Option { return func(o *options) { o.breaker = s } }

// leveledSlog adapts slog to retryablehttp. Intermediate failures are retried, so ERROR becomes WARN.
type leveledSlog struct {
	inner *slog.Logger
}

func (l leveledSlog) Error(msg string, kv ...any) { l.inner.Warn(msg, kv...) }
func (l leveledSlog) Warn(msg string, kv ...any)  { l.inner.Warn(msg, kv...) }
func (l leveledSlog) Info(msg string, kv ...any)  { l.inner.Info(msg, kv...) }
func (l leveledSlog) Debug(msg string, kv ...any) { l.inner.Debug(msg, kv...) }

func NewHTTP(baseURL, token string, opts ...Option) *HTTP {
	o := options{
		maxRetries:   2,
		retryWaitMin: 100 * time.Millisecond,
		retryWaitMax: time.Second,
		timeout:      5 * time.Second,
		logger:       slog.Default(),
		clock:        clockwork.NewRealClock(),
		breaker: gobreaker.Settings{
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.Requests >= 5 && float64(c.TotalFailures)/float64(c.Requests) >= 0.6
			},
		},
	}
	for _, opt := range opts {
		opt(&o)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = o.maxRetries
	retryClient.RetryWaitMin = o.retryWaitMin
	retryClient.RetryWaitMax = o.retryWaitMax
	retryClient.Logger = retryablehttp.LeveledLogger(leveledSlog{inner: o.logger.With("component", "admin_lookup")})
	retryClient.CheckRetry = retryPolicy
	if o.transport != nil {
		retryClient.HTTPClient.Transport = o.transport
	}

	client := retryClient.StandardClient()
	client.Timeout = o.timeout

	settings := o.breaker
	settings.Name = "admin_lookup"
	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		o.logger.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
	}

	return &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
		breaker: gobreaker.NewCircuitBreaker(settings),
		metrics: o.metrics,
		clock:   o.clock,
	}
}

// retryPolicy does not retry 429 so the bridge's rate limit is respected.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

func (h *HTTP) IsAdmin(ctx context.Context, chatID int64, userID domain.UserID) (bool, error) {
	start := h.clock.Now()
	res, err := h.breaker.Execute(func() (any, error) {
		status, err := h.fetchStatus(ctx, chatID, userID)
		return status, err
	})
	h.observe(err, h.clock.Since(start))
	if err != nil {
		return false, fmt.Errorf("lookup chat %d member %s: %w", chatID, userID, err)
	}

	status, _ := res.(string)
	return status == StatusCreator || status == StatusAdministrator, nil
}

func (h *HTTP) fetchStatus(ctx context.Context, chatID int64, userID domain.UserID) (string, error) {
	url := h.baseURL + "/chats/" + strconv.FormatInt(chatID, 10) + "/members/" + userID.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", nil
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var body memberResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return "", fmt.Errorf("decode member status: %w", err)
	}
	return strings.ToLower(body.Status), nil
}

func (h *HTTP) observe(err error, elapsed time.Duration) {
	if h.metrics == nil {
		return
	}
	result := "ok"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		result = "rejected"
	case err != nil:
		result = "error"
	}
	h.metrics.Lookups.WithLabelValues(result).Inc()
	h.metrics.LookupLatency.Observe(elapsed.Seconds())
}

// BreakerState exposes the breaker state for readiness reporting.
func (h *HTTP) BreakerState() gobreaker.State {
	return h.breaker.State()
}
