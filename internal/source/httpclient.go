package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/contest-tracker/contest-aggregator-go/internal/config"
	"github.com/contest-tracker/contest-aggregator-go/internal/db/models"
	"github.com/contest-tracker/contest-aggregator-go/internal/metrics"
)

const (
	defaultTimeout = 20 * time.Second
	maxBodyBytes   = 8 << 20
	userAgent      = "contest-aggregator/1.0"
)

var errRetryable = errors.New("retryable upstream failure")

// HTTP is the JSON transport shared by the platform clients. Transport
// errors, 429 and 5xx responses are retried with linear backoff.
type HTTP struct {
	client   *http.Client
	platform models.Platform
	retries  int
	backoff  time.Duration
	logger   *zap.Logger
}

// NewHTTP builds the transport for one platform, honouring the configured
// timeout and proxy.
func NewHTTP(platform models.Platform, cfg config.SourceConfig, logger *zap.Logger) *HTTP {
	transport := &http.Transport{
		MaxIdleConns:        100,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			logger.Warn("Invalid proxy address, continuing without proxy",
				zap.String("platform", string(platform)),
				zap.String("proxy", cfg.Proxy),
				zap.Error(err),
			)
		} else {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}

	return &HTTP{
		client:   &http.Client{Timeout: timeout, Transport: transport},
		platform: platform,
		retries:  retries,
		backoff:  time.Second,
		logger:   logger,
	}
}

// GetJSON issues a GET and decodes the JSON body into target.
func (h *HTTP) GetJSON(ctx context.Context, op, rawURL string, target any) error {
	return h.do(ctx, op, http.MethodGet, rawURL, nil, target)
}

// PostJSON encodes body as JSON, POSTs it and decodes the response into target.
func (h *HTTP) PostJSON(ctx context.Context, op, rawURL string, body, target any) error {
	payload, err := sonic.Marshal(body)
	if err != nil {
		return h.fail(op, 0, fmt.Errorf("encode request: %w", err))
	}
	return h.do(ctx, op, http.MethodPost, rawURL, payload, target)
}

func (h *HTTP) do(ctx context.Context, op, method, rawURL string, payload []byte, target any) error {
	defer metrics.ObserveSince(metrics.UpstreamDuration.WithLabelValues(string(h.platform)), time.Now())

	var (
		lastErr    error
		lastStatus int
	)

	for attempt := 0; attempt <= h.retries; attempt++ {
		raw, status, err := h.roundTrip(ctx, method, rawURL, payload)
		if err == nil {
			if err := sonic.Unmarshal(raw, target); err != nil {
				metrics.UpstreamRequests.WithLabelValues(string(h.platform), "decode_error").Inc()
				return h.fail(op, status, fmt.Errorf("decode response: %w", err))
			}
			metrics.UpstreamRequests.WithLabelValues(string(h.platform), "ok").Inc()
			return nil
		}

		lastErr, lastStatus = err, status
		if !errors.Is(err, errRetryable) || attempt == h.retries {
			break
		}

		h.logger.Debug("Retrying upstream request",
			zap.String("platform", string(h.platform)),
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		timer := time.NewTimer(time.Duration(attempt+1) * h.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			metrics.UpstreamRequests.WithLabelValues(string(h.platform), "error").Inc()
			return h.fail(op, lastStatus, ctx.Err())
		case <-timer.C:
		}
	}

	metrics.UpstreamRequests.WithLabelValues(string(h.platform), "error").Inc()
	return h.fail(op, lastStatus, lastErr)
}

func (h *HTTP) roundTrip(ctx context.Context, method, rawURL string, payload []byte) ([]byte, int, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, fmt.Errorf("%w: send request: %v", errRetryable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read body: %v", errRetryable, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return raw, resp.StatusCode, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, resp.StatusCode, fmt.Errorf("%w: body=%s", errRetryable, abbreviate(raw))
	default:
		return nil, resp.StatusCode, fmt.Errorf("unexpected response: body=%s", abbreviate(raw))
	}
}

func (h *HTTP) fail(op string, status int, err error) error {
	return &UpstreamFetchError{Platform: h.platform, Op: op, StatusCode: status, Err: err}
}

func abbreviate(raw []byte) string {
	const max = 256
	if len(raw) <= max {
		return string(raw)
	}
	return string(raw[:max]) + "..."
}
