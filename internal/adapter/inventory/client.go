package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/user/proxyservice/internal/entity"
	"github.com/user/proxyservice/internal/repository"
	"github.com/user/proxyservice/pkg/metrics"
)

const (
	DefaultMaxAttempts = 10
	DefaultRetryDelay  = time.Second
	DefaultTimeout     = 30 * time.Second

	maxResponseBytes = 10 << 20
	statusServerErr  = 500
)

// Config holds the inventory service connection settings.
type Config struct {
	Host     string
	User     string
	Password string

	Retry       bool
	MaxAttempts int
	RetryDelay  time.Duration
	Timeout     time.Duration
}

// Client is an authenticated client for the proxy inventory service.
type Client struct {
	base        *url.URL
	user        string
	password    string
	retry       bool
	maxAttempts int
	retryDelay  time.Duration
	httpClient  *http.Client
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

var _ repository.InventoryRepository = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// proxyListResponse is the body of GET /proxy_list. Pointers distinguish absent fields from zero values.
type proxyListResponse struct {
	ProxyList *[]entity.ProxyRecord `json:"proxy_list"`
	Status    *int                  `json:"status"`
}

// NewClient validates the configuration and builds a Client. Missing host, user or password is fatal.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Host == "" || cfg.User == "" || cfg.Password == "" {
		return nil, fmt.Errorf("inventory client: %w", repository.ErrMissingCredentials)
	}
	base, err := url.Parse(cfg.Host)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("inventory client: invalid host %q", cfg.Host)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{
		base:        base,
		user:        cfg.User,
		password:    cfg.Password,
		retry:       cfg.Retry,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.NewNop()
	}
	return c, nil
}

// TargetExists reports whether GET {host}/targets/{id} answers 200.
func (c *Client) TargetExists(ctx context.Context, targetID string) (bool, error) {
	ref, err := url.Parse("targets/" + url.PathEscape(targetID))
	if err != nil {
		return false, fmt.Errorf("checking target %s: %w", targetID, err)
	}
	u := c.base.ResolveReference(ref)

	start := time.Now()
	resp, err := c.get(ctx, u)
	c.metrics.InventoryRequestDuration.WithLabelValues("targets").Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.InventoryRequestsTotal.WithLabelValues("targets", "error").Inc()
		return false, fmt.Errorf("checking target %s: %w", targetID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	c.metrics.InventoryRequestsTotal.WithLabelValues("targets", "ok").Inc()
	return resp.StatusCode == http.StatusOK, nil
}

// FetchProxies requests a proxy list for a target.
//
// An empty list is requested once more with refresh=1. A status 500 answer while an exclude list was
// sent is requested once more without it. Network and decoding failures repeat the whole exchange
// up to the configured number of attempts with a fixed delay.
func (c *Client) FetchProxies(ctx context.Context, targetID string, filters entity.Filters, excludeIDs []int64) ([]entity.ProxyRecord, error) {
	var records []entity.ProxyRecord

	operation := func() error {
		query := buildQuery(targetID, filters, excludeIDs)

		data, err := c.fetchList(ctx, query, "ok")
		if err != nil {
			return err
		}

		switch {
		case data.ProxyList != nil && len(*data.ProxyList) == 0:
			query.Set("refresh", "1")
			if data, err = c.fetchList(ctx, query, "refresh"); err != nil {
				return err
			}
		case data.Status != nil && *data.Status == statusServerErr && len(excludeIDs) > 0:
			c.logger.Info("proxy service failed to honour blocked list, retrying without it",
				zap.String("target_id", targetID), zap.Int64s("blocked", excludeIDs))
			query.Del("blocked")
			if data, err = c.fetchList(ctx, query, "unblock"); err != nil {
				return err
			}
		}

		records = nil
		if data.ProxyList != nil {
			records = *data.ProxyList
		}
		return nil
	}

	retries := uint64(0)
	if c.retry {
		retries = uint64(c.maxAttempts - 1)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), retries), ctx)

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("proxy service request failed, retrying",
			zap.String("target_id", targetID), zap.Duration("wait", wait), zap.Error(err))
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, fmt.Errorf("fetching proxy list for target %s: %w", targetID, err)
	}
	if records == nil {
		records = []entity.ProxyRecord{}
	}
	return records, nil
}

func (c *Client) fetchList(ctx context.Context, query url.Values, outcome string) (*proxyListResponse, error) {
	u := c.base.ResolveReference(&url.URL{Path: "proxy_list"})
	u.RawQuery = query.Encode()

	c.logger.Debug("proxy service: get list", zap.String("url", u.String()))

	start := time.Now()
	resp, err := c.get(ctx, u)
	c.metrics.InventoryRequestDuration.WithLabelValues("proxy_list").Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.InventoryRequestsTotal.WithLabelValues("proxy_list", "error").Inc()
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.metrics.InventoryRequestsTotal.WithLabelValues("proxy_list", "error").Inc()
		return nil, backoff.Permanent(fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode))
	}

	var data proxyListResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&data); err != nil {
		c.metrics.InventoryRequestsTotal.WithLabelValues("proxy_list", "error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	c.metrics.InventoryRequestsTotal.WithLabelValues("proxy_list", outcome).Inc()
	fields := []zap.Field{zap.Int("http_status", resp.StatusCode)}
	if data.ProxyList != nil {
		fields = append(fields, zap.Int("proxies", len(*data.ProxyList)))
	}
	if data.Status != nil {
		fields = append(fields, zap.Int("status", *data.Status))
	}
	c.logger.Debug("proxy service: data received", fields...)
	return &data, nil
}

func (c *Client) get(ctx context.Context, u *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.SetBasicAuth(c.user, c.password)
	req.Header.Set("Accept", "application/json")
	return c.httpClient.Do(req)
}

// buildQuery renders the filters as proxy_list query parameters, skipping empty values.
func buildQuery(targetID string, f entity.Filters, excludeIDs []int64) url.Values {
	q := url.Values{}
	q.Set("target_id", targetID)
	q.Set("length", strconv.Itoa(f.EffectiveLength()))

	if f.Profile != nil && *f.Profile != 0 {
		q.Set("profile", strconv.Itoa(*f.Profile))
	} else {
		if f.Locations != "" {
			q.Set("locations", f.Locations)
		}
		if f.Types != "" {
			q.Set("types", f.Types)
		}
	}
	if f.IgnoreIPs != "" {
		q.Set("ignore", f.IgnoreIPs)
	}
	if f.Providers != "" {
		q.Set("providers", f.Providers)
	}
	if len(excludeIDs) > 0 {
		ids := make([]string, 0, len(excludeIDs))
		for _, id := range excludeIDs {
			ids = append(ids, strconv.FormatInt(id, 10))
		}
		q.Set("blocked", strings.Join(ids, "|"))
	}
	return q
}
