package binder

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/user/proxyservice/internal/entity"
	"github.com/user/proxyservice/internal/proxy"
	"github.com/user/proxyservice/internal/usecase"
	"github.com/user/proxyservice/pkg/metrics"
	"github.com/user/proxyservice/pkg/utils"
)

const defaultReportTimeout = 30 * time.Second

// ProxySource is the part of proxy.Manager the binder depends on.
type ProxySource interface {
	Uses(unitName string) bool
	ProxyFor(ctx context.Context, unit entity.Unit) (entity.ProxyRecord, error)
	ReportBlocked(ctx context.Context, targetID string, proxyID int64) error
}

// BindOutcome is the result of Bind.
type BindOutcome int

const (
	// Bound means the request now carries a proxy binding.
	Bound BindOutcome = iota
	// Unavailable means no proxy could be selected; the request goes out directly.
	Unavailable
	// Skipped means the request is not subject to proxying.
	Skipped
)

func (o BindOutcome) String() string {
	switch o {
	case Bound:
		return "bound"
	case Unavailable:
		return "unavailable"
	default:
		return "skipped"
	}
}

// Verdict is the result of Evaluate.
type Verdict int

const (
	OK Verdict = iota
	Blocked
)

func (v Verdict) String() string {
	if v == Blocked {
		return "blocked"
	}
	return "ok"
}

// Binder attaches proxies to outbound requests and turns blocked responses into pool reloads.
type Binder struct {
	source          ProxySource
	blockedStatuses entity.ResponsePredicate
	isBlockingError func(error) bool
	feedback        usecase.FeedbackRecorder
	reportTimeout   time.Duration
	logger          *zap.Logger
	metrics         *metrics.Metrics
}

type Option func(*Binder)

// WithBlockedStatuses replaces DefaultBlockedStatuses.
func WithBlockedStatuses(codes ...int) Option {
	return func(b *Binder) { b.blockedStatuses = StatusIn(codes...) }
}

// WithErrorClassifier replaces IsBlockingError.
func WithErrorClassifier(fn func(error) bool) Option {
	return func(b *Binder) { b.isBlockingError = fn }
}

func WithFeedback(f usecase.FeedbackRecorder) Option {
	return func(b *Binder) { b.feedback = f }
}

// WithReportTimeout bounds the pool reload triggered by a blocked proxy.
func WithReportTimeout(d time.Duration) Option {
	return func(b *Binder) { b.reportTimeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(b *Binder) { b.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Binder) { b.metrics = m }
}

func New(source ProxySource, opts ...Option) *Binder {
	b := &Binder{
		source:          source,
		blockedStatuses: StatusIn(DefaultBlockedStatuses...),
		isBlockingError: IsBlockingError,
		reportTimeout:   defaultReportTimeout,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics == nil {
		b.metrics = metrics.NewNop()
	}
	return b
}

// Bind selects a proxy for req on behalf of unit.
// The returned request is a clone carrying the Binding in its context; req itself is never modified.
func (b *Binder) Bind(req *http.Request, unit entity.Unit) (*http.Request, BindOutcome) {
	ctx := req.Context()
	if ProxyDisabled(ctx) || !b.source.Uses(unit.Name) {
		b.metrics.BindingsTotal.WithLabelValues(Skipped.String()).Inc()
		return req, Skipped
	}
	return b.bind(req, unit)
}

func (b *Binder) bind(req *http.Request, unit entity.Unit) (*http.Request, BindOutcome) {
	ctx := req.Context()

	rec, err := b.source.ProxyFor(ctx, unit)
	if err != nil {
		log := b.logger.Warn
		if !errors.Is(err, proxy.ErrNoProxyAvailable) {
			log = b.logger.Error
		}
		log("Next proxy not found, sending request directly",
			zap.String("unit", unit.Name),
			zap.String("target", unit.TargetID),
			zap.String("url", utils.RedactURL(req.URL.String())),
			zap.Error(err),
		)
		b.metrics.BindingsTotal.WithLabelValues(Unavailable.String()).Inc()
		return unbind(req), Unavailable
	}

	user, password, proxyURL, err := utils.ExtractAuth(rec.URL)
	if err != nil {
		b.logger.Error("Inventory returned an unusable proxy url",
			zap.String("target", unit.TargetID),
			zap.Int64("proxy_id", rec.ID),
			zap.Error(err),
		)
		b.metrics.BindingsTotal.WithLabelValues(Unavailable.String()).Inc()
		return unbind(req), Unavailable
	}

	binding := Binding{ProxyID: rec.ID, ProxyURL: proxyURL}
	if user != "" {
		binding.Authorization = utils.BasicAuth(user, password)
	}

	out := req.Clone(withBinding(ctx, binding))
	out.Header.Del("Proxy-Authorization")
	if binding.Authorization != "" {
		out.Header.Set("Proxy-Authorization", binding.Authorization)
	}

	b.logger.Debug("Processing request using proxy",
		zap.String("url", utils.RedactURL(req.URL.String())),
		zap.String("proxy", proxyURL.String()),
		zap.Int64("proxy_id", rec.ID),
	)
	b.metrics.BindingsTotal.WithLabelValues(Bound.String()).Inc()
	return out, Bound
}

// unbind drops a stale binding left by an earlier attempt.
func unbind(req *http.Request) *http.Request {
	if _, ok := BindingFrom(req.Context()); !ok {
		return req
	}
	out := req.Clone(context.WithValue(req.Context(), bindingKey{}, nil))
	out.Header.Del("Proxy-Authorization")
	return out
}

// Evaluate classifies the outcome of a request sent through Bind. Exactly one of resp and err is set.
// Requests without a binding are always OK.
//
// A blocked proxy is reported to the pool manager, which reloads the target's pool without it.
// After a transport failure the request is also re-bound to a fresh proxy and returned for a retry;
// otherwise req is returned as is.
func (b *Binder) Evaluate(req *http.Request, resp *http.Response, err error, unit entity.Unit) (Verdict, *http.Request) {
	binding, ok := BindingFrom(req.Context())
	if !ok || !b.source.Uses(unit.Name) {
		return OK, req
	}

	var reason entity.BlockReason
	switch {
	case err != nil:
		if !b.isBlockingError(err) {
			return OK, req
		}
		reason = entity.BlockReasonTransport
	case resp != nil:
		var blocked bool
		if reason, blocked = b.classifyResponse(resp, unit); !blocked {
			return OK, req
		}
	default:
		return OK, req
	}

	b.reportBlocked(req.Context(), unit, binding, reason, resp, err)

	if err == nil {
		return Blocked, req
	}
	rebound, _ := b.bind(req, unit)
	return Blocked, rebound
}

// IsBlockedResponse reports whether resp shows the proxy that served it was blocked.
func (b *Binder) IsBlockedResponse(resp *http.Response, unit entity.Unit) bool {
	_, blocked := b.classifyResponse(resp, unit)
	return blocked
}

// classifyResponse checks the blocked statuses first; the unit's own check only runs for other statuses.
func (b *Binder) classifyResponse(resp *http.Response, unit entity.Unit) (entity.BlockReason, bool) {
	if b.blockedStatuses(resp) {
		return entity.BlockReasonStatus, true
	}
	if unit.CheckResponse != nil && unit.CheckResponse(resp) {
		return entity.BlockReasonPredicate, true
	}
	return "", false
}

func (b *Binder) reportBlocked(ctx context.Context, unit entity.Unit, binding Binding, reason entity.BlockReason, resp *http.Response, reqErr error) {
	b.metrics.BlockedTotal.WithLabelValues(unit.TargetID, string(reason)).Inc()

	event := entity.NewBlockEvent(unit.TargetID, binding.ProxyID, reason)
	if resp != nil {
		event.StatusCode = resp.StatusCode
	}
	if reqErr != nil {
		event.Error = reqErr.Error()
	}

	b.logger.Info("Proxy blocked",
		zap.String("target", unit.TargetID),
		zap.Int64("proxy_id", binding.ProxyID),
		zap.String("reason", string(reason)),
		zap.Int("status", event.StatusCode),
	)

	// the request context is often already done after a timeout
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.reportTimeout)
	defer cancel()

	if err := b.source.ReportBlocked(ctx, unit.TargetID, binding.ProxyID); err != nil {
		b.logger.Error("Failed to reload pool after block",
			zap.String("target", unit.TargetID),
			zap.Int64("proxy_id", binding.ProxyID),
			zap.Error(err),
		)
	}
	if b.feedback != nil {
		b.feedback.Record(ctx, event)
	}
}
