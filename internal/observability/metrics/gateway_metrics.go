package metrics

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	GatewayReasonDeadlineExceeded = "deadline_exceeded"
	GatewayReasonCanceled         = "canceled"
	GatewayReasonNetwork          = "network"
	GatewayReasonUnauthorized     = "unauthorized"
	GatewayReasonClientError      = "upstream_4xx"
	GatewayReasonServerError      = "upstream_5xx"
	GatewayReasonDecode           = "decode"
	GatewayReasonUnknown          = "unknown"
)

const (
	GatewayOpAuth          = "auth_token"
	GatewayOpCreateInvoice = "create_invoice"
	GatewayOpGetPayment    = "get_payment"
	GatewayOpCheckPayment  = "check_payment"
	GatewayOpSendEmail     = "send_email"
	GatewayOpVerifyCaptcha = "verify_captcha"
)

// upstreamStatus is implemented by errors that carry an upstream HTTP status.
type upstreamStatus interface {
	UpstreamStatus() int
}

// decodeFailure is implemented by errors raised while parsing an upstream body.
type decodeFailure interface {
	DecodeFailure() bool
}

// GatewayMetrics records latency and failures of outbound calls to the payment gateway and
// the email and captcha providers.
type GatewayMetrics struct {
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
	cached   *prometheus.CounterVec
}

func NewGatewayMetrics(registerer prometheus.Registerer, cfg Config) *GatewayMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := constLabels(cfg)
	ns := namespace(cfg)

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   ns,
		Name:        "upstream_request_duration_seconds",
		Help:        "Outbound upstream call latency by operation.",
		Buckets:     []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	}, []string{"operation"})
	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   ns,
		Name:        "upstream_request_errors_total",
		Help:        "Outbound upstream call failures by operation and reason.",
		ConstLabels: constLabels,
	}, []string{"operation", "reason"})
	cached := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   ns,
		Name:        "gateway_token_lookups_total",
		Help:        "Bearer token lookups served from cache or refreshed.",
		ConstLabels: constLabels,
	}, []string{"result"})

	registerer.MustRegister(duration, errs, cached)

	return &GatewayMetrics{duration: duration, errors: errs, cached: cached}
}

// Observe records one call. err may be nil.
func (m *GatewayMetrics) Observe(operation string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
	if err != nil {
		m.errors.WithLabelValues(operation, ClassifyGatewayReason(err)).Inc()
	}
}

// IncTokenLookup records whether a token request was served from cache.
func (m *GatewayMetrics) IncTokenLookup(hit bool) {
	if m == nil {
		return
	}
	result := "refresh"
	if hit {
		result = "hit"
	}
	m.cached.WithLabelValues(result).Inc()
}

// ClassifyGatewayReason maps an upstream failure to a low-cardinality reason label.
func ClassifyGatewayReason(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return GatewayReasonDeadlineExceeded
	}
	if errors.Is(err, context.Canceled) {
		return GatewayReasonCanceled
	}

	var status upstreamStatus
	if errors.As(err, &status) {
		code := status.UpstreamStatus()
		switch {
		case code == 401 || code == 403:
			return GatewayReasonUnauthorized
		case code >= 500:
			return GatewayReasonServerError
		case code >= 400:
			return GatewayReasonClientError
		}
	}

	var decode decodeFailure
	if errors.As(err, &decode) && decode.DecodeFailure() {
		return GatewayReasonDecode
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return GatewayReasonDeadlineExceeded
		}
		return GatewayReasonNetwork
	}
	return GatewayReasonUnknown
}

func constLabels(cfg Config) prometheus.Labels {
	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = "qpayrelay"
	}
	env := strings.TrimSpace(cfg.Environment)
	if env == "" {
		env = "unknown"
	}
	return prometheus.Labels{"service": service, "env": env}
}
