package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
	Namespace        string
}

// Metrics exposes the payment domain instruments.
type Metrics struct {
	gatewayRequests metric.Int64Counter
	tokenRefreshes  metric.Int64Counter
	invoices        metric.Int64Counter
	statusChecks    metric.Int64Counter
	callbacks       metric.Int64Counter
	promoFailures   metric.Int64Counter
	emails          metric.Int64Counter
	rateLimited     metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New creates the domain instruments on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "qpayrelay"
	}
	prefix := namespace(cfg)
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.gatewayRequests, "gateway_requests_total", "Outbound payment gateway calls by operation and status."},
		{&m.tokenRefreshes, "gateway_token_refreshes_total", "Gateway bearer token refreshes by outcome."},
		{&m.invoices, "invoices_created_total", "Invoice creation attempts by outcome."},
		{&m.statusChecks, "payment_status_checks_total", "Payment status checks by outcome and cache hit."},
		{&m.callbacks, "payment_callbacks_total", "Gateway payment callbacks by outcome."},
		{&m.promoFailures, "promo_lookup_failures_total", "Promo code lookups that failed open."},
		{&m.emails, "emails_sent_total", "Outbound emails by kind and outcome."},
		{&m.rateLimited, "rate_limited_total", "Requests rejected by the rate limiter."},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(prefix+"_"+c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}
	return m, nil
}

// NewNoop returns instruments backed by the noop provider, for tests and tools.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

func namespace(cfg Config) string {
	if ns := strings.TrimSpace(cfg.Namespace); ns != "" {
		return ns
	}
	return "qpayrelay"
}

func (m *Metrics) RecordGatewayRequest(ctx context.Context, operation string, statusCode int) {
	if m == nil {
		return
	}
	m.gatewayRequests.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("operation", operation),
		attribute.Int("status_code", statusCode),
	)...))
}

func (m *Metrics) RecordTokenRefresh(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.tokenRefreshes.Add(ctx, 1, metric.WithAttributes(outcome(err)))
}

func (m *Metrics) RecordInvoice(ctx context.Context, promoApplied bool, err error) {
	if m == nil {
		return
	}
	m.invoices.Add(ctx, 1, metric.WithAttributes(
		outcome(err),
		attribute.Bool("promo_applied", promoApplied),
	))
}

// RecordStatusCheck counts a status check; cacheHit marks checks answered without the gateway.
func (m *Metrics) RecordStatusCheck(ctx context.Context, cacheHit bool, err error) {
	if m == nil {
		return
	}
	m.statusChecks.Add(ctx, 1, metric.WithAttributes(
		outcome(err),
		attribute.Bool("cache_hit", cacheHit),
	))
}

func (m *Metrics) RecordCallback(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.callbacks.Add(ctx, 1, metric.WithAttributes(outcome(err)))
}

func (m *Metrics) RecordPromoLookupFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.promoFailures.Add(ctx, 1)
}

func (m *Metrics) RecordEmail(ctx context.Context, kind string, err error) {
	if m == nil {
		return
	}
	m.emails.Add(ctx, 1, metric.WithAttributes(append(
		FilterAttributes(attribute.String("kind", strings.TrimSpace(kind))),
		outcome(err),
	)...))
}

func (m *Metrics) RecordRateLimited(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.rateLimited.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
	)...))
}

func outcome(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("outcome", "error")
	}
	return attribute.String("outcome", "success")
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"operation":   {},
	"status_code": {},
	"endpoint":    {},
	"kind":        {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
