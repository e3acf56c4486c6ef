package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("operation", "create_invoice"),
		attribute.String("email", "a@b.mn"),
		attribute.Int("status_code", 200),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "email" {
			t.Fatalf("email must not be used as a label")
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordInvoice(context.Background(), true, nil)
	m.RecordStatusCheck(context.Background(), true, nil)

	var g *GatewayMetrics
	g.Observe(GatewayOpAuth, time.Second, errors.New("boom"))
}

type statusErr int

func (e statusErr) Error() string       { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) UpstreamStatus() int { return int(e) }

func TestClassifyGatewayReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"deadline", context.DeadlineExceeded, GatewayReasonDeadlineExceeded},
		{"wrapped_deadline", fmt.Errorf("check: %w", context.DeadlineExceeded), GatewayReasonDeadlineExceeded},
		{"canceled", context.Canceled, GatewayReasonCanceled},
		{"unauthorized", statusErr(401), GatewayReasonUnauthorized},
		{"client", fmt.Errorf("invoice: %w", statusErr(422)), GatewayReasonClientError},
		{"server", statusErr(503), GatewayReasonServerError},
		{"unknown", errors.New("boom"), GatewayReasonUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyGatewayReason(tc.err); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestGatewayMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewGatewayMetrics(reg, Config{ServiceName: "qpayrelay", Environment: "test"})

	m.Observe(GatewayOpCheckPayment, 20*time.Millisecond, nil)
	m.Observe(GatewayOpCheckPayment, 20*time.Millisecond, statusErr(502))
	m.IncTokenLookup(true)
	m.IncTokenLookup(false)
	m.IncTokenLookup(true)

	if got := testutil.ToFloat64(m.errors.WithLabelValues(GatewayOpCheckPayment, GatewayReasonServerError)); got != 1 {
		t.Fatalf("expected 1 server error, got %v", got)
	}
	if got := testutil.ToFloat64(m.cached.WithLabelValues("hit")); got != 2 {
		t.Fatalf("expected 2 cache hits, got %v", got)
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg, Config{})

	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/api/check-payment/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/check-payment/abc", nil))

	if got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/api/check-payment/:id", "200")); got != 1 {
		t.Fatalf("expected 1 request, got %v", got)
	}
}
