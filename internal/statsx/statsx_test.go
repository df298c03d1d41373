package statsx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStatusClassBuckets(t *testing.T) {
	cases := map[int]string{
		100: "1xx",
		200: "2xx",
		204: "2xx",
		301: "3xx",
		404: "4xx",
		500: "5xx",
	}
	for status, want := range cases {
		if got := StatusClass(status); got != want {
			t.Errorf("StatusClass(%d) = %q, want %q", status, got, want)
		}
	}
}

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	m := New()
	m.RequestsServed.WithLabelValues("2xx").Inc()
	m.CGIInvocations.Inc()
	m.BytesUploaded.Add(42)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"webs3rv_requests_served_total", "webs3rv_cgi_invocations_total", "webs3rv_bytes_uploaded_total"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %q", want)
		}
	}
}
