package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, p *Provider) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	return rr.Body.String()
}

func Test_Provider_CustomRegistry_Smoke(t *testing.T) {
	p := Init(Config{Build: BuildInfo{Version: "test"}})

	p.ObserveRequest("/features/{table}/", http.MethodGet, 200, 12*time.Millisecond)
	p.ObserveRequest("/features/{table}/", http.MethodGet, 404, 3*time.Millisecond)
	p.RowsSkipped("parks", 2)
	p.ObserveImport("ok", 17)
	p.ObserveImport("client_error", 0)

	body := scrape(t, p)
	mustContain := []string{
		`spatial_gateway_request_duration_seconds_bucket`,
		`spatial_gateway_request_duration_seconds_count{method="GET",route="/features/{table}/",status="200"} 1`,
		`spatial_gateway_rows_skipped_total{table="parks"} 2`,
		`spatial_gateway_imports_total{outcome="ok"} 1`,
		`spatial_gateway_imports_total{outcome="client_error"} 1`,
		`spatial_gateway_import_features_total 17`,
	}
	for _, s := range mustContain {
		if !strings.Contains(body, s) {
			t.Fatalf("expected metrics to contain %q;\n---\n%s", s, body)
		}
	}
	if !strings.Contains(body, `version="test"`) {
		t.Fatalf("build info missing version label:\n%s", body)
	}
}
