package datasource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/opscart/gpu-fleet-sim/pkg/analyzer"
)

const matrixResponse = `{
	"status": "success",
	"data": {
		"resultType": "matrix",
		"result": [{
			"metric": {},
			"values": [[1772366400, "2.5"], [1772366410, "2.6"], [1772366420, "2.75"]]
		}]
	}
}`

func fakePrometheus(t *testing.T, body string, queries *[]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if queries != nil {
			*queries = append(*queries, r.URL.Path+"?"+r.Form.Get("query"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPrometheusSeries(t *testing.T) {
	var queries []string
	srv := fakePrometheus(t, matrixResponse, &queries)

	src, err := NewPrometheusSource(srv.URL, 0, nil)
	if err != nil {
		t.Fatalf("NewPrometheusSource failed: %v", err)
	}

	series, err := src.Series(context.Background(), analyzer.SeriesPowerDraw, time.Hour)
	if err != nil {
		t.Fatalf("Series failed: %v", err)
	}

	if len(queries) != 1 || !strings.HasSuffix(queries[0], "avg(fleet_power_draw_mw)") {
		t.Errorf("Unexpected queries: %v", queries)
	}
	if !strings.HasPrefix(queries[0], "/api/v1/query_range") {
		t.Errorf("Expected a range query, got %s", queries[0])
	}
	if series.Unit != "MW" || len(series.Samples) != 3 {
		t.Fatalf("Unexpected series: %+v", series)
	}
	if series.Samples[2].Value != 2.75 {
		t.Errorf("Expected last value 2.75, got %v", series.Samples[2].Value)
	}
	if !series.Samples[0].Timestamp.Equal(time.Unix(1772366400, 0)) {
		t.Errorf("Unexpected first timestamp %v", series.Samples[0].Timestamp)
	}
}

func TestPrometheusSeriesUnknown(t *testing.T) {
	src, err := NewPrometheusSource("http://localhost:9090", 0, nil)
	if err != nil {
		t.Fatalf("NewPrometheusSource failed: %v", err)
	}
	if _, err := src.Series(context.Background(), "fan_rpm", time.Hour); err == nil {
		t.Error("Expected error for unknown series")
	}
}

func TestPrometheusQueryRangeEmpty(t *testing.T) {
	srv := fakePrometheus(t, `{"status":"success","data":{"resultType":"matrix","result":[]}}`, nil)

	src, err := NewPrometheusSource(srv.URL, time.Minute, nil)
	if err != nil {
		t.Fatalf("NewPrometheusSource failed: %v", err)
	}

	end := time.Now()
	if _, err := src.QueryRange(context.Background(), "fleet_power_draw_mw", end.Add(-time.Hour), end); err == nil {
		t.Error("Expected error for empty result")
	}
}

func TestPrometheusIsAvailable(t *testing.T) {
	srv := fakePrometheus(t, `{"status":"success","data":{"resultType":"vector","result":[]}}`, nil)

	src, err := NewPrometheusSource(srv.URL, 0, nil)
	if err != nil {
		t.Fatalf("NewPrometheusSource failed: %v", err)
	}
	if !src.IsAvailable(context.Background()) {
		t.Error("Expected Prometheus to be available")
	}
}
