package datasource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opscart/gpu-fleet-sim/pkg/storage"
)

func TestSelect(t *testing.T) {
	srv := fakePrometheus(t, `{"status":"success","data":{"resultType":"vector","result":[]}}`, nil)
	store := storage.NewMemoryStore(10)
	ctx := context.Background()

	src, err := Select(ctx, Config{PrometheusURL: srv.URL}, store, nil)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if _, ok := src.(*PrometheusSource); !ok {
		t.Errorf("Expected Prometheus when reachable, got %T", src)
	}

	// nothing listens on port 1
	src, err = Select(ctx, Config{PrometheusURL: "http://127.0.0.1:1", Timeout: time.Second}, store, nil)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if _, ok := src.(*StoreSource); !ok {
		t.Errorf("Expected store fallback, got %T", src)
	}

	src, err = Select(ctx, Config{}, store, nil)
	if err != nil || src.Name() != "store" {
		t.Errorf("Expected store without Prometheus URL, got %v, %v", src, err)
	}

	if _, err := Select(ctx, Config{}, nil, nil); !errors.Is(err, ErrNoSource) {
		t.Errorf("Expected ErrNoSource, got %v", err)
	}
}
