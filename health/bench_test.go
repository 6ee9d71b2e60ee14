package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/jonwraymond/gatekeep/cache"
)

func BenchmarkAggregator_CheckAll(b *testing.B) {
	agg := NewAggregator()
	for i := range 8 {
		agg.Register("c"+strconv.Itoa(i), fixed(StatusHealthy))
	}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = agg.CheckAll(ctx)
	}
}

func BenchmarkCacheChecker_Check(b *testing.B) {
	store := cache.NewMemoryCache(cache.DefaultPolicy())
	defer store.Close()
	checker := NewCacheChecker(store)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = checker.Check(ctx)
	}
}

func BenchmarkReadinessHandler(b *testing.B) {
	agg := NewAggregator()
	agg.Register("cache", fixed(StatusHealthy))
	agg.Register("hashing", fixed(StatusHealthy))
	handler := ReadinessHandler(agg)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	}
}
