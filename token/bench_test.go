package token

import (
	"context"
	"testing"

	"github.com/jonwraymond/gatekeep/cache"
)

func benchService(b *testing.B) *Service {
	b.Helper()
	store := cache.NewMemoryCache(cache.Policy{})
	b.Cleanup(func() { _ = store.Close() })
	svc, err := NewService(Config{Secret: testSecret}, store)
	if err != nil {
		b.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func BenchmarkService_Issue(b *testing.B) {
	svc := benchService(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = svc.Issue("alice", RoleUser)
	}
}

func BenchmarkService_Verify(b *testing.B) {
	svc := benchService(b)
	tok, err := svc.Issue("alice", RoleUser)
	if err != nil {
		b.Fatalf("Issue() error = %v", err)
	}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = svc.Verify(ctx, tok)
	}
}

func BenchmarkService_VerifyParallel(b *testing.B) {
	svc := benchService(b)
	tok, err := svc.Issue("alice", RoleUser)
	if err != nil {
		b.Fatalf("Issue() error = %v", err)
	}
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = svc.Verify(ctx, tok)
		}
	})
}
