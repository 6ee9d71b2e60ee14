package cache_test

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/gatekeep/cache"
)

func ExampleNewMemoryCache() {
	c := cache.NewMemoryCache(cache.DefaultPolicy())
	defer c.Close()

	ctx := context.Background()

	// Store a value
	_ = c.Set(ctx, "my-key", []byte("hello"), 5*time.Minute)

	// Retrieve the value
	value, ok, _ := c.Get(ctx, "my-key")
	if ok {
		fmt.Println("Value:", string(value))
	}
	// Output:
	// Value: hello
}

func ExampleMemoryCache_Increment() {
	c := cache.NewMemoryCache(cache.DefaultPolicy())
	defer c.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		n, _, _ := c.Increment(ctx, cache.Key("rl:", "203.0.113.7"), time.Minute)
		fmt.Println("count:", n)
	}
	// Output:
	// count: 1
	// count: 2
	// count: 3
}

func ExampleMemoryCache_Set_zeroTTL() {
	c := cache.NewMemoryCache(cache.DefaultPolicy())
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "gone", []byte("data"), 0)
	_, ok, _ := c.Get(ctx, "gone")
	fmt.Println("found:", ok)
	// Output:
	// found: false
}

func ExampleKey() {
	fmt.Println(cache.Key("revoked:", "token-123"))
	// Output:
	// revoked:token-123
}
