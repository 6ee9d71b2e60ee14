// Command gatekeepd serves password login and bearer token authentication
// over HTTP.
//
// Routes:
//
//	POST /auth/login    exchange {"identifier","password"} for a token
//	POST /auth/logout   revoke the presented token
//	GET  /me            any authenticated principal
//	GET  /admin         admin tokens only
//	GET  /healthz       liveness
//	GET  /readyz        readiness
//	GET  /metrics       Prometheus metrics, when that exporter is configured
//
// Without --config the signing secret is read from GATEKEEP_SIGNING_SECRET.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/gatekeep/auth"
	"github.com/jonwraymond/gatekeep/cache"
	"github.com/jonwraymond/gatekeep/config"
	"github.com/jonwraymond/gatekeep/health"
	"github.com/jonwraymond/gatekeep/observe"
	"github.com/jonwraymond/gatekeep/password"
	"github.com/jonwraymond/gatekeep/resilience"
	"github.com/jonwraymond/gatekeep/secret"
	"github.com/jonwraymond/gatekeep/token"
)

const defaultSecretRef = "secretref:env:GATEKEEP_SIGNING_SECRET"

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "gatekeepd: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath string
		listen     string
		seeds      []string
	)
	flags := pflag.NewFlagSet("gatekeepd", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", "", "path to YAML configuration")
	flags.StringVar(&listen, "listen", "", "listen address (overrides config)")
	flags.StringArrayVar(&seeds, "seed-user", nil, "seed an in-memory user as id:password:role (repeatable)")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Listen = listen
	}

	d, err := newDaemon(ctx, cfg, seeds)
	cfg.Wipe()
	if err != nil {
		return err
	}
	defer d.close()

	return d.serve(ctx)
}

func loadConfig(ctx context.Context, path string) (config.Config, error) {
	resolver, err := secret.NewDefaultRegistry().Resolver(true, nil)
	if err != nil {
		return config.Config{}, err
	}
	defer resolver.Close()

	if path != "" {
		return config.Load(ctx, path, resolver)
	}

	cfg := config.Default()
	cfg.Token.Secret = defaultSecretRef
	if err := cfg.Resolve(ctx, resolver); err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		cfg.Wipe()
		return config.Config{}, err
	}
	return cfg, nil
}

// daemon owns every long-lived component.
type daemon struct {
	listen   string
	observer observe.Observer
	store    *cache.MemoryCache
	tokens   *token.Service
	handler  http.Handler
}

func newDaemon(ctx context.Context, cfg config.Config, seeds []string) (_ *daemon, err error) {
	d := &daemon{listen: cfg.Listen}
	defer func() {
		if err != nil {
			d.close()
		}
	}()

	d.observer, err = observe.NewObserver(ctx, cfg.Observe)
	if err != nil {
		return nil, fmt.Errorf("observe: %w", err)
	}
	logger := d.observer.Logger()

	d.store = cache.NewMemoryCache(cfg.CachePolicy())

	d.tokens, err = token.NewService(cfg.TokenServiceConfig(), d.store, token.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	limiter, err := resilience.NewRateLimiter(cfg.RateLimiterConfig(), d.store)
	if err != nil {
		return nil, err
	}

	hasher := password.NewBcryptHasher(cfg.Password.Cost)
	users := auth.NewMemoryUserStore()
	if err := seedUsers(users, hasher, seeds); err != nil {
		return nil, err
	}

	hashing := resilience.NewBulkhead(cfg.BulkheadConfig())
	svc, err := auth.NewService(cfg.ServiceConfig(), users, hasher, d.tokens, limiter,
		auth.WithObserver(d.observer),
		auth.WithHashingBulkhead(hashing),
	)
	if err != nil {
		return nil, err
	}

	agg := health.NewAggregator(health.AggregatorConfig{Timeout: 2 * time.Second})
	agg.Register("cache", health.NewCacheChecker(d.store))
	agg.Register("hashing", health.NewBulkheadChecker(hashing))
	agg.Register("memory", health.NewMemoryChecker(0))

	mux := http.NewServeMux()
	routes(mux, svc)
	health.RegisterHandlers(mux, agg)
	if cfg.Observe.Metrics.Enabled && cfg.Observe.Metrics.Exporter == "prometheus" {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
	d.handler = mux

	logger.Info(ctx, "gatekeepd configured",
		observe.Field{Key: "listen", Value: cfg.Listen},
		observe.Field{Key: "users", Value: len(seeds)},
		observe.Field{Key: "token_lifetime", Value: cfg.Token.Lifetime.String()},
		observe.Field{Key: "rate_limit", Value: cfg.RateLimit.MaxRequests},
	)
	return d, nil
}

func routes(mux *http.ServeMux, svc *auth.Service) {
	authn := auth.Middleware(svc)

	mux.Handle("/auth/login", auth.LoginHandler(svc))
	mux.Handle("/auth/register", auth.RegisterHandler(svc))
	mux.Handle("/auth/logout", authn(auth.LogoutHandler(svc)))
	mux.Handle("/profile/update-password", authn(auth.ChangePasswordHandler(svc)))
	mux.Handle("GET /me", authn(http.HandlerFunc(me)))
	mux.Handle("GET /admin", authn(auth.RequireRole(token.RoleAdmin)(http.HandlerFunc(admin))))
}

func me(w http.ResponseWriter, r *http.Request) {
	c := auth.ClaimsFromContext(r.Context())
	auth.WriteJSON(w, http.StatusOK, auth.Envelope{
		Data: map[string]any{
			"subject":    c.Subject,
			"role":       c.Role,
			"expires_at": c.ExpiresAt.UTC(),
		},
	})
}

func admin(w http.ResponseWriter, r *http.Request) {
	auth.WriteJSON(w, http.StatusOK, auth.Envelope{
		Data:    map[string]string{"subject": auth.SubjectFromContext(r.Context())},
		Message: "Welcome, admin",
	})
}

func (d *daemon) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              d.listen,
		Handler:           d.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       time.Minute,
	}
	logger := d.observer.Logger()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info(ctx, "listening", observe.Field{Key: "addr", Value: d.listen})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info(shutdownCtx, "shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (d *daemon) close() {
	if d.tokens != nil {
		_ = d.tokens.Close()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
	if d.observer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = d.observer.Shutdown(ctx)
	}
}
