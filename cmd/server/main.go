package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stripe/stripe-go/v82"

	"github.com/maxfitai/billing/handler"
	"github.com/maxfitai/billing/migrations"
	billingmod "github.com/maxfitai/billing/modules/billing"
	"github.com/maxfitai/billing/pkg/billing"
	"github.com/maxfitai/billing/pkg/billing/pgstore"
	"github.com/maxfitai/billing/pkg/clientip"
	"github.com/maxfitai/billing/pkg/config"
	"github.com/maxfitai/billing/pkg/environment"
	"github.com/maxfitai/billing/pkg/httpserver"
	"github.com/maxfitai/billing/pkg/jwt"
	"github.com/maxfitai/billing/pkg/locker"
	"github.com/maxfitai/billing/pkg/logger"
	"github.com/maxfitai/billing/pkg/paypal"
	"github.com/maxfitai/billing/pkg/pg"
	"github.com/maxfitai/billing/pkg/ratelimiter"
	"github.com/maxfitai/billing/pkg/redis"
	"github.com/maxfitai/billing/pkg/requestid"
)

type appConfig struct {
	Env           string        `env:"APP_ENV" envDefault:"development"`
	ServiceName   string        `env:"SERVICE_NAME" envDefault:"maxfit-billing"`
	InMemoryStore bool          `env:"BILLING_IN_MEMORY_STORE" envDefault:"false"`
	ReadyTimeout  time.Duration `env:"HEALTH_READY_TIMEOUT" envDefault:"2s"`
	IPHeaders     []string      `env:"HTTP_CLIENT_IP_HEADERS" envSeparator:"," envDefault:"CF-Connecting-IP,X-Forwarded-For,X-Real-IP"`
}

func main() {
	if err := run(); err != nil {
		slog.Error("billing service stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run() error {
	var (
		appCfg    appConfig
		logCfg    logger.Config
		httpCfg   httpserver.Config
		redisCfg  redis.Config
		jwtCfg    jwt.Config
		limitCfg  ratelimiter.Config
		paypalCfg paypal.Config
		billCfg   billing.Config
	)
	for _, c := range []func() error{
		func() error { return config.Load(&appCfg) },
		func() error { return config.Load(&logCfg) },
		func() error { return config.Load(&httpCfg) },
		func() error { return config.Load(&redisCfg) },
		func() error { return config.Load(&jwtCfg) },
		func() error { return config.Load(&limitCfg) },
		func() error { return config.Load(&paypalCfg) },
		func() error { return config.Load(&billCfg) },
	} {
		if err := c(); err != nil {
			return err
		}
	}

	env := environment.Parse(appCfg.Env)
	log := logger.New(
		logger.WithEnvironment(env, appCfg.ServiceName),
		logger.FromConfig(logCfg),
		logger.WithContextExtractors(
			requestid.LoggerExtractor(),
			clientip.LoggerExtractor(),
			jwt.LoggerExtractor(),
			environment.LoggerExtractor(),
		),
	)
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]httpserver.Check{}

	store, closeStore, err := openStore(ctx, appCfg, log, checks)
	if err != nil {
		return err
	}
	defer closeStore()

	lock := locker.Locker(locker.NewMemory())
	limitStore := ratelimiter.Store(ratelimiter.NewMemoryStore())
	if redisCfg.Enabled() {
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return err
		}
		defer client.Close()
		lock = locker.NewRedis(client, locker.WithTTL(billCfg.LockTTL), locker.WithPrefix("billing:lock:"))
		limitStore = ratelimiter.NewRedisStore(client, ratelimiter.WithKeyPrefix("billing:ratelimit:"))
		checks["redis"] = redis.Healthcheck(client)
	}
	limiter, err := ratelimiter.NewBucket(limitStore, limitCfg)
	if err != nil {
		return err
	}

	catalog, err := billing.NewCatalogFromConfig(billCfg.Catalog)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observer, err := billing.NewPrometheusObserver(reg)
	if err != nil {
		return err
	}

	svc := billing.NewService(store, catalog,
		billing.WithStripe(newStripeProvider(billCfg, catalog)),
		billing.WithPayPal(newPayPalProvider(paypalCfg, billCfg, catalog, log)),
		billing.WithLogger(log),
		billing.WithObserver(observer),
		billing.WithReconcilerOptions(billing.WithLocker(lock)),
	)

	auth, err := jwt.New(jwtCfg)
	if err != nil {
		return err
	}

	opts := []billingmod.Option{
		billingmod.WithLogger(log),
		billingmod.WithMaxWebhookBytes(billCfg.MaxWebhookBytes),
		billingmod.WithRateLimiter(limiter),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(clientip.Middleware(appCfg.IPHeaders...))
	r.Use(environment.Middleware(env))
	r.Get("/health/live", httpserver.Liveness())
	r.Get("/health/ready", httpserver.Readiness(log, appCfg.ReadyTimeout, checks))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Mount("/", billingmod.Router(
		billingmod.NewWebhookHandler(svc, opts...),
		billingmod.NewAPIHandler(svc, opts...),
		auth,
		jwt.WithExtractors(jwt.BearerTokenExtractor, jwt.CookieTokenExtractor(jwtCfg.Cookie)),
		jwt.WithErrorHandler(unauthorized),
	))

	srv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))
	return srv.Run(ctx, r)
}

// openStore connects to Postgres and applies migrations, or returns the
// in-memory store when BILLING_IN_MEMORY_STORE is set.
func openStore(ctx context.Context, appCfg appConfig, log *slog.Logger, checks map[string]httpserver.Check) (billing.Store, func(), error) {
	if appCfg.InMemoryStore {
		log.WarnContext(ctx, "using in-memory billing store; entitlements are lost on restart")
		return billing.NewMemoryStore(), func() {}, nil
	}

	var pgCfg pg.Config
	if err := config.Load(&pgCfg); err != nil {
		return nil, nil, err
	}
	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Migrate(ctx, pool, pgCfg, migrations.FS, log); err != nil {
		pool.Close()
		return nil, nil, err
	}
	checks["postgres"] = pg.Healthcheck(pool)
	return pgstore.New(pool), pool.Close, nil
}

func newStripeProvider(cfg billing.Config, catalog *billing.Catalog) *billing.StripeProvider {
	api := billing.NewStripeAPI(stripe.NewClient(cfg.Stripe.SecretKey, nil))
	return billing.NewStripeProvider(api, catalog, cfg.Stripe, cfg.AppURL)
}

func newPayPalProvider(cfg paypal.Config, billCfg billing.Config, catalog *billing.Catalog, log *slog.Logger) *billing.PayPalProvider {
	var api billing.PayPalAPI
	if cfg.Configured() {
		client, err := paypal.New(cfg, paypal.WithLogger(log.With(logger.Component("paypal"))))
		if err != nil {
			log.Error("paypal client disabled", logger.Error(err))
		} else {
			api = client
		}
	}
	verifier := paypal.NewWebhookVerifier(cfg.WebhookID)
	return billing.NewPayPalProvider(api, verifier, catalog, billCfg.Redirect, billCfg.AppURL)
}

func unauthorized(w http.ResponseWriter, r *http.Request, _ error) {
	body := handler.JSONResponse{Error: &handler.ErrorDetail{
		Code:    handler.ErrUnauthorized.Key,
		Message: "authentication required",
	}}
	_ = handler.RawJSON(http.StatusUnauthorized, body).Render(w, r)
}
