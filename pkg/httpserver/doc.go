// Package httpserver runs the billing HTTP API with graceful shutdown and
// exposes liveness and readiness probe handlers.
//
// Run blocks until its context is cancelled, then drains in-flight requests
// for at most ShutdownTimeout:
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, router); err != nil {
//		log.Error("server failed", logger.Error(err))
//	}
//
// Readiness reports each dependency by name:
//
//	r.Get("/health/ready", httpserver.Readiness(log, 2*time.Second, map[string]httpserver.Check{
//		"postgres": pg.Healthcheck(pool),
//		"redis":    redis.Healthcheck(client),
//	}))
package httpserver
