// Package pg bootstraps PostgreSQL access with pgx/v5: a retrying pool
// constructor, goose migrations run over the same pool, a health probe and
// error classification helpers.
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, migrations.FS, slog.Default()); err != nil {
//		return err
//	}
//
// Configuration is read from environment variables; see the field tags on
// Config. DATABASE_URL is required.
package pg
