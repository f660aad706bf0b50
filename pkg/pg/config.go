package pg

import "time"

type Config struct {
	ConnectionString  string        `env:"DATABASE_URL,required"`                  // ConnectionString is the postgres connection URL.
	MaxOpenConns      int32         `env:"PG_MAX_OPEN_CONNS" envDefault:"10"`      // MaxOpenConns is the pool size.
	MaxIdleConns      int32         `env:"PG_MAX_IDLE_CONNS" envDefault:"2"`       // MaxIdleConns is the number of connections kept open.
	HealthCheckPeriod time.Duration `env:"PG_HEALTHCHECK_PERIOD" envDefault:"1m"`  // HealthCheckPeriod is the period between pool health checks.
	MaxConnIdleTime   time.Duration `env:"PG_MAX_CONN_IDLE_TIME" envDefault:"10m"` // MaxConnIdleTime is how long an idle connection is kept.
	MaxConnLifetime   time.Duration `env:"PG_MAX_CONN_LIFETIME" envDefault:"30m"`  // MaxConnLifetime is how long a connection may be reused.

	RetryAttempts int           `env:"PG_RETRY_ATTEMPTS" envDefault:"5"`  // RetryAttempts is the number of connection attempts at startup.
	RetryInterval time.Duration `env:"PG_RETRY_INTERVAL" envDefault:"1s"` // RetryInterval is the initial wait between attempts.

	MigrationsPath  string `env:"PG_MIGRATIONS_PATH"`                                         // MigrationsPath overrides the embedded migrations with a directory.
	MigrationsTable string `env:"PG_MIGRATIONS_TABLE" envDefault:"billing_schema_migrations"` // MigrationsTable stores the applied migration version.
}
