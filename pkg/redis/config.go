package redis

import "time"

// Config configures the redis connection. An empty ConnectionURL disables
// redis and the caller falls back to in-process locks.
type Config struct {
	ConnectionURL  string        `env:"REDIS_URL"`                              // ConnectionURL is in the form "redis://:password@localhost:6379/0".
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`    // RetryAttempts is the number of connection attempts at startup.
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"1s"`   // RetryInterval is the initial wait between attempts.
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"` // ConnectTimeout bounds the whole connection phase.
}

// Enabled reports whether a redis URL is configured.
func (c Config) Enabled() bool {
	return c.ConnectionURL != ""
}
