// Package config loads typed configuration from environment variables.
//
// It combines github.com/joho/godotenv (a .env file is read once, never
// overriding variables already set) with github.com/caarlos0/env/v11 struct
// tags. Each concern of the service owns its struct (httpserver.Config,
// pg.Config, billing.Config, ...) and cmd/server loads them one by one.
//
// WithEnviron lets tests parse from a literal map without touching the
// process environment.
package config
