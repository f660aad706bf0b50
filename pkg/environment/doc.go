// Package environment carries the deployment environment (development,
// staging, production) through configuration, request contexts and logs.
//
// Parse turns the APP_ENV value into an Environment. The billing service
// uses it to pick the PayPal API host (sandbox outside production) and the
// logger format. Middleware stores the value on each request context and
// LoggerExtractor surfaces it as the "env" log attribute.
package environment
