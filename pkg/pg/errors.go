package pg

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrEmptyConnectionString    = errors.New("pg: DATABASE_URL is empty")
	ErrFailedToParseDBConfig    = errors.New("pg: invalid connection string")
	ErrFailedToOpenDBConnection = errors.New("pg: database not reachable")
	ErrHealthcheckFailed        = errors.New("pg: ping failed")
	ErrFailedToApplyMigrations  = errors.New("pg: migrations failed")
	ErrMigrationsDirNotFound    = errors.New("pg: migrations directory not found")
	ErrMigrationPathNotProvided = errors.New("pg: no migrations source")
)

const uniqueViolation = "23505"

// IsNotFoundError reports whether a query matched no rows.
func IsNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsDuplicateKeyError reports a unique constraint violation, for example a
// second user row claiming the same provider subscription id.
func IsDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
