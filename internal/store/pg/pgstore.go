// Package pg implements auth.Store on PostgreSQL via the pgx stdlib
// driver.
package pg

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"crewdock.org/internal/auth"
)

// Store bundles the substores over one connection pool.
type Store struct {
	db *sql.DB

	tenants    *TenantStore
	principals *PrincipalStore
	links      *MagicLinkStore
	sessions   *SessionStore
}

// Open connects to dsn and tunes the pool for a small service.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	return NewStore(db), nil
}

// NewStore wraps an existing pool. Tests hand in a sqlmock db here.
func NewStore(db *sql.DB) *Store {
	s := &Store{db: db}
	s.tenants = &TenantStore{db: db}
	s.principals = &PrincipalStore{db: db}
	s.links = &MagicLinkStore{db: db}
	s.sessions = &SessionStore{db: db}
	return s
}

// DB exposes the underlying pool for migrations and health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Tenants() auth.TenantStore       { return s.tenants }
func (s *Store) Principals() auth.PrincipalStore { return s.principals }
func (s *Store) MagicLinks() auth.MagicLinkStore { return s.links }
func (s *Store) Sessions() auth.SessionStore     { return s.sessions }

// mapPgError translates driver errors into the typed taxonomy:
// unique violations become ErrConflict, foreign-key violations and
// empty results become ErrNotFound.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", auth.ErrConflict, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%w: %s", auth.ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}
