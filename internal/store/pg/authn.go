package pg

import (
	"context"
	"database/sql"
	"time"

	"crewdock.org/internal/auth"
)

// MagicLinkStore persists single-use login links.
type MagicLinkStore struct {
	db *sql.DB
}

const linkCols = `id, principal_id, token_hash, used_at, expires_at, created_at`

func (s *MagicLinkStore) Create(ctx context.Context, l auth.MagicLink) (auth.MagicLink, error) {
	const q = `
		insert into magic_links (id, principal_id, token_hash, expires_at, created_at)
		values ($1, $2, $3, $4, $5)
		returning ` + linkCols
	row := s.db.QueryRowContext(ctx, q, l.ID, l.PrincipalID, l.TokenHash, l.ExpiresAt, l.CreatedAt)
	return scanLink(row)
}

func (s *MagicLinkStore) FindByHash(ctx context.Context, tokenHash string) (auth.MagicLink, error) {
	const q = `select ` + linkCols + ` from magic_links where token_hash = $1`
	return scanLink(s.db.QueryRowContext(ctx, q, tokenHash))
}

func (s *MagicLinkStore) DeleteUnredeemed(ctx context.Context, principalID string) (int64, error) {
	const q = `delete from magic_links where principal_id = $1 and used_at is null`
	res, err := s.db.ExecContext(ctx, q, principalID)
	if err != nil {
		return 0, mapPgError(err)
	}
	return res.RowsAffected()
}

// Consume is the single-use guard: the update only lands while used_at
// is still null, so of two concurrent redemptions exactly one sees an
// affected row.
func (s *MagicLinkStore) Consume(ctx context.Context, id string, at time.Time) (bool, error) {
	const q = `update magic_links set used_at = $2 where id = $1 and used_at is null`
	res, err := s.db.ExecContext(ctx, q, id, at)
	if err != nil {
		return false, mapPgError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *MagicLinkStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const q = `delete from magic_links where expires_at <= $1 or used_at is not null`
	res, err := s.db.ExecContext(ctx, q, now)
	if err != nil {
		return 0, mapPgError(err)
	}
	return res.RowsAffected()
}

func scanLink(row *sql.Row) (auth.MagicLink, error) {
	var l auth.MagicLink
	if err := row.Scan(&l.ID, &l.PrincipalID, &l.TokenHash, &l.UsedAt, &l.ExpiresAt, &l.CreatedAt); err != nil {
		return auth.MagicLink{}, mapPgError(err)
	}
	return l, nil
}

// SessionStore persists refresh sessions.
type SessionStore struct {
	db *sql.DB
}

const sessionCols = `id, principal_id, token_hash, expires_at, created_at`

func (s *SessionStore) Create(ctx context.Context, sess auth.Session) (auth.Session, error) {
	const q = `
		insert into auth_sessions (id, principal_id, token_hash, expires_at, created_at)
		values ($1, $2, $3, $4, $5)
		returning ` + sessionCols
	row := s.db.QueryRowContext(ctx, q, sess.ID, sess.PrincipalID, sess.TokenHash, sess.ExpiresAt, sess.CreatedAt)
	return scanSession(row)
}

func (s *SessionStore) FindByHash(ctx context.Context, tokenHash string) (auth.Session, error) {
	const q = `select ` + sessionCols + ` from auth_sessions where token_hash = $1`
	return scanSession(s.db.QueryRowContext(ctx, q, tokenHash))
}

func (s *SessionStore) DeleteByHash(ctx context.Context, tokenHash string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from auth_sessions where token_hash = $1`, tokenHash)
	if err != nil {
		return 0, mapPgError(err)
	}
	return res.RowsAffected()
}

func (s *SessionStore) DeleteByPrincipal(ctx context.Context, principalID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from auth_sessions where principal_id = $1`, principalID)
	if err != nil {
		return 0, mapPgError(err)
	}
	return res.RowsAffected()
}

func (s *SessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from auth_sessions where expires_at <= $1`, now)
	if err != nil {
		return 0, mapPgError(err)
	}
	return res.RowsAffected()
}

func scanSession(row *sql.Row) (auth.Session, error) {
	var sess auth.Session
	if err := row.Scan(&sess.ID, &sess.PrincipalID, &sess.TokenHash, &sess.ExpiresAt, &sess.CreatedAt); err != nil {
		return auth.Session{}, mapPgError(err)
	}
	return sess, nil
}
