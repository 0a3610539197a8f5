// Package pg is the PostgreSQL UserDirectory backed by pgx.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/Puvox/sign-in-with-essentials/internal/directory"
)

const sessionTTL = 14 * 24 * time.Hour

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool. Idempotent.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*directory.LocalUser, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, login, email, role, registered_at
		  FROM siwe_user
		 WHERE lower(email) = lower($1)`, email)
	return scanUser(row)
}

func (s *Store) FindByMeta(ctx context.Context, key, value string) ([]*directory.LocalUser, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT u.id, u.login, u.email, u.role, u.registered_at
		  FROM siwe_user u
		  JOIN siwe_user_meta m ON m.user_id = u.id
		 WHERE m.meta_key = $1 AND m.meta_value = $2
		 ORDER BY u.registered_at`, key, value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*directory.LocalUser
	for rows.Next() {
		var u directory.LocalUser
		if err := rows.Scan(&u.ID, &u.Login, &u.Email, &u.Role, &u.RegisteredAt); err != nil {
			return nil, err
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

func (s *Store) Create(ctx context.Context, nu directory.NewUser) (*directory.LocalUser, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(nu.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &directory.LocalUser{
		ID:           uuid.NewString(),
		Login:        nu.Login,
		Email:        nu.Email,
		Role:         nu.Role,
		RegisteredAt: nu.RegisteredAt,
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO siwe_user (id, login, email, password_hash, role, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Login, u.Email, string(hash), u.Role, u.RegisteredAt)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// AddMetaIfAbsent relies on the (user_id, meta_key) unique constraint: the
// insert is a no-op when the key already exists, so an existing link is
// never overwritten.
func (s *Store) AddMetaIfAbsent(ctx context.Context, userID, key, value string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO siwe_user_meta (user_id, meta_key, meta_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, meta_key) DO NOTHING`, userID, key, value)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) UpdateMeta(ctx context.Context, userID, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO siwe_user_meta (user_id, meta_key, meta_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, meta_key) DO UPDATE SET meta_value = EXCLUDED.meta_value`,
		userID, key, value)
	return err
}

func (s *Store) DeleteMeta(ctx context.Context, userID, key string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM siwe_user_meta WHERE user_id = $1 AND meta_key = $2`, userID, key)
	return err
}

func (s *Store) EstablishSession(ctx context.Context, userID string) (string, error) {
	token := uuid.NewString()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO siwe_session (token, user_id, created_at, expires_at)
		VALUES ($1, $2, now(), now() + $3::interval)`,
		token, userID, fmt.Sprintf("%d seconds", int(sessionTTL.Seconds())))
	if err != nil {
		return "", err
	}
	return token, nil
}

func (s *Store) CurrentSessionUser(ctx context.Context) (*directory.LocalUser, error) {
	token, ok := directory.SessionTokenFrom(ctx)
	if !ok {
		return nil, nil
	}
	row := s.pool.QueryRow(ctx, `
		SELECT u.id, u.login, u.email, u.role, u.registered_at
		  FROM siwe_user u
		  JOIN siwe_session s ON s.user_id = u.id
		 WHERE s.token = $1 AND s.expires_at > now()`, token)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*directory.LocalUser, error) {
	var u directory.LocalUser
	err := row.Scan(&u.ID, &u.Login, &u.Email, &u.Role, &u.RegisteredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}
