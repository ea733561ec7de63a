package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 3 * time.Second
)

// PostgresStore keeps uploader accounts in the uploaders table of the
// catalog database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.pool.Ping(ctx)
	})
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `
			CREATE TABLE IF NOT EXISTS uploaders (
				name       TEXT PRIMARY KEY,
				pass_hash  BYTEA NOT NULL,
				role       TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)
		`)
		return err
	})
}

// Sync upserts the configured accounts so a password change in the
// configuration takes effect on restart.
func (s *PostgresStore) Sync(ctx context.Context, accounts []Account) error {
	for _, a := range accounts {
		hash, err := bcrypt.GenerateFromPassword([]byte(a.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		err = withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
			_, err := s.pool.Exec(ctx, `
				INSERT INTO uploaders (name, pass_hash, role)
				VALUES ($1, $2, $3)
				ON CONFLICT (name) DO UPDATE
				SET pass_hash = EXCLUDED.pass_hash, role = EXCLUDED.role, updated_at = now()
			`, normalizeName(a.Name), hash, RoleUploader)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) Verify(ctx context.Context, name, password string) (User, error) {
	name = normalizeName(name)

	var u User
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.pool.QueryRow(ctx, `
			SELECT name, pass_hash, role
			FROM uploaders
			WHERE name = $1
		`, name).Scan(&u.Name, &u.Hash, &u.Role)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}

	if err := bcrypt.CompareHashAndPassword(u.Hash, []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}

	return u, nil
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}
