package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-otp-auth/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepo struct {
	pool dbtx
}

// dbtx is the part of pgxpool.Pool the repos use.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `user_id, email, name, COALESCE(password_hash, ''), COALESCE(google_sub, ''),
	email_verified, created_at, last_login_at`

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (user_id, email, name, password_hash, google_sub, email_verified, created_at, last_login_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8)`,
		u.UserID, u.Email, u.Name, u.PasswordHash, u.GoogleSub, u.EmailVerified, u.CreatedAt, u.LastLoginAt)
	return mapErr("insert user", err)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row, "get user")
}

func (r *UserRepo) GetByGoogleSub(ctx context.Context, sub string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE google_sub = $1`, sub)
	return scanUser(row, "get user by google sub")
}

// LinkGoogle sets google_sub on an unlinked (or identically linked) account.
func (r *UserRepo) LinkGoogle(ctx context.Context, email, sub string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET google_sub = $2, email_verified = TRUE
		 WHERE email = $1 AND (google_sub IS NULL OR google_sub = $2)`, email, sub)
	if err != nil {
		return mapErr("link google", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("google account already linked: %w", domain.ErrConflict)
	}
	return nil
}

func (r *UserRepo) MarkEmailVerified(ctx context.Context, email string) error {
	return r.exec(ctx, "mark email verified", `UPDATE users SET email_verified = TRUE WHERE email = $1`, email)
}

func (r *UserRepo) UpdateLastLogin(ctx context.Context, email string, at time.Time) error {
	return r.exec(ctx, "update last login", `UPDATE users SET last_login_at = $2 WHERE email = $1`, email, at.UTC())
}

func (r *UserRepo) exec(ctx context.Context, op, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return mapErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}

func scanUser(row pgx.Row, op string) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.UserID, &u.Email, &u.Name, &u.PasswordHash, &u.GoogleSub,
		&u.EmailVerified, &u.CreatedAt, &u.LastLoginAt)
	if err != nil {
		return nil, mapErr(op, err)
	}
	return &u, nil
}
