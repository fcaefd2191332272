package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-otp-auth/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OTPRepo struct {
	pool *pgxpool.Pool
}

func NewOTPRepo(pool *pgxpool.Pool) *OTPRepo {
	return &OTPRepo{pool: pool}
}

func (r *OTPRepo) Put(ctx context.Context, rec *domain.OTPRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO otps (otp_id, otp_key, email, code, purpose, attempts, used, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.OTPID, rec.Key, rec.Email, rec.Code, string(rec.Purpose), rec.Attempts, rec.Used, rec.CreatedAt, rec.ExpiresAt)
	return mapErr("insert otp", err)
}

func (r *OTPRepo) DeleteByKey(ctx context.Context, key string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM otps WHERE otp_key = $1`, key)
	return mapErr("delete otps", err)
}

func (r *OTPRepo) ListUsable(ctx context.Context, key string, now time.Time) ([]domain.OTPRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT otp_id, otp_key, email, code, purpose, attempts, used, created_at, expires_at
		 FROM otps WHERE otp_key = $1 AND NOT used AND expires_at > $2
		 ORDER BY created_at DESC`, key, now.Unix())
	if err != nil {
		return nil, mapErr("list otps", err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.OTPRecord, error) {
		var rec domain.OTPRecord
		var purpose string
		err := row.Scan(&rec.OTPID, &rec.Key, &rec.Email, &rec.Code, &purpose,
			&rec.Attempts, &rec.Used, &rec.CreatedAt, &rec.ExpiresAt)
		rec.Purpose = domain.Purpose(purpose)
		return rec, err
	})
	if err != nil {
		return nil, mapErr("scan otps", err)
	}
	return recs, nil
}

func (r *OTPRepo) IncrementAttempts(ctx context.Context, rec *domain.OTPRecord, max int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE otps SET attempts = attempts + 1 WHERE otp_id = $1 AND attempts < $2`, rec.OTPID, max)
	return mapErr("increment otp attempts", err)
}

// MarkUsed consumes rec only if it is still usable at now.
func (r *OTPRepo) MarkUsed(ctx context.Context, rec *domain.OTPRecord, max int, now time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE otps SET used = TRUE
		 WHERE otp_id = $1 AND NOT used AND attempts < $2 AND expires_at > $3`,
		rec.OTPID, max, now.Unix())
	if err != nil {
		return mapErr("mark otp used", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("otp no longer usable: %w", domain.ErrConflict)
	}
	return nil
}

func (r *OTPRepo) Delete(ctx context.Context, rec *domain.OTPRecord) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM otps WHERE otp_id = $1`, rec.OTPID)
	return mapErr("delete otp", err)
}

func (r *OTPRepo) DeleteReapable(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM otps WHERE used OR expires_at <= $1`, now.Unix())
	if err != nil {
		return 0, mapErr("reap otps", err)
	}
	return int(tag.RowsAffected()), nil
}
