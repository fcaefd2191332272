package postgres

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/go-otp-auth/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapErr_Nil(t *testing.T) {
	assert.NoError(t, mapErr("op", nil))
}

func TestMapErr_NoRows(t *testing.T) {
	err := mapErr("get user", pgx.ErrNoRows)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NotErrorIs(t, err, domain.ErrStorage)
}

func TestMapErr_UniqueViolation(t *testing.T) {
	err := mapErr("insert user", &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Contains(t, err.Error(), "users_email_key")
}

func TestMapErr_OtherPgError(t *testing.T) {
	err := mapErr("insert otp", &pgconn.PgError{Code: "23514"})
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.NotErrorIs(t, err, domain.ErrConflict)
}

func TestMapErr_DriverError(t *testing.T) {
	cause := errors.New("connection reset")
	err := mapErr("list otps", cause)
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.ErrorIs(t, err, cause)
}

func TestMigrations_Embedded(t *testing.T) {
	entries, err := fs.ReadDir(migrations, "migrations")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "00001_create_users.sql", entries[0].Name())
	assert.Equal(t, "00002_create_otps.sql", entries[1].Name())

	body, err := fs.ReadFile(migrations, "migrations/00002_create_otps.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "-- +goose Up")
	assert.Contains(t, string(body), "attempts BETWEEN 0 AND 3")
}
