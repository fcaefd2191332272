// Package otp implements the one-time passcode ledger: issuing codes,
// verifying them with bounded attempts and single use, and reaping dead records.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/go-otp-auth/internal/domain"
	"github.com/go-otp-auth/internal/pkg/id"
)

const (
	// TTL is how long an issued code stays usable.
	TTL = 10 * time.Minute
	// MaxAttempts is the number of failed verifications a record tolerates.
	MaxAttempts = 3

	codeMin = 100000
	codeMax = 999999
)

// Store is the persistence the ledger needs. Implementations must make
// IncrementAttempts and MarkUsed conditional so that a record never exceeds
// MaxAttempts and never leaves the used state.
type Store interface {
	DeleteByKey(ctx context.Context, key string) error
	Put(ctx context.Context, r *domain.OTPRecord) error
	// ListUsable returns unused records under key whose expiry is after now.
	ListUsable(ctx context.Context, key string, now time.Time) ([]domain.OTPRecord, error)
	// IncrementAttempts adds one attempt unless the record already has max.
	IncrementAttempts(ctx context.Context, r *domain.OTPRecord, max int) error
	// MarkUsed flips used to true if the record is unused, unexpired at now
	// and below max attempts; otherwise it returns domain.ErrConflict.
	MarkUsed(ctx context.Context, r *domain.OTPRecord, max int, now time.Time) error
	Delete(ctx context.Context, r *domain.OTPRecord) error
	// DeleteReapable removes every expired or used record and reports how many.
	DeleteReapable(ctx context.Context, now time.Time) (int, error)
}

// Ledger issues and verifies OTP codes.
type Ledger struct {
	store Store
	now   func() time.Time
	code  func() (string, error)
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store, now: time.Now, code: generateCode}
}

// Issue replaces any outstanding codes for (email, purpose) with a fresh one
// and returns the record so callers can deliver the code or discard it.
func (l *Ledger) Issue(ctx context.Context, email string, purpose domain.Purpose) (*domain.OTPRecord, error) {
	key := domain.OTPKey(email, purpose)
	if err := l.store.DeleteByKey(ctx, key); err != nil {
		return nil, fmt.Errorf("clear previous otps: %w", err)
	}
	code, err := l.code()
	if err != nil {
		return nil, err
	}
	now := l.now().UTC()
	r := &domain.OTPRecord{
		Key:       key,
		OTPID:     id.New(),
		Email:     email,
		Code:      code,
		Purpose:   purpose,
		CreatedAt: now,
		ExpiresAt: now.Add(TTL).Unix(),
	}
	if err := l.store.Put(ctx, r); err != nil {
		return nil, fmt.Errorf("store otp: %w", err)
	}
	return r, nil
}

// Verify checks code against the usable records for (email, purpose).
// A wrong code counts as a failed attempt against every live record for the
// pair. The returned error is non-nil only for storage failures.
func (l *Ledger) Verify(ctx context.Context, email, code string, purpose domain.Purpose) (domain.OTPOutcome, error) {
	now := l.now()
	records, err := l.store.ListUsable(ctx, domain.OTPKey(email, purpose), now)
	if err != nil {
		return "", fmt.Errorf("load otps: %w", err)
	}

	var match *domain.OTPRecord
	for i := range records {
		if subtle.ConstantTimeCompare([]byte(records[i].Code), []byte(code)) == 1 {
			match = &records[i]
			break
		}
	}

	if match == nil {
		for i := range records {
			if records[i].Attempts >= MaxAttempts {
				continue
			}
			if err := l.store.IncrementAttempts(ctx, &records[i], MaxAttempts); err != nil {
				slog.Warn("failed to count otp attempt", "otp_id", records[i].OTPID, "err", err)
			}
		}
		return domain.OTPInvalidOrExpired, nil
	}

	if match.Attempts >= MaxAttempts {
		return domain.OTPAttemptsExceeded, nil
	}
	if err := l.store.MarkUsed(ctx, match, MaxAttempts, now); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Lost a race with another verification or an attempt increment.
			return domain.OTPInvalidOrExpired, nil
		}
		return "", fmt.Errorf("consume otp: %w", err)
	}
	return domain.OTPVerified, nil
}

// Discard deletes a record that could not be delivered.
func (l *Ledger) Discard(ctx context.Context, r *domain.OTPRecord) error {
	return l.store.Delete(ctx, r)
}

// Reap deletes expired and used records.
func (l *Ledger) Reap(ctx context.Context) (int, error) {
	return l.store.DeleteReapable(ctx, l.now())
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+codeMin), nil
}
