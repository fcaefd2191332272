package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-otp-auth/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDeliverer struct{ mock.Mock }

func (m *mockDeliverer) Deliver(ctx context.Context, n *domain.EmailNotification) error {
	return m.Called(ctx, n).Error(0)
}

type funcDeliverer func(ctx context.Context, n *domain.EmailNotification) error

func (f funcDeliverer) Deliver(ctx context.Context, n *domain.EmailNotification) error { return f(ctx, n) }

func TestSend_Success(t *testing.T) {
	md := &mockDeliverer{}
	md.On("Deliver", mock.Anything, mock.MatchedBy(func(n *domain.EmailNotification) bool {
		return n.To == "a@x.com" &&
			n.Subject == "Verify your email" &&
			n.Purpose == domain.PurposeSignup
	})).Return(nil)

	g := NewGateway(md, time.Second, 10*time.Minute)
	res := g.Send(context.Background(), "a@x.com", "123456", domain.PurposeSignup)

	assert.True(t, res.Success)
	assert.NoError(t, res.Err)
	md.AssertExpectations(t)
}

func TestSend_BodyCarriesCode(t *testing.T) {
	var got *domain.EmailNotification
	g := NewGateway(funcDeliverer(func(_ context.Context, n *domain.EmailNotification) error {
		got = n
		return nil
	}), time.Second, 10*time.Minute)

	g.Send(context.Background(), "a@x.com", "654321", domain.PurposePasswordReset)

	require.NotNil(t, got)
	assert.Equal(t, "Password reset", got.Subject)
	assert.Contains(t, got.Text, "654321")
	assert.Contains(t, got.Text, "reset your password")
	assert.Contains(t, got.Text, "10 minutes")
	assert.Contains(t, got.HTML, "654321")
}

func TestSend_DelivererError(t *testing.T) {
	md := &mockDeliverer{}
	md.On("Deliver", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	res := NewGateway(md, time.Second, 10*time.Minute).Send(context.Background(), "a@x.com", "123456", domain.PurposeLogin)

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, domain.ErrDelivery)
}

func TestSend_Timeout(t *testing.T) {
	g := NewGateway(funcDeliverer(func(ctx context.Context, _ *domain.EmailNotification) error {
		<-ctx.Done()
		return ctx.Err()
	}), 20*time.Millisecond, 10*time.Minute)

	start := time.Now()
	res := g.Send(context.Background(), "a@x.com", "123456", domain.PurposeLogin)

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, domain.ErrDelivery)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSend_PanicIsRecovered(t *testing.T) {
	g := NewGateway(funcDeliverer(func(context.Context, *domain.EmailNotification) error {
		panic("boom")
	}), time.Second, 10*time.Minute)

	var res domain.DeliveryResult
	assert.NotPanics(t, func() {
		res = g.Send(context.Background(), "a@x.com", "123456", domain.PurposeSignup)
	})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, domain.ErrDelivery)
}

func TestSubjectFor_AllPurposes(t *testing.T) {
	assert.Equal(t, "Verify your email", subjectFor(domain.PurposeSignup))
	assert.Equal(t, "Login verification", subjectFor(domain.PurposeLogin))
	assert.Equal(t, "Password reset", subjectFor(domain.PurposePasswordReset))
	assert.Equal(t, "Verification code", subjectFor(domain.Purpose("other")))
}
