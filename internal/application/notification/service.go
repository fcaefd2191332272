package notification

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/go-otp-auth/internal/domain"
)

// Deliverer hands a rendered email to a transport (SMTP, SNS).
type Deliverer interface {
	Deliver(ctx context.Context, n *domain.EmailNotification) error
}

// Gateway renders OTP emails and delivers them. Send never returns an error;
// failures, timeouts and panics all come back as an unsuccessful result.
type Gateway struct {
	deliverer Deliverer
	timeout   time.Duration
	validity  time.Duration
}

func NewGateway(d Deliverer, timeout, validity time.Duration) *Gateway {
	return &Gateway{deliverer: d, timeout: timeout, validity: validity}
}

func (g *Gateway) Send(ctx context.Context, to, code string, purpose domain.Purpose) (res domain.DeliveryResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("otp delivery panicked", "purpose", purpose, "panic", r)
			res = domain.DeliveryResult{Err: fmt.Errorf("delivery panic: %v: %w", r, domain.ErrDelivery)}
		}
	}()

	n, err := g.render(to, code, purpose)
	if err != nil {
		return domain.DeliveryResult{Err: fmt.Errorf("render: %v: %w", err, domain.ErrDelivery)}
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	if err := g.deliverer.Deliver(ctx, n); err != nil {
		slog.Warn("otp delivery failed", "purpose", purpose, "error", err)
		return domain.DeliveryResult{Err: fmt.Errorf("%v: %w", err, domain.ErrDelivery)}
	}
	return domain.DeliveryResult{Success: true}
}

func subjectFor(p domain.Purpose) string {
	switch p {
	case domain.PurposeSignup:
		return "Verify your email"
	case domain.PurposeLogin:
		return "Login verification"
	case domain.PurposePasswordReset:
		return "Password reset"
	default:
		return "Verification code"
	}
}

func actionFor(p domain.Purpose) string {
	switch p {
	case domain.PurposeSignup:
		return "complete your registration"
	case domain.PurposeLogin:
		return "verify your login"
	case domain.PurposePasswordReset:
		return "reset your password"
	default:
		return "verify your email"
	}
}

var htmlTmpl = template.Must(template.New("otp").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Verification Code</title></head>
<body style="font-family: sans-serif; color: #333; max-width: 600px; margin: 0 auto;">
  <p>You requested to {{.Action}}. Use the verification code below:</p>
  <p style="font-size: 32px; font-weight: bold; letter-spacing: 8px;">{{.Code}}</p>
  <p>This code expires in {{.Minutes}} minutes. Never share it with anyone.</p>
  <p>If you didn't request this, you can ignore this email.</p>
</body>
</html>`))

func (g *Gateway) render(to, code string, purpose domain.Purpose) (*domain.EmailNotification, error) {
	data := struct {
		Action  string
		Code    string
		Minutes int
	}{actionFor(purpose), code, int(g.validity.Minutes())}

	var html bytes.Buffer
	if err := htmlTmpl.Execute(&html, data); err != nil {
		return nil, err
	}
	text := fmt.Sprintf("You requested to %s.\n\nYour verification code is %s\n\nIt expires in %d minutes. Never share this code with anyone.\n",
		data.Action, code, data.Minutes)

	return &domain.EmailNotification{
		To:      to,
		Subject: subjectFor(purpose),
		Text:    text,
		HTML:    html.String(),
		Purpose: purpose,
	}, nil
}
