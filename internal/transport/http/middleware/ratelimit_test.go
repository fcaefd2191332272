package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-otp-auth/internal/pkg/ratelimit"
	"github.com/stretchr/testify/assert"
)

func TestClientIP_NoTrustedProxyIgnoresHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:54321"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	req.Header.Set("X-Real-Ip", "9.10.11.12")
	assert.Equal(t, "192.168.1.1", clientIP(req, 0))
}

func TestClientIP_OneProxyTakesRightmostHop(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:443"
	// The client forged the first entry; the proxy appended the real address.
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	assert.Equal(t, "5.6.7.8", clientIP(req, 1))
}

func TestClientIP_TwoProxies(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "6.6.6.6, 5.6.7.8, 10.0.0.9")
	assert.Equal(t, "5.6.7.8", clientIP(req, 2))
}

func TestClientIP_HeaderSplitAcrossLines(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Add("X-Forwarded-For", "6.6.6.6")
	req.Header.Add("X-Forwarded-For", "5.6.7.8")
	assert.Equal(t, "5.6.7.8", clientIP(req, 1))
}

func TestClientIP_ShortHeaderFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:443"
	req.Header.Set("X-Forwarded-For", "5.6.7.8")
	assert.Equal(t, "10.0.0.2", clientIP(req, 2))
}

func TestRateLimit_ForgedForwardedForDoesNotReset(t *testing.T) {
	l := ratelimit.New(ratelimit.Every(time.Hour), 1, time.Minute)
	h := RateLimit(l, 1)(http.HandlerFunc(okHandler))

	codes := make([]int, 0, 2)
	for _, forged := range []string{"1.1.1.1", "2.2.2.2"} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-Forwarded-For", forged+", 5.6.7.8")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimit_BlocksAfterBurst(t *testing.T) {
	l := ratelimit.New(ratelimit.Every(time.Hour), 2, time.Minute)
	h := RateLimit(l, 0)(http.HandlerFunc(okHandler))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimit_KeysPerIP(t *testing.T) {
	l := ratelimit.New(ratelimit.Every(time.Hour), 1, time.Minute)
	h := RateLimit(l, 0)(http.HandlerFunc(okHandler))

	for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code, addr)
	}
}
