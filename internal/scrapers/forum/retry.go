package forum

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"
)

// RetryPolicy configures the exponential backoff of a Transport.
type RetryPolicy struct {
	InitialWait time.Duration
	Multiplier  float64
	MaxWait     time.Duration
	// MaxAttempts is the total number of attempts of a single request,
	// 0 retries forever.
	MaxAttempts int
}

// DefaultRetryPolicy waits 4s, 8s, 16s, ... up to 256s between attempts and
// never gives up.
var DefaultRetryPolicy = RetryPolicy{
	InitialWait: 4 * time.Second,
	Multiplier:  2,
	MaxWait:     256 * time.Second,
}

// Backoff returns the wait after the failed attempt with the given 0-based index.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	wait := p.InitialWait
	for i := 0; i < attempt; i++ {
		if p.MaxWait > 0 && wait >= p.MaxWait {
			break
		}
		wait = time.Duration(float64(wait) * p.Multiplier)
	}
	if p.MaxWait > 0 && wait > p.MaxWait {
		wait = p.MaxWait
	}
	return wait
}

// exhausted reports whether no attempt is left after `attempts` attempts.
func (p RetryPolicy) exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}

func transientStatus(status int) bool {
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	// cloudflare origin errors
	return status >= 520 && status <= 524
}

// isTransient reports whether a request error is worth retrying. Context
// cancellation of the caller must be checked before this.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
