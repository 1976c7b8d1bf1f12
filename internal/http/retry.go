package http

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rescale/fwrelease/internal/constants"
)

// ErrorType classifies a failed attempt for the retry strategy.
type ErrorType int

const (
	// ErrorTypeSuccess indicates operation succeeded
	ErrorTypeSuccess ErrorType = iota
	// ErrorTypeCredential indicates rejected credentials (403, expired token, bad SAS)
	ErrorTypeCredential
	// ErrorTypeNetwork indicates network/connection issues (timeouts, resets)
	ErrorTypeNetwork
	// ErrorTypeRetryable indicates server errors that can be retried (5xx, throttling)
	ErrorTypeRetryable
	// ErrorTypeFatal indicates errors that should not be retried (400, 404, cancellation)
	ErrorTypeFatal
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeSuccess:
		return "success"
	case ErrorTypeCredential:
		return "credential"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeRetryable:
		return "retryable"
	case ErrorTypeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// RetryConfig holds retry parameters for ExecuteWithRetry.
type RetryConfig struct {
	// MaxRetries is the maximum number of attempts.
	MaxRetries int
	// InitialDelay is the base delay for exponential backoff.
	InitialDelay time.Duration
	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration
	// CredentialRetries is how many credential failures are retried before
	// giving up. A rejected SAS token or expired key rarely heals, so the
	// default is a single retry.
	CredentialRetries int
	// OnRetry is invoked before each retry attempt.
	OnRetry func(attempt int, err error, errorType ErrorType)
}

// DefaultRetryConfig returns the retry policy used for release publication.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        constants.MaxRetries,
		InitialDelay:      constants.RetryInitialDelay,
		MaxDelay:          constants.RetryMaxDelay,
		CredentialRetries: 1,
	}
}

// ClassifyError determines the error type for retry strategy. Cloud SDK
// errors only expose their codes in the message, so matching is textual.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeSuccess
	}
	if errors.Is(err, context.Canceled) {
		return ErrorTypeFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeNetwork
	}

	errStr := strings.ToLower(err.Error())

	if containsAny(errStr,
		"expired", "invalid token", "expiredtoken", "403", "unauthorized",
		"authentication failed", "authenticationfailed", "invalid sas", "sas token",
		"signature not valid", "signaturedoesnotmatch", "authorization failure",
		"invalidaccesskeyid",
	) {
		return ErrorTypeCredential
	}

	if containsAny(errStr,
		"tls handshake timeout", "connection reset", "i/o timeout", "eof",
		"connection refused", "broken pipe", "timeout", "no such host",
	) {
		return ErrorTypeNetwork
	}

	if containsAny(errStr,
		"requesttimeout", "internalerror", "serviceunavailable", "slowdown",
		"throttl", "429", "500", "502", "503", "504", "server busy", "serverbusy",
		"operationtimeout", "operation timeout", "service unavailable",
	) {
		return ErrorTypeRetryable
	}

	// Client errors and anything unrecognized are not retried.
	return ErrorTypeFatal
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// CalculateBackoff returns exponential backoff duration with full jitter.
//
// Formula: random(0, min(maxDelay, initialDelay * 2^attempt))
func CalculateBackoff(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	if attempt <= 0 || initialDelay <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}

	base := time.Duration(1<<uint(attempt)) * initialDelay
	if base > maxDelay || base <= 0 {
		base = maxDelay
	}
	return time.Duration(rand.Int63n(int64(base) + 1))
}

// ExecuteWithRetry runs operation until it succeeds, fails fatally, or runs
// out of attempts.
//
// Retry strategy:
//   - Credential errors: retried up to CredentialRetries times after a short pause
//   - Network/Retryable errors: exponential backoff with full jitter
//   - Fatal errors: returned immediately
//   - Context cancellation: returned immediately, including during a backoff wait
func ExecuteWithRetry(ctx context.Context, config RetryConfig, operation func(ctx context.Context) error) error {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 1
	}

	var lastErr error
	credentialFailures := 0

	for attempt := 0; attempt < config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return err
		}

		err := operation(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		errType := ClassifyError(err)
		var wait time.Duration
		switch errType {
		case ErrorTypeSuccess:
			return nil
		case ErrorTypeFatal:
			return err
		case ErrorTypeCredential:
			credentialFailures++
			if credentialFailures > config.CredentialRetries {
				return fmt.Errorf("credential error after %d attempts: %w", attempt+1, err)
			}
			wait = time.Second
		case ErrorTypeNetwork, ErrorTypeRetryable:
			wait = CalculateBackoff(attempt, config.InitialDelay, config.MaxDelay)
		}

		if attempt == config.MaxRetries-1 {
			break
		}
		if config.OnRetry != nil {
			config.OnRetry(attempt+1, err, errType)
		}
		if err := sleepContext(ctx, wait); err != nil {
			return fmt.Errorf("%w (last error: %v)", err, lastErr)
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", config.MaxRetries, lastErr)
}

// sleepContext waits for d or until ctx ends. A deadline that would expire
// during the wait ends it immediately.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < d {
		return context.DeadlineExceeded
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
