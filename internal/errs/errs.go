// Package errs is the closed error taxonomy shared by adapters, the monitoring
// service, persistence and trend analysis.
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Kind classifies a failure. Values are stable; add sparingly.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindRateLimit
	KindAuth
	KindUnavailable
	KindProvider
	KindConfig
	KindNotFound
	KindValidation
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindRateLimit:
		return "rate_limit_exceeded"
	case KindAuth:
		return "authentication_failed"
	case KindUnavailable:
		return "provider_unavailable"
	case KindProvider:
		return "provider_error"
	case KindConfig:
		return "configuration_missing"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation_error"
	case KindPersistence:
		return "persistence_error"
	default:
		return "unknown"
	}
}

// Error is the structured error carried across layers.
// Platform and Op are optional tags; RetryAfter is set for rate limits.
type Error struct {
	Kind       Kind
	Platform   string
	Op         string
	Msg        string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	if e.Platform != "" {
		b.WriteString(e.Platform)
		b.WriteString(": ")
	}
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	b.WriteString(msg)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the package sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Platform == "" && t.Op == "" && t.Msg == "" && t.Err == nil
}

// Sentinels for errors.Is checks.
var (
	ErrRateLimited   = &Error{Kind: KindRateLimit}
	ErrAuth          = &Error{Kind: KindAuth}
	ErrUnavailable   = &Error{Kind: KindUnavailable}
	ErrProvider      = &Error{Kind: KindProvider}
	ErrConfigMissing = &Error{Kind: KindConfig}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrValidation    = &Error{Kind: KindValidation}
	ErrPersistence   = &Error{Kind: KindPersistence}
)

// New builds an error of the given kind.
func New(kind Kind, platform, msg string) *Error {
	return &Error{Kind: kind, Platform: platform, Msg: msg}
}

// Newf builds an error of the given kind with a formatted message.
func Newf(kind Kind, platform, format string, args ...any) *Error {
	return &Error{Kind: kind, Platform: platform, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error. A nil err returns nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// RateLimited builds a rate-limit error with a retry hint.
func RateLimited(platform string, retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimit,
		Platform:   platform,
		Msg:        fmt.Sprintf("rate limit exceeded, retry after %s", retryAfter.Round(time.Second)),
		RetryAfter: retryAfter,
	}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// RetryAfterOf returns the retry hint of a rate-limit error, or zero.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// FromStatus maps a provider HTTP status onto the taxonomy.
// 429 -> rate limit, 401/403 -> auth, 5xx -> unavailable, anything else -> provider error.
func FromStatus(platform string, status int, body string) *Error {
	body = strings.TrimSpace(body)
	if len(body) > 200 {
		body = body[:200]
	}
	msg := fmt.Sprintf("status %d", status)
	if body != "" {
		msg += ": " + body
	}
	switch {
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimit, Platform: platform, Msg: msg}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Kind: KindAuth, Platform: platform, Msg: msg}
	case status >= 500:
		return &Error{Kind: KindUnavailable, Platform: platform, Msg: msg}
	default:
		return &Error{Kind: KindProvider, Platform: platform, Msg: msg}
	}
}

// Provider wraps a transport or decoding failure as a generic provider error,
// keeping the original message.
func Provider(platform string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindProvider, Platform: platform, Err: err}
}

// HTTPStatus turns a kind into the status the API responds with.
func HTTPStatus(k Kind) int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindAuth:
		return http.StatusBadGateway
	case KindUnavailable, KindProvider:
		return http.StatusBadGateway
	case KindConfig:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
