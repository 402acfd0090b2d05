package backend

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http2"
)

const (
	DefaultModel   = "whisper-1"
	DefaultTimeout = 60 * time.Second
)

// Backend turns a WAV file into text.
type Backend interface {
	Transcribe(ctx context.Context, wavPath string) (string, error)
}

// KeyFunc supplies the API credential at call time.
type KeyFunc func() string

type Kind int

const (
	KindAuth Kind = iota + 1
	KindNetwork
	KindInvalidAudio
	KindQuota
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindNetwork:
		return "network"
	case KindInvalidAudio:
		return "invalid-audio"
	case KindQuota:
		return "quota"
	case KindResponse:
		return "response"
	}
	return "unknown"
}

// Error is a classified transcription failure.
type Error struct {
	Kind   Kind
	Status int
	Err    error
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case KindAuth:
		msg = "Authentication failed. Check your API key."
	case KindNetwork:
		msg = "Could not reach the transcription service."
	case KindInvalidAudio:
		msg = "The recording was rejected as invalid audio."
	case KindQuota:
		msg = "Rate limit or quota exceeded. Try again later."
	default:
		msg = "The transcription service returned an unexpected response."
	}
	if e.Err != nil {
		return msg + " (" + e.Err.Error() + ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a backend Error of kind k.
func IsKind(err error, k Kind) bool {
	var be *Error
	return errors.As(err, &be) && be.Kind == k
}

// ErrNoAPIKey is wrapped in an auth Error when no credential is configured.
var ErrNoAPIKey = errors.New("no API key configured")

func classifyStatus(status int, err error) *Error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Kind: KindAuth, Status: status, Err: err}
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindQuota, Status: status, Err: err}
	case status == http.StatusBadRequest || status == http.StatusRequestEntityTooLarge || status == http.StatusUnsupportedMediaType:
		return &Error{Kind: KindInvalidAudio, Status: status, Err: err}
	}
	return &Error{Kind: KindResponse, Status: status, Err: err}
}

func networkError(err error) *Error {
	return &Error{Kind: KindNetwork, Err: err}
}

// NewHTTPClient builds the transport shared by the backends.
func NewHTTPClient(timeout time.Duration, enableHTTP2, insecure bool) *http.Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if insecure {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if enableHTTP2 {
		_ = http2.ConfigureTransport(tr)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}
}

// CleanText drops blank lines and [BLANK_AUDIO] markers and joins the rest
// with single spaces.
func CleanText(output string) string {
	var builder strings.Builder
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "[BLANK_AUDIO]") {
			line = strings.ReplaceAll(line, "[BLANK_AUDIO]", "")
		}
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString(" ")
		}
		builder.WriteString(text)
	}
	return builder.String()
}
