package rwportal

import (
	"encoding/json"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeSessionExpired     = "SESSION_EXPIRED"
	TextCodeForbidden          = "FORBIDDEN"
	TextCodeNetwork            = "NETWORK_ERROR"
	TextCodeNotFound           = "NOT_FOUND"
	TextCodeServer             = "SERVER_ERROR"
	TextCodeBadRequest         = "BAD_REQUEST"
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeNoSession          = "NO_SESSION"
	TextCodeStaleResponse      = "STALE_RESPONSE"
	TextCodeValidation         = "VALIDATION_FAILED"
)

// Messages shown inline to the user.
const (
	MsgSessionExpired     = "Sesi anda telah berakhir. Silakan login kembali."
	MsgForbidden          = "Anda tidak memiliki izin untuk melakukan tindakan ini."
	MsgNetwork            = "Gagal terhubung ke server. Periksa koneksi anda."
	MsgServer             = "Terjadi kesalahan pada server"
	MsgInvalidCredentials = "Username atau password salah"
	MsgNotFound           = "Data tidak ditemukan"
	MsgValidation         = "Periksa kembali data yang anda masukkan"
	MsgGeneric            = "Terjadi kesalahan"
)

// ErrNoSession is returned by Verify when no token is persisted.
var ErrNoSession = goerrors.New("no session token", goerrors.CategoryAuth).
	WithTextCode(TextCodeNoSession).
	WithCode(goerrors.CodeUnauthorized)

// ErrStaleResponse is returned by a list fetch that was superseded by a newer one.
var ErrStaleResponse = goerrors.New("response superseded by a newer request", goerrors.CategoryConflict).
	WithTextCode(TextCodeStaleResponse).
	WithCode(goerrors.CodeConflict)

// ErrorKind is the portal's error taxonomy.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindUnauthorized
	KindInvalidCredentials
	KindForbidden
	KindNotFound
	KindBadRequest
	KindServer
	KindNetwork
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindBadRequest:
		return "bad_request"
	case KindServer:
		return "server_error"
	case KindNetwork:
		return "network_error"
	default:
		return "unknown"
	}
}

// NewUnauthorizedError is returned for API 401 responses.
func NewUnauthorizedError() *goerrors.Error {
	return goerrors.New(MsgSessionExpired, goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(TextCodeSessionExpired)
}

// NewForbiddenError is returned for API 403 responses.
func NewForbiddenError() *goerrors.Error {
	return goerrors.New(MsgForbidden, goerrors.CategoryAuthz).
		WithCode(goerrors.CodeForbidden).
		WithTextCode(TextCodeForbidden)
}

// NewNetworkError wraps a transport failure where no response was received.
func NewNetworkError(cause error) *goerrors.Error {
	if cause == nil {
		return goerrors.New(MsgNetwork, goerrors.CategoryOperation).
			WithCode(http.StatusServiceUnavailable).
			WithTextCode(TextCodeNetwork)
	}
	return goerrors.Wrap(cause, goerrors.CategoryOperation, MsgNetwork).
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(TextCodeNetwork)
}

// NewInvalidCredentialsError is returned when the login endpoint rejects the credentials.
func NewInvalidCredentialsError() *goerrors.Error {
	return goerrors.New(MsgInvalidCredentials, goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(TextCodeInvalidCredentials)
}

// NewValidationError carries field errors for a form that must not be submitted.
func NewValidationError(fields map[string]string) *goerrors.Error {
	meta := make(map[string]any, len(fields))
	for k, v := range fields {
		meta[k] = v
	}
	return goerrors.New(MsgValidation, goerrors.CategoryValidation).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(TextCodeValidation).
		WithMetadata(meta)
}

// ErrorFromResponse maps a non 2xx API response onto the error taxonomy.
// The server provided message is kept when the body carries one.
func ErrorFromResponse(status int, body []byte) *goerrors.Error {
	switch {
	case status == http.StatusUnauthorized:
		return NewUnauthorizedError()
	case status == http.StatusForbidden:
		return NewForbiddenError()
	}

	msg := serverMessage(body)
	switch {
	case status == http.StatusNotFound:
		if msg == "" {
			msg = MsgNotFound
		}
		return goerrors.New(msg, goerrors.CategoryNotFound).
			WithCode(goerrors.CodeNotFound).
			WithTextCode(TextCodeNotFound)
	case status >= http.StatusInternalServerError:
		if msg == "" {
			msg = MsgServer
		}
		return goerrors.New(msg, goerrors.CategoryInternal).
			WithCode(status).
			WithTextCode(TextCodeServer)
	default:
		if msg == "" {
			msg = MsgServer
		}
		return goerrors.New(msg, goerrors.CategoryBadInput).
			WithCode(status).
			WithTextCode(TextCodeBadRequest)
	}
}

func serverMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if m := strings.TrimSpace(payload.Message); m != "" {
		return m
	}
	if s, ok := payload.Error.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// KindOf classifies err. Errors that did not come from the portal are unknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return KindUnknown
	}

	switch richErr.TextCode {
	case TextCodeSessionExpired, TextCodeNoSession:
		return KindUnauthorized
	case TextCodeInvalidCredentials:
		return KindInvalidCredentials
	case TextCodeNetwork:
		return KindNetwork
	}

	switch richErr.Category {
	case goerrors.CategoryAuth:
		return KindUnauthorized
	case goerrors.CategoryAuthz:
		return KindForbidden
	case goerrors.CategoryNotFound:
		return KindNotFound
	case goerrors.CategoryValidation:
		return KindValidation
	case goerrors.CategoryBadInput:
		return KindBadRequest
	case goerrors.CategoryInternal:
		return KindServer
	default:
		return KindUnknown
	}
}

// IsUnauthorized reports whether err means the session is gone.
func IsUnauthorized(err error) bool {
	return KindOf(err) == KindUnauthorized
}

// IsForbidden reports a 403 from the API.
func IsForbidden(err error) bool {
	return KindOf(err) == KindForbidden
}

// IsNetworkError reports a failure where the API never answered.
func IsNetworkError(err error) bool {
	return KindOf(err) == KindNetwork
}

// IsNotFound reports a 404 from the API.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// UserMessage converts err to the inline message shown on a page.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	switch KindOf(err) {
	case KindUnauthorized:
		return MsgSessionExpired
	case KindForbidden:
		return MsgForbidden
	case KindNetwork:
		return MsgNetwork
	case KindInvalidCredentials:
		return MsgInvalidCredentials
	case KindValidation:
		return MsgValidation
	case KindNotFound, KindBadRequest, KindServer:
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) && richErr.Message != "" {
			return richErr.Message
		}
		return MsgServer
	default:
		return MsgGeneric
	}
}

// FieldErrors returns the per field messages carried by a validation error.
func FieldErrors(err error) map[string]string {
	out := map[string]string{}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Category != goerrors.CategoryValidation {
		return out
	}
	for k, v := range richErr.Metadata {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// StatusCode is the HTTP status a page should answer with for err.
func StatusCode(err error) int {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code >= 400 && richErr.Code <= 599 {
		return richErr.Code
	}
	return http.StatusInternalServerError
}
