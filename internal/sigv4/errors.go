// ABOUTME: Classified authentication errors with stable codes and HTTP statuses
// ABOUTME: Raw backend errors never cross this boundary; only AuthError does

package sigv4

import "fmt"

// Stable machine-readable error codes. These are part of the wire contract:
// clients match on them, so they must not change.
const (
	CodeInvalidClientTokenID       = "InvalidClientTokenId"
	CodeInvalidRequestMethod       = "InvalidRequestMethod"
	CodeInvalidContentType         = "InvalidContentType"
	CodeExpiredToken               = "ExpiredToken"
	CodeInternalFailure            = "InternalFailure"
	CodeMissingAuthenticationToken = "MissingAuthenticationToken"
	CodeIncompleteSignature        = "IncompleteSignature"
	CodeSignatureDoesNotMatch      = "SignatureDoesNotMatch"
	CodeRequestExpired             = "RequestExpired"
)

// msgUnknownAccessKey is deliberately generic: it must not reveal whether the
// key exists, is malformed, or belongs to an unsupported credential type.
const msgUnknownAccessKey = "The AWS access key provided does not exist in our records."

// msgSignatureDoesNotMatch matches the message AWS services return for a
// signature mismatch.
const msgSignatureDoesNotMatch = "The request signature we calculated does not match the signature " +
	"you provided. Check your AWS Secret Access Key and signing method. " +
	"Consult the service documentation for details."

// AuthError is an authentication-layer failure tagged with a stable code and
// an HTTP status. Errors from the downstream application handler are never
// wrapped in AuthError; they pass through unmodified.
type AuthError struct {
	Code    string
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// ErrUnknownAccessKey returns the single undifferentiated error used for any
// access key that cannot be resolved, regardless of why.
func ErrUnknownAccessKey() *AuthError {
	return &AuthError{Code: CodeInvalidClientTokenID, Status: 403, Message: msgUnknownAccessKey}
}

// ErrInvalidRequestMethod reports a request method outside the allow-list.
func ErrInvalidRequestMethod(method string) *AuthError {
	return &AuthError{
		Code:    CodeInvalidRequestMethod,
		Status:  405,
		Message: fmt.Sprintf("Unsupported request method %q", method),
	}
}

// ErrInvalidContentType reports a content type outside the allow-list.
func ErrInvalidContentType() *AuthError {
	return &AuthError{
		Code:    CodeInvalidContentType,
		Status:  415,
		Message: "The content-type of the request is unsupported",
	}
}

// ErrExpiredToken reports an invalid or expired session token.
func ErrExpiredToken(message string) *AuthError {
	return &AuthError{Code: CodeExpiredToken, Status: 403, Message: message}
}

// ErrInternalFailure is returned for any internal error. The underlying
// cause must be logged server-side; the caller only ever sees this generic
// message.
func ErrInternalFailure() *AuthError {
	return &AuthError{
		Code:    CodeInternalFailure,
		Status:  500,
		Message: "An internal error occurred while processing the request",
	}
}

// ErrMissingAuthenticationToken reports a request with no Authorization
// header or query-string credentials.
func ErrMissingAuthenticationToken() *AuthError {
	return &AuthError{
		Code:    CodeMissingAuthenticationToken,
		Status:  403,
		Message: "Request is missing Authentication Token",
	}
}

// ErrIncompleteSignature reports a structurally invalid Authorization header
// or missing required signed headers.
func ErrIncompleteSignature(message string) *AuthError {
	return &AuthError{Code: CodeIncompleteSignature, Status: 400, Message: message}
}

// ErrSignatureDoesNotMatch reports a signature that fails verification.
func ErrSignatureDoesNotMatch() *AuthError {
	return &AuthError{Code: CodeSignatureDoesNotMatch, Status: 403, Message: msgSignatureDoesNotMatch}
}

// ErrRequestExpired reports a request timestamp outside the allowed clock
// skew window.
func ErrRequestExpired(message string) *AuthError {
	return &AuthError{Code: CodeRequestExpired, Status: 403, Message: message}
}
