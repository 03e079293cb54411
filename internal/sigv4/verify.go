// ABOUTME: SigV4 verification: canonical request, string-to-sign, comparison
// ABOUTME: Resolves the signing key through the injected KeyProvider callback

package sigv4

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/driftlock/sigv4gate/internal/principal"
)

const (
	authScheme      = "AWS4-HMAC-SHA256"
	scopeTerminator = "aws4_request"
	amzDateFormat   = "20060102T150405Z"
	shortDateFormat = "20060102"
	unsignedPayload = "UNSIGNED-PAYLOAD"
	headerAmzDate   = "X-Amz-Date"
	headerAmzToken  = "X-Amz-Security-Token"
	headerAmzSha256 = "X-Amz-Content-Sha256"
)

// VerifiedRequest is the result of a successful signature verification.
type VerifiedRequest struct {
	// Body is the request payload consumed during verification. The caller
	// restores it on the request before forwarding downstream.
	Body      []byte
	Principal principal.Principal
	Session   principal.Session
}

// authorization is the parsed AWS4-HMAC-SHA256 Authorization header.
type authorization struct {
	accessKeyID   string
	scopeDate     string
	scopeRegion   string
	scopeService  string
	signedHeaders []string
	signature     string
}

// VerifyRequest authenticates r against the SigV4 signing protocol. The
// signing key is resolved through keys; the SigningKeyRequest is derived
// here from the request's credential scope. On success the request body has
// been fully read and is returned in the VerifiedRequest.
func VerifyRequest(ctx context.Context, r *http.Request, region, service string, keys KeyProvider,
	now time.Time, required SignedHeaderRequirements, opts SignatureOptions) (*VerifiedRequest, error) {

	auth, err := parseAuthorization(r.Header.Get("Authorization"))
	if err != nil {
		return nil, err
	}

	if auth.scopeRegion != region {
		return nil, credentialScopeError(fmt.Sprintf("Credential should be scoped to a valid region, not %q", auth.scopeRegion))
	}
	if auth.scopeService != service {
		return nil, credentialScopeError(fmt.Sprintf("Credential should be scoped to correct service: %q", service))
	}

	reqDate, err := requestDate(r)
	if err != nil {
		return nil, err
	}
	if auth.scopeDate != reqDate.UTC().Format(shortDateFormat) {
		return nil, credentialScopeError("Date in Credential scope does not match YYYYMMDD from ISO 8601 date")
	}

	skew := now.Sub(reqDate)
	if skew < 0 {
		skew = -skew
	}
	if skew > opts.skew() {
		return nil, ErrRequestExpired(fmt.Sprintf("Request timestamp %s is outside the allowed window",
			reqDate.UTC().Format(amzDateFormat)))
	}

	if err := checkSignedHeaders(auth.signedHeaders, required); err != nil {
		return nil, err
	}

	var body []byte
	if r.Body != nil {
		body, err = io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("reading request body: %w", err)
		}
	}

	hash, err := payloadHash(r, body, opts)
	if err != nil {
		return nil, err
	}

	canonical := canonicalRequest(r, auth.signedHeaders, hash)
	scope := strings.Join([]string{auth.scopeDate, auth.scopeRegion, auth.scopeService, scopeTerminator}, "/")
	toSign := stringToSign(reqDate, scope, canonical)

	keyReq := &SigningKeyRequest{
		AccessKeyID:  auth.accessKeyID,
		SessionToken: r.Header.Get(headerAmzToken),
		RequestDate:  reqDate,
		Region:       region,
		Service:      service,
	}
	keyResp, err := keys.GetSigningKey(ctx, keyReq)
	if err != nil {
		return nil, err
	}

	expected := hex.EncodeToString(keyResp.SigningKey.Sign(toSign))
	if !hmac.Equal([]byte(expected), []byte(auth.signature)) {
		return nil, ErrSignatureDoesNotMatch()
	}

	return &VerifiedRequest{Body: body, Principal: keyResp.Principal, Session: keyResp.Session}, nil
}

// credentialScopeError reports a credential scope that does not match the
// service's expectations.
func credentialScopeError(message string) *AuthError {
	return &AuthError{Code: CodeSignatureDoesNotMatch, Status: 403, Message: message}
}

// parseAuthorization parses an AWS4-HMAC-SHA256 Authorization header value.
func parseAuthorization(header string) (*authorization, error) {
	if header == "" {
		return nil, ErrMissingAuthenticationToken()
	}

	scheme, params, found := strings.Cut(header, " ")
	if !found || scheme != authScheme {
		return nil, ErrIncompleteSignature(fmt.Sprintf("Unsupported authorization scheme %q", scheme))
	}

	var auth authorization
	var haveCredential, haveSignedHeaders, haveSignature bool
	for _, part := range strings.Split(params, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return nil, ErrIncompleteSignature("Authorization header is malformed")
		}
		switch key {
		case "Credential":
			fields := strings.Split(value, "/")
			if len(fields) != 5 || fields[4] != scopeTerminator {
				return nil, ErrIncompleteSignature("Credential must have the form <access-key>/<date>/<region>/<service>/aws4_request")
			}
			auth.accessKeyID = fields[0]
			auth.scopeDate = fields[1]
			auth.scopeRegion = fields[2]
			auth.scopeService = fields[3]
			haveCredential = true
		case "SignedHeaders":
			for _, h := range strings.Split(value, ";") {
				auth.signedHeaders = append(auth.signedHeaders, strings.ToLower(h))
			}
			haveSignedHeaders = true
		case "Signature":
			auth.signature = value
			haveSignature = true
		}
	}

	if !haveCredential || !haveSignedHeaders || !haveSignature {
		return nil, ErrIncompleteSignature("Authorization header requires Credential, SignedHeaders and Signature")
	}
	return &auth, nil
}

// requestDate extracts the request timestamp from X-Amz-Date, falling back
// to the Date header.
func requestDate(r *http.Request) (time.Time, error) {
	if v := r.Header.Get(headerAmzDate); v != "" {
		t, err := time.Parse(amzDateFormat, v)
		if err != nil {
			return time.Time{}, ErrIncompleteSignature(fmt.Sprintf("X-Amz-Date %q is not a valid ISO 8601 timestamp", v))
		}
		return t, nil
	}
	if v := r.Header.Get("Date"); v != "" {
		t, err := http.ParseTime(v)
		if err != nil {
			return time.Time{}, ErrIncompleteSignature(fmt.Sprintf("Date %q is not a valid HTTP date", v))
		}
		return t, nil
	}
	return time.Time{}, ErrIncompleteSignature("Date or X-Amz-Date header is required")
}

// checkSignedHeaders enforces the signed-header policy. Host must always be
// covered by the signature.
func checkSignedHeaders(signed []string, required SignedHeaderRequirements) error {
	have := make(map[string]bool, len(signed))
	for _, h := range signed {
		have[h] = true
	}
	if !have["host"] {
		return ErrIncompleteSignature("Host header must be signed")
	}
	for _, h := range required.Always {
		if !have[strings.ToLower(h)] {
			return ErrIncompleteSignature(fmt.Sprintf("Header %q must be signed", h))
		}
	}
	return nil
}

// payloadHash returns the hex payload hash to use in the canonical request.
// A client-supplied X-Amz-Content-Sha256 takes precedence; it is what the
// client signed.
func payloadHash(r *http.Request, body []byte, opts SignatureOptions) (string, error) {
	if v := r.Header.Get(headerAmzSha256); v != "" {
		if v == unsignedPayload {
			if !opts.AllowUnsignedPayload {
				return "", ErrSignatureDoesNotMatch()
			}
			return unsignedPayload, nil
		}
		return v, nil
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalRequest builds the SigV4 canonical request string.
func canonicalRequest(r *http.Request, signedHeaders []string, payloadHash string) string {
	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteByte('\n')
	b.WriteString(canonicalURI(r.URL))
	b.WriteByte('\n')
	b.WriteString(canonicalQuery(r.URL))
	b.WriteByte('\n')
	b.WriteString(canonicalHeaders(r, signedHeaders))
	b.WriteByte('\n')
	b.WriteString(strings.Join(signedHeaders, ";"))
	b.WriteByte('\n')
	b.WriteString(payloadHash)
	return b.String()
}

// canonicalURI returns the URI-encoded path. Per the SigV4 rules for
// non-S3 services, each already-escaped segment is encoded once more.
func canonicalURI(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		return "/"
	}
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = uriEncode(s, false)
	}
	return strings.Join(segments, "/")
}

// canonicalQuery returns the sorted, URI-encoded query string.
func canonicalQuery(u *url.URL) string {
	values, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		// An unparseable query cannot have been signed consistently; use
		// the raw form so verification fails loudly rather than silently.
		return u.RawQuery
	}

	var pairs []string
	for key, vs := range values {
		for _, v := range vs {
			pairs = append(pairs, uriEncode(key, true)+"="+uriEncode(v, true))
		}
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "&")
}

// canonicalHeaders returns the lowercased name:value lines for the signed
// headers, values trimmed and internal runs of spaces collapsed. Header.Values
// returns the request's own backing slice, so normalization writes into a
// copy.
func canonicalHeaders(r *http.Request, signedHeaders []string) string {
	var b strings.Builder
	for _, name := range signedHeaders {
		var values []string
		if name == "host" {
			values = []string{r.Host}
		} else {
			values = r.Header.Values(name)
		}
		normalized := make([]string, len(values))
		for i, v := range values {
			normalized[i] = collapseSpaces(strings.TrimSpace(v))
		}
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(strings.Join(normalized, ","))
		b.WriteByte('\n')
	}
	return b.String()
}

// stringToSign builds the SigV4 string-to-sign.
func stringToSign(reqDate time.Time, scope, canonicalRequest string) string {
	sum := sha256.Sum256([]byte(canonicalRequest))
	return strings.Join([]string{
		authScheme,
		reqDate.UTC().Format(amzDateFormat),
		scope,
		hex.EncodeToString(sum[:]),
	}, "\n")
}

// uriEncode percent-encodes s per the SigV4 rules: unreserved characters
// pass through, everything else is %XX with uppercase hex. Slashes are kept
// literal in paths and encoded in query components.
func uriEncode(s string, encodeSlash bool) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '-', c == '.', c == '_', c == '~', c == '%':
			b.WriteByte(c)
		case c == '/' && !encodeSlash:
			b.WriteByte(c)
		default:
			b.WriteString(fmt.Sprintf("%%%02X", c))
		}
	}
	return b.String()
}

// collapseSpaces replaces runs of spaces with a single space.
func collapseSpaces(s string) string {
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return s
}
