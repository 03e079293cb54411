// ABOUTME: Test helper that signs requests the way a SigV4 client would

package sigv4

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// signRequest signs r in place with an AWS4-HMAC-SHA256 Authorization
// header, the way a well-behaved client would. Host and X-Amz-Date are
// always signed; extraHeaders adds more.
func signRequest(r *http.Request, accessKeyID string, secret SecretKey, region, service string,
	when time.Time, extraHeaders ...string) {

	amzDate := when.UTC().Format(amzDateFormat)
	r.Header.Set(headerAmzDate, amzDate)

	signed := append([]string{"host", "x-amz-date"}, extraHeaders...)
	for i, h := range signed {
		signed[i] = strings.ToLower(h)
	}
	sort.Strings(signed)

	var body []byte
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	// A pre-set X-Amz-Content-Sha256 header takes precedence, as it does on
	// the verification side.
	hash := r.Header.Get(headerAmzSha256)
	if hash == "" {
		sum := sha256.Sum256(body)
		hash = hex.EncodeToString(sum[:])
	}

	canonical := canonicalRequest(r, signed, hash)
	shortDate := when.UTC().Format(shortDateFormat)
	scope := strings.Join([]string{shortDate, region, service, scopeTerminator}, "/")
	toSign := stringToSign(when, scope, canonical)
	signature := hex.EncodeToString(secret.SigningKey(when, region, service).Sign(toSign))

	r.Header.Set("Authorization", fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		authScheme, accessKeyID, scope, strings.Join(signed, ";"), signature))
}
