// ABOUTME: AWS4 signing key derivation from a long-term secret key
// ABOUTME: secret -> kDate -> kRegion -> kService -> kSigning HMAC chain

package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"time"
)

// SecretKey is a long-term secret access key as stored in the credential
// database.
type SecretKey string

// SigningKey is key material scoped to a date, region and service. It is
// valid only for requests signed within that scope.
type SigningKey []byte

// SigningKey derives the date/region/service-scoped signing key for this
// secret.
func (k SecretKey) SigningKey(date time.Time, region, service string) SigningKey {
	kDate := hmacSHA256([]byte("AWS4"+string(k)), []byte(date.UTC().Format("20060102")))
	kRegion := hmacSHA256(kDate, []byte(region))
	kService := hmacSHA256(kRegion, []byte(service))
	return hmacSHA256(kService, []byte("aws4_request"))
}

// Sign computes the signature for a string-to-sign under this key.
func (k SigningKey) Sign(stringToSign string) []byte {
	return hmacSHA256(k, []byte(stringToSign))
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}
