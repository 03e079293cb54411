// ABOUTME: Tests for the authentication pipeline: policy, verification, errors

package sigv4

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlock/sigv4gate/internal/principal"
	"github.com/driftlock/sigv4gate/internal/requestid"
)

const (
	testAccessKey = "AKIDEXAMPLE"
	testSecretKey = "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY"
	testNamespace = "https://sts.amazonaws.com/doc/2011-06-15/"
)

// testKeys resolves the one test access key, deriving the scoped signing
// key the way a real resolver would.
func testKeys() KeyProvider {
	return KeyProviderFunc(func(ctx context.Context, req *SigningKeyRequest) (*SigningKeyResponse, error) {
		if req.SessionToken == "expired" {
			return nil, ErrExpiredToken("The security token included in the request is expired")
		}

		if req.AccessKeyID != testAccessKey {
			return nil, ErrUnknownAccessKey()
		}

		user, err := principal.NewUser("aws", "123456789012", "/", "test")
		if err != nil {
			return nil, err
		}
		return &SigningKeyResponse{
			Principal:  principal.NewPrincipal(user),
			Session:    principal.Session{"aws:username": "test"},
			SigningKey: SecretKey(testSecretKey).SigningKey(req.RequestDate, req.Region, req.Service),
		}, nil
	})
}

// countingHandler records how often it was invoked and echoes the
// authenticated principal.
type countingHandler struct {
	calls atomic.Int64
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.calls.Add(1)

	p, ok := principal.FromContext(r.Context())
	if !ok {
		http.Error(w, "no principal", http.StatusUnauthorized)
		return
	}

	body, _ := io.ReadAll(r.Body)
	fmt.Fprintf(w, "Hello %s (%d bytes)", p.Identities()[0].ARN(), len(body))
}

func testPipeline(t *testing.T, mutate func(*PipelineConfig)) (*Pipeline, *countingHandler) {
	t.Helper()

	handler := &countingHandler{}
	cfg := PipelineConfig{
		Region:  "us-east-1",
		Service: "service",
		Keys:    testKeys(),
		Handler: handler,
		Errors:  NewXMLErrorMapper(testNamespace),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	pipe, err := NewPipeline(cfg)
	require.NoError(t, err)
	return pipe, handler
}

// signedGet builds a correctly signed GET request for the test pipeline.
func signedGet(t *testing.T, target string, secret SecretKey) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, target, nil)
	signRequest(r, testAccessKey, secret, "us-east-1", "service", time.Now())
	return r
}

func TestNewPipeline_RequiredFields(t *testing.T) {
	base := func() PipelineConfig {
		return PipelineConfig{
			Region:  "us-east-1",
			Service: "service",
			Keys:    testKeys(),
			Handler: &countingHandler{},
			Errors:  NewXMLErrorMapper(testNamespace),
		}
	}

	cases := []struct {
		name   string
		mutate func(*PipelineConfig)
	}{
		{"missing_region", func(c *PipelineConfig) { c.Region = "" }},
		{"missing_service", func(c *PipelineConfig) { c.Service = "" }},
		{"missing_keys", func(c *PipelineConfig) { c.Keys = nil }},
		{"missing_handler", func(c *PipelineConfig) { c.Handler = nil }},
		{"missing_errors", func(c *PipelineConfig) { c.Errors = nil }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			_, err := NewPipeline(cfg)
			assert.Error(t, err)
		})
	}

	cfg := base()
	_, err := NewPipeline(cfg)
	assert.NoError(t, err)
}

func TestPipeline_SignedRequestPassesThrough(t *testing.T) {
	pipe, handler := testPipeline(t, nil)

	r := signedGet(t, "https://service.example.com/", SecretKey(testSecretKey))
	w := httptest.NewRecorder()
	pipe.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Hello arn:aws:iam::123456789012:user/test (0 bytes)", w.Body.String())
	assert.Equal(t, int64(1), handler.calls.Load())
}

func TestPipeline_WrongSecretRejected(t *testing.T) {
	pipe, handler := testPipeline(t, nil)

	r := signedGet(t, "https://service.example.com/", SecretKey("WRONGKEY"))
	w := httptest.NewRecorder()
	pipe.ServeHTTP(w, r)

	assert.Equal(t, 403, w.Code)
	assert.Equal(t, "text/xml; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, int64(0), handler.calls.Load())

	// The RequestId value varies; redact it before comparing.
	body := regexp.MustCompile("<RequestId>[-0-9a-f]+</RequestId>").ReplaceAllString(w.Body.String(), "")
	assert.Equal(t, `<ErrorResponse xmlns="https://sts.amazonaws.com/doc/2011-06-15/">`+
		`<Error><Type>Sender</Type><Code>SignatureDoesNotMatch</Code>`+
		`<Message>The request signature we calculated does not match the signature you provided. `+
		`Check your AWS Secret Access Key and signing method. `+
		`Consult the service documentation for details.</Message></Error></ErrorResponse>`, body)
}

func TestPipeline_MethodNotAllowed(t *testing.T) {
	pipe, handler := testPipeline(t, func(c *PipelineConfig) {
		c.AllowedMethods = []string{http.MethodGet}
	})

	r := httptest.NewRequest(http.MethodPost, "https://service.example.com/", strings.NewReader("x=1"))
	signRequest(r, testAccessKey, SecretKey(testSecretKey), "us-east-1", "service", time.Now())
	w := httptest.NewRecorder()
	pipe.ServeHTTP(w, r)

	assert.Equal(t, 405, w.Code)
	assert.Contains(t, w.Body.String(), "<Code>InvalidRequestMethod</Code>")
	assert.Contains(t, w.Body.String(), "POST")
	assert.Equal(t, int64(0), handler.calls.Load(), "downstream handler must not run")
}

func TestPipeline_ContentTypePolicy(t *testing.T) {
	newPipe := func(t *testing.T) (*Pipeline, *countingHandler) {
		return testPipeline(t, func(c *PipelineConfig) {
			c.AllowedContentTypes = []string{"application/x-www-form-urlencoded"}
		})
	}

	t.Run("allowed_type_passes", func(t *testing.T) {
		pipe, handler := newPipe(t)
		r := httptest.NewRequest(http.MethodPost, "https://service.example.com/", strings.NewReader("Action=Test"))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
		signRequest(r, testAccessKey, SecretKey(testSecretKey), "us-east-1", "service", time.Now())
		w := httptest.NewRecorder()
		pipe.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, int64(1), handler.calls.Load())
	})

	t.Run("disallowed_type_rejected", func(t *testing.T) {
		pipe, handler := newPipe(t)
		r := httptest.NewRequest(http.MethodPost, "https://service.example.com/", strings.NewReader("{}"))
		r.Header.Set("Content-Type", "application/json")
		signRequest(r, testAccessKey, SecretKey(testSecretKey), "us-east-1", "service", time.Now())
		w := httptest.NewRecorder()
		pipe.ServeHTTP(w, r)

		assert.Equal(t, 415, w.Code)
		assert.Contains(t, w.Body.String(), "<Code>InvalidContentType</Code>")
		assert.Equal(t, int64(0), handler.calls.Load())
	})

	t.Run("mislabeled_bodyless_get_passes", func(t *testing.T) {
		// Some clients set application/octet-stream on GETs with no body.
		pipe, handler := newPipe(t)
		r := signedGet(t, "https://service.example.com/", SecretKey(testSecretKey))
		r.Header.Set("Content-Type", "application/octet-stream")
		w := httptest.NewRecorder()
		pipe.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, int64(1), handler.calls.Load())
	})

	t.Run("get_with_content_length_rejected", func(t *testing.T) {
		pipe, handler := newPipe(t)
		r := signedGet(t, "https://service.example.com/", SecretKey(testSecretKey))
		r.Header.Set("Content-Type", "application/octet-stream")
		r.Header.Set("Content-Length", "10")
		w := httptest.NewRecorder()
		pipe.ServeHTTP(w, r)

		assert.Equal(t, 415, w.Code)
		assert.Equal(t, int64(0), handler.calls.Load())
	})

	t.Run("chunked_get_over_real_server_rejected", func(t *testing.T) {
		// A server-parsed request carries chunked encoding in
		// r.TransferEncoding, not in the header map; the exception must not
		// open up for it.
		pipe, handler := newPipe(t)
		srv := httptest.NewServer(pipe)
		defer srv.Close()

		req, err := http.NewRequest(http.MethodGet, srv.URL+"/", strings.NewReader("payload"))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/octet-stream")
		req.ContentLength = -1 // forces chunked transfer encoding

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		assert.Equal(t, 415, resp.StatusCode)
		assert.Contains(t, string(body), "<Code>InvalidContentType</Code>")
		assert.Equal(t, int64(0), handler.calls.Load())
	})

	t.Run("bodyless_get_over_real_server_passes_policy", func(t *testing.T) {
		pipe, _ := newPipe(t)
		srv := httptest.NewServer(pipe)
		defer srv.Close()

		req, err := http.NewRequest(http.MethodGet, srv.URL+"/", nil)
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/octet-stream")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		// The unsigned request clears the content-type policy and fails at
		// the authentication step instead.
		assert.Equal(t, 403, resp.StatusCode)
		assert.Contains(t, string(body), "<Code>MissingAuthenticationToken</Code>")
	})

	t.Run("get_with_chunked_encoding_rejected", func(t *testing.T) {
		pipe, handler := newPipe(t)
		r := signedGet(t, "https://service.example.com/", SecretKey(testSecretKey))
		r.Header.Set("Content-Type", "application/octet-stream")
		r.Header.Set("Transfer-Encoding", "gzip, chunked")
		w := httptest.NewRecorder()
		pipe.ServeHTTP(w, r)

		assert.Equal(t, 415, w.Code)
		assert.Equal(t, int64(0), handler.calls.Load())
	})
}

func TestPipeline_UnknownAccessKey(t *testing.T) {
	pipe, handler := testPipeline(t, nil)

	r := httptest.NewRequest(http.MethodGet, "https://service.example.com/", nil)
	signRequest(r, "AKIANOSUCHKEYEXISTS1", SecretKey(testSecretKey), "us-east-1", "service", time.Now())
	w := httptest.NewRecorder()
	pipe.ServeHTTP(w, r)

	assert.Equal(t, 403, w.Code)
	assert.Contains(t, w.Body.String(), "<Code>InvalidClientTokenId</Code>")
	assert.Equal(t, int64(0), handler.calls.Load())
}

func TestPipeline_InvalidSessionToken(t *testing.T) {
	pipe, _ := testPipeline(t, nil)

	r := httptest.NewRequest(http.MethodGet, "https://service.example.com/", nil)
	r.Header.Set("X-Amz-Security-Token", "expired")
	signRequest(r, testAccessKey, SecretKey(testSecretKey), "us-east-1", "service", time.Now())
	w := httptest.NewRecorder()
	pipe.ServeHTTP(w, r)

	assert.Equal(t, 403, w.Code)
	assert.Contains(t, w.Body.String(), "<Code>ExpiredToken</Code>")
}

func TestPipeline_ReusesPropagatedRequestID(t *testing.T) {
	pipe, _ := testPipeline(t, nil)

	id := requestid.FromTimestampAndRandom(1664424704, 99)
	r := httptest.NewRequest(http.MethodGet, "https://service.example.com/", nil)
	r = r.WithContext(requestid.WithRequestID(r.Context(), id))

	w := httptest.NewRecorder()
	pipe.ServeHTTP(w, r)

	// The unsigned request fails, and the mapped response carries the
	// propagated id, not a fresh one.
	assert.Contains(t, w.Body.String(), "<RequestId>"+id.String()+"</RequestId>")
}

func TestPipeline_StaleSignatureRejected(t *testing.T) {
	pipe, handler := testPipeline(t, nil)
	pipe.now = func() time.Time { return time.Now().Add(30 * time.Minute) }

	r := signedGet(t, "https://service.example.com/", SecretKey(testSecretKey))
	w := httptest.NewRecorder()
	pipe.ServeHTTP(w, r)

	assert.Equal(t, 403, w.Code)
	assert.Contains(t, w.Body.String(), "<Code>RequestExpired</Code>")
	assert.Equal(t, int64(0), handler.calls.Load())
}

func TestPipeline_ForeignErrorGetsGeneric500(t *testing.T) {
	pipe, _ := testPipeline(t, func(c *PipelineConfig) {
		c.Keys = KeyProviderFunc(func(ctx context.Context, req *SigningKeyRequest) (*SigningKeyResponse, error) {
			return nil, errors.New("backend exploded: credentials=hunter2")
		})
	})

	r := signedGet(t, "https://service.example.com/", SecretKey(testSecretKey))
	w := httptest.NewRecorder()
	pipe.ServeHTTP(w, r)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "hunter2")
}

func TestPipeline_Ready(t *testing.T) {
	t.Run("defaults_ready", func(t *testing.T) {
		pipe, _ := testPipeline(t, nil)
		assert.NoError(t, pipe.Ready(context.Background()))
	})

	t.Run("key_provider_failure_surfaces", func(t *testing.T) {
		pipe, _ := testPipeline(t, func(c *PipelineConfig) {
			c.Keys = unreadyKeys{}
		})
		err := pipe.Ready(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "key provider")
	})

	t.Run("handler_failure_surfaces", func(t *testing.T) {
		pipe, _ := testPipeline(t, func(c *PipelineConfig) {
			c.Handler = unreadyHandler{}
		})
		err := pipe.Ready(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "handler")
	})
}

type unreadyKeys struct{}

func (unreadyKeys) GetSigningKey(ctx context.Context, req *SigningKeyRequest) (*SigningKeyResponse, error) {
	return nil, ErrUnknownAccessKey()
}

func (unreadyKeys) Ready(ctx context.Context) error {
	return errors.New("connection pool exhausted")
}

type unreadyHandler struct{}

func (unreadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {}

func (unreadyHandler) Ready(ctx context.Context) error {
	return errors.New("warming up")
}

func TestPipeline_Clone(t *testing.T) {
	pipe, _ := testPipeline(t, nil)
	clone := pipe.Clone()
	assert.NotSame(t, pipe, clone)

	r := signedGet(t, "https://service.example.com/", SecretKey(testSecretKey))
	w := httptest.NewRecorder()
	clone.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPipeline_BodyRestoredForDownstream(t *testing.T) {
	pipe, _ := testPipeline(t, nil)

	r := httptest.NewRequest(http.MethodPost, "https://service.example.com/", strings.NewReader("Action=Test&Version=1"))
	signRequest(r, testAccessKey, SecretKey(testSecretKey), "us-east-1", "service", time.Now())
	w := httptest.NewRecorder()
	pipe.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "(21 bytes)")
}
