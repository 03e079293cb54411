// ABOUTME: HTTP authentication pipeline: policy checks, verification, dispatch
// ABOUTME: Uniformly maps authentication failures into wire responses

package sigv4

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/driftlock/sigv4gate/internal/principal"
	"github.com/driftlock/sigv4gate/internal/requestid"
)

// PipelineConfig is the construction-time configuration for a Pipeline.
// Region, Service, Keys, Handler and Errors are required.
type PipelineConfig struct {
	Region  string
	Service string

	// AllowedMethods restricts request methods. Empty allows all.
	AllowedMethods []string

	// AllowedContentTypes restricts content types by base type. Empty
	// allows all.
	AllowedContentTypes []string

	SignedHeaders SignedHeaderRequirements
	Options       SignatureOptions

	Keys    KeyProvider
	Handler http.Handler
	Errors  ErrorMapper

	Logger *slog.Logger
}

// Pipeline authenticates SigV4-signed requests before dispatching them to
// the downstream handler. It is immutable after construction and safe to
// share across connections.
type Pipeline struct {
	region              string
	service             string
	allowedMethods      []string
	allowedContentTypes []string
	signedHeaders       SignedHeaderRequirements
	options             SignatureOptions
	keys                KeyProvider
	handler             http.Handler
	errors              ErrorMapper
	logger              *slog.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// NewPipeline validates the configuration and builds a Pipeline. It fails
// fast on any missing required field rather than producing a partially
// usable service.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("pipeline config: region is required")
	}
	if cfg.Service == "" {
		return nil, fmt.Errorf("pipeline config: service is required")
	}
	if cfg.Keys == nil {
		return nil, fmt.Errorf("pipeline config: key provider is required")
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("pipeline config: downstream handler is required")
	}
	if cfg.Errors == nil {
		return nil, fmt.Errorf("pipeline config: error mapper is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "sigv4")
	}

	return &Pipeline{
		region:              cfg.Region,
		service:             cfg.Service,
		allowedMethods:      cfg.AllowedMethods,
		allowedContentTypes: cfg.AllowedContentTypes,
		signedHeaders:       cfg.SignedHeaders,
		options:             cfg.Options,
		keys:                cfg.Keys,
		handler:             cfg.Handler,
		errors:              cfg.Errors,
		logger:              logger,
		now:                 time.Now,
	}, nil
}

// Clone returns a pipeline instance sharing the same immutable configuration
// and collaborator handles. No deep state is copied.
func (p *Pipeline) Clone() *Pipeline {
	clone := *p
	return &clone
}

// Ready reports whether the pipeline can accept requests: the key provider
// and, if it participates in readiness, the downstream handler must both be
// ready. The first failure is surfaced.
func (p *Pipeline) Ready(ctx context.Context) error {
	if rc, ok := p.keys.(ReadyChecker); ok {
		if err := rc.Ready(ctx); err != nil {
			return fmt.Errorf("key provider not ready: %w", err)
		}
	}
	if rc, ok := p.handler.(ReadyChecker); ok {
		if err := rc.Ready(ctx); err != nil {
			return fmt.Errorf("handler not ready: %w", err)
		}
	}
	return nil
}

// ServeHTTP authenticates the request and either forwards it downstream or
// writes a mapped error response. Policy checks run strictly before any
// verification work and short-circuit on the first failure.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// An id propagated by an outer layer (or a retry) is reused unchanged.
	id, ok := requestid.FromContext(ctx)
	if !ok {
		id = requestid.New()
		ctx = requestid.WithRequestID(ctx, id)
		r = r.WithContext(ctx)
		p.logger.Debug("generated request id", "request_id", id)
	}

	if err := p.checkMethod(r); err != nil {
		p.writeError(w, err, id)
		return
	}
	if err := p.checkContentType(r); err != nil {
		p.writeError(w, err, id)
		return
	}

	verified, err := VerifyRequest(ctx, r, p.region, p.service, p.keys, p.now(), p.signedHeaders, p.options)
	if err != nil {
		p.writeError(w, err, id)
		return
	}

	ctx = principal.WithPrincipal(ctx, verified.Principal)
	ctx = principal.WithSession(ctx, verified.Session)
	r = r.WithContext(ctx)
	r.Body = io.NopCloser(bytes.NewReader(verified.Body))
	r.ContentLength = int64(len(verified.Body))

	// Downstream output, including downstream failures, is never error
	// mapped; the mapper is for this layer's own errors only.
	p.handler.ServeHTTP(w, r)
}

// checkMethod enforces the allowed-methods policy.
func (p *Pipeline) checkMethod(r *http.Request) error {
	if len(p.allowedMethods) == 0 {
		return nil
	}
	for _, m := range p.allowedMethods {
		if r.Method == m {
			return nil
		}
	}
	return ErrInvalidRequestMethod(r.Method)
}

// checkContentType enforces the allowed-content-types policy. A GET request
// that carries a content type but clearly has no body is accepted anyway:
// some clients label bodyless GETs application/octet-stream.
func (p *Pipeline) checkContentType(r *http.Request) error {
	if len(p.allowedContentTypes) == 0 {
		return nil
	}

	header := r.Header.Get("Content-Type")
	if header == "" {
		return nil
	}

	baseType, _, err := mime.ParseMediaType(header)
	if err != nil {
		p.logger.Debug("unparseable content type", "content_type", header)
		return ErrInvalidContentType()
	}

	for _, ct := range p.allowedContentTypes {
		if baseType == ct {
			return nil
		}
	}

	if r.Method == http.MethodGet && !declaresBody(r) && r.Header.Get("Expect") == "" {
		return nil
	}

	p.logger.Info("rejected content type", "content_type", baseType)
	return ErrInvalidContentType()
}

// declaresBody reports whether the request announces a payload via
// Content-Length or chunked transfer encoding. The server strips the
// Transfer-Encoding header during parsing and exposes it as
// r.TransferEncoding, and a chunked body surfaces as ContentLength -1, so
// both the parsed fields and the raw headers are consulted.
func declaresBody(r *http.Request) bool {
	if r.ContentLength != 0 || r.Header.Get("Content-Length") != "" {
		return true
	}
	for _, enc := range r.TransferEncoding {
		if enc == "chunked" {
			return true
		}
	}
	for _, part := range strings.Split(r.Header.Get("Transfer-Encoding"), ",") {
		if strings.TrimSpace(part) == "chunked" {
			return true
		}
	}
	return false
}

// writeError maps err to a wire response. Errors the mapper does not
// recognize get a generic 500 with the detail kept server-side.
func (p *Pipeline) writeError(w http.ResponseWriter, err error, id requestid.RequestID) {
	resp, ok := p.errors.MapError(err, &id)
	if !ok {
		p.logger.Error("unmapped authentication error", "error", err, "request_id", id)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", resp.ContentType)
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.Body); err != nil {
		p.logger.Debug("writing error response", "error", err)
	}
}
