// Package sigv4 authenticates AWS SigV4-signed HTTP requests before they
// reach application logic.
//
// # Pipeline
//
// The central type is Pipeline, an http.Handler that wraps a downstream
// application handler:
//
//	pipe, err := sigv4.NewPipeline(sigv4.PipelineConfig{
//		Region:  "us-east-1",
//		Service: "example",
//		Keys:    keyStore,
//		Handler: app,
//		Errors:  sigv4.NewXMLErrorMapper("https://example.com/doc/2024-01-01/"),
//	})
//
// Per request the pipeline attaches a correlation id, enforces the
// method/content-type admission policy, verifies the request signature, and
// either forwards the request (with the authenticated principal and session
// attributes in its context) or writes a mapped error response. Policy
// checks always run, and short-circuit, before any signature work.
//
// # Collaborators
//
// Three capability interfaces keep the pipeline pluggable:
//
//   - KeyProvider resolves an access key id to a scoped signing key. The
//     verifier calls it with a SigningKeyRequest derived from the request's
//     credential scope; the pipeline hands it through untouched.
//   - ErrorMapper renders classified errors onto the wire. XMLErrorMapper
//     produces AWS-style <ErrorResponse> documents.
//   - The downstream handler is a plain http.Handler. Its output is never
//     error mapped.
//
// Collaborators that implement ReadyChecker participate in the pipeline's
// joint readiness check.
package sigv4
