// ABOUTME: Demo downstream application served behind the authentication gate
// ABOUTME: Echoes the authenticated caller's identity and session context

package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/driftlock/sigv4gate/internal/principal"
	"github.com/driftlock/sigv4gate/internal/requestid"
)

// whoamiResponse describes the authenticated caller.
type whoamiResponse struct {
	RequestID string            `json:"request_id"`
	ARNs      []string          `json:"arns"`
	Session   principal.Session `json:"session"`
}

// newApplication builds the demo application router. Every request reaching
// it has already been authenticated; the principal and session are on the
// request context.
func newApplication() http.Handler {
	r := chi.NewRouter()

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		p, _ := principal.FromContext(req.Context())
		name := "anonymous"
		if ids := p.Identities(); len(ids) > 0 {
			name = ids[0].ARN()
		}
		fmt.Fprintf(w, "Hello %s\n", name)
	})

	r.Get("/whoami", func(w http.ResponseWriter, req *http.Request) {
		resp := whoamiResponse{}

		if id, ok := requestid.FromContext(req.Context()); ok {
			resp.RequestID = id.String()
		}
		if p, ok := principal.FromContext(req.Context()); ok {
			for _, identity := range p.Identities() {
				resp.ARNs = append(resp.ARNs, identity.ARN())
			}
		}
		if session, ok := principal.SessionFromContext(req.Context()); ok {
			resp.Session = session
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	})

	return r
}
