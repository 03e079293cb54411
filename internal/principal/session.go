// ABOUTME: Session attribute bag attached to authenticated requests
// ABOUTME: String-keyed facts (region, principal flags) with typed accessors

package principal

import "context"

// Session is a string-keyed bag of contextual facts about an authenticated
// request. Values are strings or bools.
type Session map[string]any

// String returns the string value for key. The second return is false if the
// key is absent or holds a non-string value.
func (s Session) String(key string) (string, bool) {
	v, ok := s[key].(string)
	return v, ok
}

// Bool returns the bool value for key. The second return is false if the key
// is absent or holds a non-bool value.
func (s Session) Bool(key string) (bool, bool) {
	v, ok := s[key].(bool)
	return v, ok
}

// sessionKey is the key type for storing a Session in context.Context.
type sessionKey struct{}

// WithSession returns a new context with the session attributes attached.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext retrieves the session attributes from the context.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}
