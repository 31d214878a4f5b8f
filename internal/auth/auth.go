// Package auth enforces the optional shared bearer token on synthesis calls.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/nadzzz/parrot/internal/message"
	"github.com/nadzzz/parrot/internal/tts"
)

// Authenticator compares bearer credentials against one configured token.
// An empty token disables authentication.
type Authenticator struct {
	token []byte
}

// New creates an Authenticator.
func New(token string) *Authenticator {
	return &Authenticator{token: []byte(token)}
}

// Enabled reports whether a token is configured.
func (a *Authenticator) Enabled() bool { return len(a.token) > 0 }

// Check validates an Authorization header value.
func (a *Authenticator) Check(header string) error {
	if !a.Enabled() {
		return nil
	}
	got, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(got), a.token) != 1 {
		return tts.ErrUnauthorized
	}
	return nil
}

// Middleware rejects requests without the configured bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.Check(r.Header.Get("Authorization")); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="parrot"`)
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(message.NewErrorResponse(err))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UnaryInterceptor checks the "authorization" metadata key on the listed
// full method names. Other methods pass through.
func (a *Authenticator) UnaryInterceptor(protected ...string) grpc.UnaryServerInterceptor {
	set := make(map[string]struct{}, len(protected))
	for _, m := range protected {
		set[m] = struct{}{}
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := set[info.FullMethod]; ok && a.Enabled() {
			header := ""
			if md, ok := metadata.FromIncomingContext(ctx); ok {
				if v := md.Get("authorization"); len(v) > 0 {
					header = v[0]
				}
			}
			if err := a.Check(header); err != nil {
				return nil, status.Error(codes.Unauthenticated, err.Error())
			}
		}
		return handler(ctx, req)
	}
}
