package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/splax/taskboard/internal/domain"
	"github.com/splax/taskboard/internal/service/auth"
)

type principalContextKey struct{}

type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth resolves the bearer token to a principal before invoking the handler.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, ok := r.ensureAuth(w, req, req.Header.Get("Authorization"))
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// ensureAuth runs the guard and writes the rejection when it fails.
func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request, header string) (context.Context, bool) {
	principal, err := r.auth.Authenticate(req.Context(), header)
	if err != nil {
		var authErr *auth.AuthError
		if errors.As(err, &authErr) {
			r.metrics.authFailure(string(authErr.Kind))
			r.logger.Warn("authentication rejected", "kind", authErr.Kind, "error", err, "path", req.URL.Path)
		}
		r.writeServiceError(w, req, err)
		return req.Context(), false
	}
	return context.WithValue(req.Context(), principalContextKey{}, principal), true
}

// principalFromContext extracts the authenticated principal.
func principalFromContext(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(domain.Principal)
	return p, ok
}

// mustPrincipal writes a 500 when a protected handler runs without a principal.
func (r *Router) mustPrincipal(w http.ResponseWriter, req *http.Request) (domain.Principal, bool) {
	p, ok := principalFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
	}
	return p, ok
}
