package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agblogger/agblogger/internal/domain/user"
	"github.com/agblogger/agblogger/internal/middleware"
)

func injectUser(u *user.User) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), middleware.AuthUserCtxKeyForTest(), u)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func TestRequireRole_AdminAllowed(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	admin := &user.User{ID: "admin-1", Username: "root", IsAdmin: true}
	handler := injectUser(admin)(middleware.RequireRole(user.RoleAdmin)(inner))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/posts", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRequireRole_NoUser_Returns401(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := middleware.RequireRole(user.RoleAdmin)(inner)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/posts", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireRole_WrongRole_Returns403(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	authUser := &user.User{ID: "auth-1", Username: "writer", IsAdmin: false}
	handler := injectUser(authUser)(middleware.RequireRole(user.RoleAdmin)(inner))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/commit", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestRequireRole_AuthAllowedForSharedRoute(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	authUser := &user.User{ID: "auth-1", Username: "writer", IsAdmin: false}
	handler := injectUser(authUser)(middleware.RequireRole(user.RoleAdmin, user.RoleAuth)(inner))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/crossposts", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
