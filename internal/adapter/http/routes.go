package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agblogger/agblogger/internal/domain/user"
	"github.com/agblogger/agblogger/internal/middleware"
	"github.com/agblogger/agblogger/internal/service"
)

// MountRoutes registers every AgBlogger endpoint on r, all under
// /api/v1 (spec §6). Authenticate decodes whichever credential is
// present without rejecting the request; RequireRole gates mutation
// endpoints and sync/render per spec §4.11's two-role model. idempotent
// wraps the sync upload/commit endpoints with Idempotency-Key
// deduplication (spec §4.10); it is nil when no NATS JetStream KV
// bucket is configured, in which case those routes run undeduplicated.
func MountRoutes(r chi.Router, h *Handlers, authSvc *service.AuthService, idempotent func(http.Handler) http.Handler) {
	if idempotent == nil {
		idempotent = func(next http.Handler) http.Handler { return next }
	}
	r.Get("/health", h.HandleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(authSvc))
		r.Use(middleware.CSRFProtect)

		// Auth
		r.Post("/auth/login", h.Login)
		r.Post("/auth/refresh", h.Refresh)
		r.Post("/auth/logout", h.Logout)
		r.Post("/auth/register", h.Register)
		r.Get("/auth/me", h.GetCurrentUser)
		r.Post("/auth/change-password", h.ChangePassword)
		r.With(middleware.RequireRole(user.RoleAdmin)).Post("/auth/invites", h.CreateInvite)
		r.Post("/auth/tokens", h.CreatePAT)
		r.Get("/auth/tokens", h.ListPATs)
		r.Delete("/auth/tokens/{id}", h.RevokePAT)

		// Posts. chi wildcards must end a pattern, so raw vs. rendered
		// access to a slash-bearing post path is dispatched by a query
		// parameter rather than a trailing /raw segment.
		r.Get("/posts", h.ListPosts)
		r.Get("/posts/*", h.GetPost)
		r.With(middleware.RequireRole(user.RoleAdmin)).Post("/posts", h.CreatePost)
		r.With(middleware.RequireRole(user.RoleAdmin)).Put("/posts/*", h.UpdatePost)
		r.With(middleware.RequireRole(user.RoleAdmin)).Delete("/posts/*", h.DeletePost)

		// Labels
		r.Get("/labels", h.ListLabels)
		r.Get("/labels/graph", h.GetLabelGraph)
		r.Get("/labels/{id}", h.GetLabel)
		r.Get("/labels/{id}/posts", h.GetLabelPosts)
		r.With(middleware.RequireRole(user.RoleAdmin)).Post("/labels", h.UpsertLabel)
		r.With(middleware.RequireRole(user.RoleAdmin)).Put("/labels/{id}", h.UpsertLabel)
		r.With(middleware.RequireRole(user.RoleAdmin)).Delete("/labels/{id}", h.DeleteLabel)

		// Sync (admin-only: the local editor pushes/pulls the whole tree)
		r.Route("/sync", func(r chi.Router) {
			r.Use(middleware.RequireRole(user.RoleAdmin))
			r.Post("/init", h.SyncInit)
			r.With(idempotent).Post("/upload/*", h.SyncUpload)
			r.Get("/download/*", h.SyncDownload)
			r.With(idempotent).Post("/commit", h.SyncCommit)
		})

		// Render preview (spec §4.11: any authenticated role)
		r.With(middleware.RequireRole(user.RoleAdmin, user.RoleAuth)).
			Post("/render/preview", h.RenderPreview)

		// Cross-posting / social accounts (spec §4.12, §9)
		r.Route("/social-accounts", func(r chi.Router) {
			r.Use(middleware.RequireRole(user.RoleAdmin, user.RoleAuth))
			r.Get("/", h.ListSocialAccounts)
			r.Post("/", h.ConnectSocialAccount)
			r.Delete("/{id}", h.DeleteSocialAccount)
			r.Post("/{id}/post", h.CrossPost)
		})
	})
}
