package http

import (
	"net/http"

	"github.com/agblogger/agblogger/internal/cachebuild"
	"github.com/agblogger/agblogger/internal/config"
	"github.com/agblogger/agblogger/internal/contentstore"
	"github.com/agblogger/agblogger/internal/crosspost"
	"github.com/agblogger/agblogger/internal/labelservice"
	"github.com/agblogger/agblogger/internal/middleware"
	"github.com/agblogger/agblogger/internal/port/database"
	"github.com/agblogger/agblogger/internal/postservice"
	"github.com/agblogger/agblogger/internal/rendercache"
	"github.com/agblogger/agblogger/internal/sanitize"
	"github.com/agblogger/agblogger/internal/service"
	"github.com/agblogger/agblogger/internal/syncengine"
)

// Handlers bundles every dependency AgBlogger's HTTP handlers call into.
// It holds no state of its own beyond these collaborators; every mutable
// state (the sync mutex, the label-file lock, the renderer's subprocess)
// lives inside the respective component.
type Handlers struct {
	auth       *service.AuthService
	content    *contentstore.Store
	store      database.Store
	cache      *cachebuild.Materializer
	labels     *labelservice.Service
	sync       *syncengine.Engine
	render     *rendercache.CachedRenderer
	sanitizer  *sanitize.Sanitizer
	crosspost  *crosspost.Dispatcher
	rateLimit  *middleware.RateLimiter
	posts      *postservice.Service
	cfg        config.Config
}

// NewHandlers wires a Handlers from its collaborators.
func NewHandlers(
	auth *service.AuthService,
	content *contentstore.Store,
	store database.Store,
	cache *cachebuild.Materializer,
	labels *labelservice.Service,
	syncEngine *syncengine.Engine,
	render *rendercache.CachedRenderer,
	sanitizer *sanitize.Sanitizer,
	dispatcher *crosspost.Dispatcher,
	rateLimit *middleware.RateLimiter,
	posts *postservice.Service,
	cfg config.Config,
) *Handlers {
	return &Handlers{
		auth:      auth,
		content:   content,
		store:     store,
		cache:     cache,
		labels:    labels,
		sync:      syncEngine,
		render:    render,
		sanitizer: sanitizer,
		crosspost: dispatcher,
		rateLimit: rateLimit,
		posts:     posts,
		cfg:       cfg,
	}
}

// HandleHealth reports process liveness for load balancer probes.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
