package http

import (
	"net/http"
	"time"

	"github.com/agblogger/agblogger/internal/domain/user"
	"github.com/agblogger/agblogger/internal/middleware"
	"github.com/agblogger/agblogger/internal/service"
)

// loginSurface is the rate-limit surface key for failed logins, keyed by
// username (spec §4.11).
const loginSurface = "login"

// Login authenticates by username/password, sets the session and CSRF
// cookies, and rate-limits by (username, "login") ahead of the bcrypt
// comparison AuthService.Login performs internally.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[user.LoginRequest](w, r, 4<<10)
	if !ok {
		return
	}

	if req.Username != "" {
		if allowed, retryAfter := h.rateLimit.Allow(req.Username, loginSurface); !allowed {
			w.Header().Set("Retry-After", itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}
	}

	tokens, err := h.auth.Login(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "invalid credentials")
		return
	}
	h.rateLimit.Reset(req.Username, loginSurface)

	h.setSessionCookies(w, tokens)
	writeJSON(w, http.StatusOK, user.LoginResponse{
		AccessToken: tokens.AccessToken,
		ExpiresIn:   tokens.ExpiresIn,
		User:        tokens.User,
	})
}

// Refresh rotates the refresh token and reissues session cookies.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName + "_refresh")
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, "no refresh token presented")
		return
	}

	tokens, err := h.auth.RefreshTokens(r.Context(), cookie.Value)
	if err != nil {
		writeDomainError(w, err, "invalid refresh token")
		return
	}

	h.setSessionCookies(w, tokens)
	writeJSON(w, http.StatusOK, user.LoginResponse{
		AccessToken: tokens.AccessToken,
		ExpiresIn:   tokens.ExpiresIn,
		User:        tokens.User,
	})
}

// Logout revokes the current session and clears its cookies.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromContext(r.Context())
	if u != nil {
		if err := h.auth.Logout(r.Context(), u.ID, "", time.Time{}); err != nil {
			writeInternalError(w, err)
			return
		}
	}
	h.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// Register redeems an invite code to create a new `auth`-role user
// (spec §4.11, §9: self-registration is gated by RegistrationEnabled).
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.Auth.RegistrationEnabled {
		writeError(w, http.StatusForbidden, "registration is disabled")
		return
	}
	req, ok := readJSON[user.InviteRegisterRequest](w, r, 4<<10)
	if !ok {
		return
	}
	u, err := h.auth.RegisterWithInvite(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "registration failed")
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// GetCurrentUser returns the authenticated caller's profile.
func (h *Handlers) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromContext(r.Context())
	if u == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// ChangePassword updates the authenticated caller's password.
func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromContext(r.Context())
	if u == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	req, ok := readJSON[user.ChangePasswordRequest](w, r, 4<<10)
	if !ok {
		return
	}
	if err := h.auth.ChangePassword(r.Context(), u.ID, req); err != nil {
		writeDomainError(w, err, "unable to change password")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password changed"})
}

// CreateInvite mints a single-use invite code (admin-only).
func (h *Handlers) CreateInvite(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromContext(r.Context())
	req, ok := readJSON[user.CreateInviteRequest](w, r, 1<<10)
	if !ok {
		return
	}
	resp, err := h.auth.CreateInviteCode(r.Context(), u.ID, req)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// CreatePAT issues a new personal access token for the caller.
func (h *Handlers) CreatePAT(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromContext(r.Context())
	req, ok := readJSON[user.CreatePATRequest](w, r, 1<<10)
	if !ok {
		return
	}
	resp, err := h.auth.CreatePAT(r.Context(), u.ID, req)
	if err != nil {
		writeDomainError(w, err, "unable to create token")
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// ListPATs lists the caller's personal access tokens.
func (h *Handlers) ListPATs(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromContext(r.Context())
	pats, err := h.auth.ListPATs(r.Context(), u.ID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pats)
}

// RevokePAT revokes one of the caller's personal access tokens.
func (h *Handlers) RevokePAT(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.auth.RevokePAT(r.Context(), id); err != nil {
		writeDomainError(w, err, "token not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *Handlers) setSessionCookies(w http.ResponseWriter, tokens *service.SessionTokens) {
	secure := h.cfg.Auth.SecureCookies
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    tokens.AccessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   tokens.ExpiresIn,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName + "_refresh",
		Value:    tokens.RefreshToken,
		Path:     "/auth/refresh",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(h.cfg.Auth.RefreshTokenTTL.Seconds()),
	})
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.CSRFCookieName,
		Value:    tokens.CSRFToken,
		Path:     "/",
		HttpOnly: false,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   tokens.ExpiresIn,
	})
}

func (h *Handlers) clearSessionCookies(w http.ResponseWriter) {
	for _, c := range []struct{ name, path string }{
		{middleware.SessionCookieName, "/"},
		{middleware.SessionCookieName + "_refresh", "/auth/refresh"},
		{middleware.CSRFCookieName, "/"},
	} {
		http.SetCookie(w, &http.Cookie{Name: c.name, Value: "", Path: c.path, MaxAge: -1, HttpOnly: true})
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
