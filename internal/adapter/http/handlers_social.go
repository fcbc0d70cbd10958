package http

import (
	"net/http"

	"github.com/agblogger/agblogger/internal/domain/user"
	"github.com/agblogger/agblogger/internal/middleware"
	"github.com/agblogger/agblogger/internal/port/notifier"
)

type connectSocialAccountRequest struct {
	Platform    string  `json:"platform"`
	AccountName *string `json:"account_name,omitempty"`
	Credentials string  `json:"credentials"`
}

type crossPostRequest struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// ListSocialAccounts serves GET /social-accounts for the caller.
func (h *Handlers) ListSocialAccounts(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromContext(r.Context())
	accounts, err := h.store.ListSocialAccountsByUser(r.Context(), u.ID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

// ConnectSocialAccount serves POST /social-accounts: encrypts and stores
// the caller's platform credentials (spec §4.12).
func (h *Handlers) ConnectSocialAccount(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromContext(r.Context())
	req, ok := readJSON[connectSocialAccountRequest](w, r, 4<<10)
	if !ok {
		return
	}
	ciphertext, err := h.crosspost.EncryptCredentials([]byte(req.Credentials))
	if err != nil {
		writeInternalError(w, err)
		return
	}
	account := &user.SocialAccount{
		UserID:                u.ID,
		Platform:              req.Platform,
		AccountName:           req.AccountName,
		CredentialsCiphertext: ciphertext,
	}
	if err := h.store.UpsertSocialAccount(r.Context(), account); err != nil {
		writeDomainError(w, err, "unable to connect account")
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// DeleteSocialAccount serves DELETE /social-accounts/{id}.
func (h *Handlers) DeleteSocialAccount(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.store.DeleteSocialAccount(r.Context(), id); err != nil {
		writeDomainError(w, err, "account not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// CrossPost serves POST /social-accounts/{id}/post: dispatches a
// notification through the caller's connected platform account. Store
// has no get-by-id accessor for social accounts (only the
// (userID, platform, accountName) composite key it's upserted under), so
// the id path segment is resolved against the caller's own account list.
func (h *Handlers) CrossPost(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromContext(r.Context())
	id := urlParam(r, "id")
	req, ok := readJSON[crossPostRequest](w, r, 4<<10)
	if !ok {
		return
	}

	accounts, err := h.store.ListSocialAccountsByUser(r.Context(), u.ID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	var account *user.SocialAccount
	for i := range accounts {
		if accounts[i].ID == id {
			account = &accounts[i]
			break
		}
	}
	if account == nil {
		writeError(w, http.StatusNotFound, "social account not found")
		return
	}

	note := notifier.Notification{Title: req.Title, Message: req.Message, Level: "info", Source: "post.published"}
	if err := h.crosspost.Post(r.Context(), account, note); err != nil {
		writeDomainError(w, err, "unable to cross-post")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "posted"})
}
