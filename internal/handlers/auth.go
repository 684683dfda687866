package handlers

import (
	"net/http"
	"strings"

	"github.com/moviescrud/backend/internal/catalog"
	"github.com/moviescrud/backend/internal/errs"
	"github.com/moviescrud/backend/internal/logging"
)

// AuthHandler implements identity and session endpoints.
type AuthHandler struct {
	Accounts AccountService
}

// Login handles POST /api/v1/auth/login requests. The identifier may be an
// e-mail address or a username.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Email)
	}
	if identifier == "" || req.Password == "" {
		respondError(ctx, w, errs.Validation("identifier and password are required"))
		return
	}

	session, err := h.Accounts.SignIn(ctx, identifier, req.Password)
	if err != nil {
		logger.Warn("login failed", "identifier", identifier, "error", err)
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, session)
}

// SignUp handles POST /api/v1/auth/signup requests.
func (h AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req catalog.SignUpInput
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	session, err := h.Accounts.SignUp(ctx, req)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusCreated, session)
}

// Refresh exchanges a refresh token for a new session. The old token is consumed.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondError(ctx, w, errs.Validation("refresh token is required"))
		return
	}

	session, err := h.Accounts.Refresh(ctx, req.RefreshToken)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, session)
}

// Logout revokes the given refresh token.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	if err := h.Accounts.SignOut(ctx, strings.TrimSpace(req.RefreshToken)); err != nil {
		respondError(ctx, w, err)
		return
	}
	noContent(w)
}

// User handles GET /api/v1/auth/user.
func (h AuthHandler) User(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := h.Accounts.User(ctx, caller(r))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, identity)
}

// UpdateUser handles PUT /api/v1/auth/user. Only the password can change.
func (h AuthHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	userID := caller(r)
	if err := h.Accounts.ChangePassword(ctx, userID, req.Password); err != nil {
		respondError(ctx, w, err)
		return
	}

	identity, err := h.Accounts.User(ctx, userID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, identity)
}

// RequestPasswordReset handles POST /api/v1/auth/password-reset requests. The
// answer never reveals whether the address is registered.
func (h AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req passwordResetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	if err := h.Accounts.RequestPasswordReset(ctx, req.Email); err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusAccepted, map[string]string{
		"status": "If an account exists for that email, password reset instructions have been sent.",
	})
}

// DeleteAccount handles DELETE /api/v1/account.
func (h AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.Accounts.Delete(ctx, caller(r)); err != nil {
		respondError(ctx, w, err)
		return
	}
	noContent(w)
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type updateUserRequest struct {
	Password string `json:"password"`
}

type passwordResetRequest struct {
	Email string `json:"email"`
}
