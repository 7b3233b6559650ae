package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/familyassistant/server/internal/apperr"
	"github.com/familyassistant/server/internal/auth"
	"github.com/familyassistant/server/internal/middleware"
)

// Auth action names, passed as /auth/{action} or /auth?action=
const (
	ActionRegister        = "register"
	ActionLogin           = "login"
	ActionLogout          = "logout"
	ActionVerify          = "verify"
	ActionForgotPassword  = "forgot_password"
	ActionVerifyResetCode = "verify_reset_code"
	ActionResetPassword   = "reset_password"
)

// AuthAction returns the requested auth action. The path segment wins over the query
// parameter; a request naming neither is a login.
func AuthAction(r *http.Request) string {
	if action := chi.URLParam(r, "action"); action != "" {
		return action
	}
	if action := strings.TrimSpace(r.URL.Query().Get("action")); action != "" {
		return action
	}
	return ActionLogin
}

// AuthHandler dispatches the auth actions
type AuthHandler struct {
	authService *auth.Service
	log         zerolog.Logger
	actions     map[string]authRoute
}

type authRoute struct {
	method string
	handle http.HandlerFunc
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.Service, log zerolog.Logger) *AuthHandler {
	h := &AuthHandler{authService: authService, log: log.With().Str("component", "auth_handler").Logger()}
	h.actions = map[string]authRoute{
		ActionRegister:        {http.MethodPost, h.handleRegister},
		ActionLogin:           {http.MethodPost, h.handleLogin},
		ActionLogout:          {http.MethodPost, h.handleLogout},
		ActionVerify:          {http.MethodGet, h.handleVerify},
		ActionForgotPassword:  {http.MethodPost, h.handleForgotPassword},
		ActionVerifyResetCode: {http.MethodPost, h.handleVerifyResetCode},
		ActionResetPassword:   {http.MethodPost, h.handleResetPassword},
	}
	return h
}

// ServeHTTP handles /auth and /auth/{action}
func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route, ok := h.actions[AuthAction(r)]
	if !ok {
		respondWithError(w, http.StatusNotFound, "unknown action")
		return
	}
	if r.Method != route.method {
		w.Header().Set("Allow", route.method)
		respondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	route.handle(w, r)
}

// registerRequest is the request body for register
type registerRequest struct {
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	FamilyName string `json:"family_name"`
}

// sessionResponse is the JSON response for register and login
type sessionResponse struct {
	Success bool         `json:"success"`
	Token   string       `json:"token"`
	User    userResponse `json:"user"`
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, err)
		return
	}

	sess, err := h.authService.Register(r.Context(), auth.RegisterInput{
		Phone:      req.Phone,
		Email:      req.Email,
		Password:   req.Password,
		FamilyName: req.FamilyName,
	})
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondJSON(w, h.log, http.StatusCreated, sessionResponse{Success: true, Token: sess.Token, User: newUserResponse(sess.Identity)})
}

// loginRequest is the request body for login. Login is a phone number or an email.
type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, err)
		return
	}

	sess, err := h.authService.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		// unknown users look exactly like wrong passwords
		if errors.Is(err, apperr.ErrNotFound) {
			respondWithError(w, http.StatusUnauthorized, apperr.Message(err))
			return
		}
		respondWithAppError(w, err)
		return
	}
	respondJSON(w, h.log, http.StatusOK, sessionResponse{Success: true, Token: sess.Token, User: newUserResponse(sess.Identity)})
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.authService.Logout(r.Context(), middleware.TokenFromRequest(r)); err != nil {
		respondWithAppError(w, err)
		return
	}
	respondJSON(w, h.log, http.StatusOK, map[string]bool{"success": true})
}

// verifyResponse is the JSON response for verify
type verifyResponse struct {
	Success bool         `json:"success"`
	User    userResponse `json:"user"`
}

func (h *AuthHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromRequest(r)
	if token == "" {
		respondWithError(w, http.StatusUnauthorized, "token is required")
		return
	}
	identity, ok, err := h.authService.Verify(r.Context(), token)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	respondJSON(w, h.log, http.StatusOK, verifyResponse{Success: true, User: newUserResponse(identity)})
}

// forgotPasswordRequest is the request body for forgot_password
type forgotPasswordRequest struct {
	Phone string `json:"phone"`
}

// forgotPasswordResponse carries the code only when the server runs in dev mode
type forgotPasswordResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
	Code      string    `json:"code,omitempty"`
}

func (h *AuthHandler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, err)
		return
	}

	reset, err := h.authService.ForgotPassword(r.Context(), req.Phone)
	if err != nil {
		respondResetError(w, err)
		return
	}
	respondJSON(w, h.log, http.StatusOK, forgotPasswordResponse{
		Success:   true,
		Message:   "reset code sent",
		ExpiresAt: reset.ExpiresAt,
		Code:      reset.Code,
	})
}

// verifyResetCodeRequest is the request body for verify_reset_code
type verifyResetCodeRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

func (h *AuthHandler) handleVerifyResetCode(w http.ResponseWriter, r *http.Request) {
	var req verifyResetCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, err)
		return
	}

	resetToken, err := h.authService.VerifyResetCode(r.Context(), req.Phone, req.Code)
	if err != nil {
		respondResetError(w, err)
		return
	}
	respondJSON(w, h.log, http.StatusOK, map[string]any{"success": true, "reset_token": resetToken})
}

// resetPasswordRequest is the request body for reset_password
type resetPasswordRequest struct {
	ResetToken  string `json:"reset_token"`
	NewPassword string `json:"new_password"`
}

func (h *AuthHandler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, err)
		return
	}

	if err := h.authService.ResetPassword(r.Context(), req.ResetToken, req.NewPassword); err != nil {
		respondResetError(w, err)
		return
	}
	respondJSON(w, h.log, http.StatusOK, map[string]any{"success": true, "message": "password updated"})
}

// respondResetError reports NotFound as 400 in the reset flow
func respondResetError(w http.ResponseWriter, err error) {
	if errors.Is(err, apperr.ErrNotFound) {
		respondWithError(w, http.StatusBadRequest, apperr.Message(err))
		return
	}
	respondWithAppError(w, err)
}
