package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/zhdanovmax/token-service/internal/infrastructure/auth"
	"github.com/zhdanovmax/token-service/internal/models"
	service "github.com/zhdanovmax/token-service/internal/services"
	pkgerrors "github.com/zhdanovmax/token-service/pkg/errors"
)

type Handler struct {
	users       service.UserService
	tokens      service.TokenService
	revocations service.RevocationService
	probe       *service.AuthorizationProbe
}

func NewHandler(
	users service.UserService,
	tokens service.TokenService,
	revocations service.RevocationService,
	probe *service.AuthorizationProbe,
) *Handler {
	return &Handler{
		users:       users,
		tokens:      tokens,
		revocations: revocations,
		probe:       probe,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/users/signup", h.Signup).Methods("POST")
	r.HandleFunc("/api/v1/users/login", h.Login).Methods("POST")

	r.HandleFunc("/api/v1/auth/validate-token", h.ValidateToken).Methods("POST")
	r.HandleFunc("/api/v1/auth/quick-validate", h.QuickValidate).Methods("POST")
	r.HandleFunc("/api/v1/auth/extract-user", h.ExtractUser).Methods("POST")
	r.HandleFunc("/api/v1/auth/check-authorization", h.CheckAuthorization).Methods("POST")
	r.HandleFunc("/api/v1/auth/token-status", h.TokenStatus).Methods("POST")
	r.HandleFunc("/api/v1/auth/health", h.Health).Methods("GET")
}

func (h *Handler) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/users/logout", h.Logout).Methods("POST")
	r.HandleFunc("/api/v1/users/logout-all", h.LogoutAll).Methods("POST")
	r.HandleFunc("/api/v1/users/sessions", h.Sessions).Methods("GET")
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	user, err := h.users.Signup(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, pkgerrors.ErrUsernameExists), errors.Is(err, pkgerrors.ErrEmailExists):
			h.writeError(w, http.StatusConflict, err)
		case errors.Is(err, pkgerrors.ErrInvalidInput):
			h.writeError(w, http.StatusBadRequest, err)
		default:
			h.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	token, err := h.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, pkgerrors.ErrInvalidCredentials):
			h.writeError(w, http.StatusUnauthorized, err)
		case errors.Is(err, pkgerrors.ErrIssuanceFailed):
			h.writeError(w, http.StatusServiceUnavailable, err)
		default:
			h.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.TokenFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	if err := h.revocations.LogoutOne(r.Context(), token); err != nil {
		switch {
		case errors.Is(err, pkgerrors.ErrTokenNotFound):
			h.writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, pkgerrors.ErrLedgerUnavailable):
			h.writeError(w, http.StatusServiceUnavailable, err)
		default:
			h.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	count, err := h.revocations.LogoutAll(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrLedgerUnavailable) {
			h.writeError(w, http.StatusServiceUnavailable, err)
		} else {
			h.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "logged out everywhere",
		"tokens_revoked": count,
	})
}

func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
		return
	}

	records, err := h.tokens.ActiveSessions(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrLedgerUnavailable) {
			h.writeError(w, http.StatusServiceUnavailable, err)
		} else {
			h.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	// Raw tokens stay out of the response; expiry timestamps are enough to
	// tell sessions apart.
	sessions := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		sessions = append(sessions, map[string]interface{}{
			"created_at": rec.CreatedAt.UTC().Format(time.RFC3339),
			"expires_at": rec.ExpiresAt.UTC().Format(time.RFC3339),
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

func (h *Handler) TokenStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	gone, err := h.revocations.IsRevokedOrExpired(r.Context(), req.Token)
	if err != nil {
		h.writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"revoked_or_expired": gone,
	})
}

func (h *Handler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token        string `json:"token"`
		RequiredRole string `json:"required_role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	result := h.tokens.Validate(r.Context(), req.Token, req.RequiredRole)
	switch {
	case result.Valid:
		h.writeJSON(w, http.StatusOK, result)
	case result.Failure == models.FailureLedgerUnavailable:
		h.writeJSON(w, http.StatusServiceUnavailable, result)
	default:
		h.writeJSON(w, http.StatusUnauthorized, result)
	}
}

func (h *Handler) QuickValidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	valid := h.tokens.QuickValidate(r.Context(), req.Token)
	message := "token is valid"
	if !valid {
		message = "token is invalid"
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":   valid,
		"message": message,
	})
}

func (h *Handler) ExtractUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	claims, err := h.tokens.ExtractClaims(req.Token)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"user_info": claims})
}

func (h *Handler) CheckAuthorization(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token      string `json:"token"`
		Role       string `json:"role"`
		Permission string `json:"permission"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	claims, err := h.tokens.ExtractClaims(req.Token)
	if err != nil {
		h.writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"authorized": false,
			"message":    "invalid token",
		})
		return
	}

	authorized := h.probe.CheckAuthorization(claims, req.Role, req.Permission)
	message := "user is authorized"
	if !authorized {
		message = "user is not authorized"
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"authorized": authorized,
		"message":    message,
		"authorization_details": map[string]interface{}{
			"checked_role":       req.Role,
			"checked_permission": req.Permission,
			"has_role":           req.Role != "" && h.probe.HasRole(claims, req.Role),
		},
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":   "token-service",
		"status":    "UP",
		"timestamp": time.Now().UnixMilli(),
	})
}
