package users_api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ms-docservices/internal/auth"
	"ms-docservices/internal/logger"
	"ms-docservices/internal/users"
)

type Handler struct {
	Users  *users.UserService
	Logger *logger.Logger
}

func NewHandler(svc *users.UserService, log *logger.Logger) *Handler {
	return &Handler{Users: svc, Logger: log}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req users.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.Users.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrUsernameTaken), errors.Is(err, users.ErrEmailTaken):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.Logger.Error("API", fmt.Sprintf("Register: %v", err))
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(user); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Register: failed to encode response: %v", err))
	}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	user, token, err := h.Users.Login(r.Context(), creds.Username, creds.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredential) {
			http.Error(w, "Invalid username or password", http.StatusUnauthorized)
			return
		}
		h.Logger.Error("API", fmt.Sprintf("Login: %v", err))
		http.Error(w, "Login failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"token": token,
		"user":  user,
	}); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Login: failed to encode response: %v", err))
	}
}

// Me returns the authenticated user's own profile.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.Users.GetByID(r.Context(), principal.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		h.Logger.Error("API", fmt.Sprintf("Me: %v", err))
		http.Error(w, "Failed to load user", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(user); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Me: failed to encode response: %v", err))
	}
}
