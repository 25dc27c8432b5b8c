package auth

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"ms-tickets/internal/config"
	"ms-tickets/internal/logger"
	"ms-tickets/internal/utils"

	"golang.org/x/crypto/bcrypt"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success   bool       `json:"success"`
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// LoginHandler exchanges the single configured admin credential for a token.
type LoginHandler struct {
	cfg    config.AdminConfig
	logger *logger.Logger
}

func NewLoginHandler(cfg config.AdminConfig, log *logger.Logger) *LoginHandler {
	return &LoginHandler{cfg: cfg, logger: log}
}

func (h *LoginHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.cfg.JWTSecret == "" {
		utils.WriteJSON(w, http.StatusOK, loginResponse{Success: true, Message: "admin authentication is disabled"})
		return
	}
	if h.cfg.Email == "" || h.cfg.PasswordHash == "" {
		utils.WriteError(w, http.StatusServiceUnavailable, "admin login is not configured")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	emailOK := strings.EqualFold(strings.TrimSpace(req.Email), h.cfg.Email)
	passErr := bcrypt.CompareHashAndPassword([]byte(h.cfg.PasswordHash), []byte(req.Password))
	if !emailOK || passErr != nil {
		h.logger.LogSecurity("LOGIN_FAILED", "admin login rejected for "+req.Email)
		utils.WriteError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expires, err := IssueToken(h.cfg.JWTSecret, h.cfg.Email, h.cfg.TokenTTL)
	if err != nil {
		h.logger.Error("AUTH", "Failed to sign token: "+err.Error())
		utils.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.logger.LogSecurity("LOGIN", "admin login for "+h.cfg.Email)
	utils.WriteJSON(w, http.StatusOK, loginResponse{Success: true, Token: token, ExpiresAt: &expires})
}
