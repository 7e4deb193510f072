package httpapi

import (
	"net/http"
	"strings"

	"medvault-records/internal/service"

	"go.uber.org/zap"
)

// AuthHandler 认证 Handler
type AuthHandler struct {
	authService service.AuthService
	sessions    *SessionStore
	logger      *zap.Logger
}

// NewAuthHandler 创建认证 Handler
func NewAuthHandler(authService service.AuthService, sessions *SessionStore, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		sessions:    sessions,
		logger:      logger,
	}
}

// loginBody 登录请求体
type loginBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login POST /auth/api/v1/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	resp, err := h.authService.Login(r.Context(), service.LoginRequest{
		Username:  body.Username,
		Password:  body.Password,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	sessionID, err := h.sessions.Create(r.Context(), resp.Principal())
	if err != nil {
		h.logger.Error("Failed to create session", zap.Int64("user_id", resp.UserID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}
	h.sessions.SetCookie(w, sessionID)

	writeJSON(w, http.StatusOK, Ok(resp))
}

// Logout POST /auth/api/v1/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if err := h.sessions.Delete(r.Context(), cookie.Value); err != nil {
			h.logger.Warn("Failed to delete session", zap.Error(err))
		}
	}
	h.sessions.ClearCookie(w)
	writeJSON(w, http.StatusOK, Ok(map[string]any{"logged_out": true}))
}

// activateBody 激活请求体
type activateBody struct {
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

// Activate POST /auth/api/v1/activate/{token}
// 明文令牌只出现在 URL 路径里，handler 立即交给服务层哈希比对
func (h *AuthHandler) Activate(w http.ResponseWriter, r *http.Request, token string) {
	var body activateBody
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	resp, err := h.authService.Activate(r.Context(), service.ActivateRequest{
		Token:           strings.TrimSpace(token),
		Password:        body.Password,
		PasswordConfirm: body.PasswordConfirm,
		IPAddress:       clientIP(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}
