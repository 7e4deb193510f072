package httpapi

import (
	"net/http"

	"medvault-records/internal/domain"
	"medvault-records/internal/service"

	"go.uber.org/zap"
)

// AdminAccountsHandler 账号管理 Handler（admin 专用）
type AdminAccountsHandler struct {
	accounts service.AccountService
	sessions *SessionStore
	guard    *service.Guard
	logger   *zap.Logger
}

// NewAdminAccountsHandler 创建账号管理 Handler
func NewAdminAccountsHandler(accounts service.AccountService, sessions *SessionStore, guard *service.Guard, logger *zap.Logger) *AdminAccountsHandler {
	return &AdminAccountsHandler{
		accounts: accounts,
		sessions: sessions,
		guard:    guard,
		logger:   logger,
	}
}

// requireAdmin 会话解析 + 角色检查，失败时已写响应
func (h *AdminAccountsHandler) requireAdmin(w http.ResponseWriter, r *http.Request) *domain.Principal {
	p, err := h.sessions.PrincipalFromRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return nil
	}
	if err := h.guard.RequireRole(p, domain.RoleAdmin); err != nil {
		writeDomainError(w, err)
		return nil
	}
	return p
}

// inviteBody 邀请医生请求体
type inviteBody struct {
	Username       string `json:"username"`
	FullName       string `json:"full_name"`
	Specialization string `json:"specialization"`
	LicenseNumber  string `json:"license_number"`
}

// InviteClinician POST /admin/api/v1/clinicians
func (h *AdminAccountsHandler) InviteClinician(w http.ResponseWriter, r *http.Request) {
	p := h.requireAdmin(w, r)
	if p == nil {
		return
	}

	var body inviteBody
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	resp, err := h.accounts.InviteClinician(r.Context(), service.InviteClinicianRequest{
		ActorUserID:    p.UserID,
		Username:       body.Username,
		FullName:       body.FullName,
		Specialization: body.Specialization,
		LicenseNumber:  body.LicenseNumber,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(resp))
}

// ListClinicians GET /admin/api/v1/clinicians
func (h *AdminAccountsHandler) ListClinicians(w http.ResponseWriter, r *http.Request) {
	p := h.requireAdmin(w, r)
	if p == nil {
		return
	}

	items, err := h.accounts.ListClinicians(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(items))
}

// reissueBody 重发邀请请求体
type reissueBody struct {
	UserID int64 `json:"user_id"`
}

// ReissueInvite POST /admin/api/v1/clinicians/reissue-invite
func (h *AdminAccountsHandler) ReissueInvite(w http.ResponseWriter, r *http.Request) {
	p := h.requireAdmin(w, r)
	if p == nil {
		return
	}

	var body reissueBody
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	resp, err := h.accounts.ReissueInvite(r.Context(), service.ReissueInviteRequest{
		ActorUserID: p.UserID,
		UserID:      body.UserID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// archiveBody 归档账号请求体
type archiveBody struct {
	UserID int64 `json:"user_id"`
}

// ArchiveAccount POST /admin/api/v1/accounts/archive
func (h *AdminAccountsHandler) ArchiveAccount(w http.ResponseWriter, r *http.Request) {
	p := h.requireAdmin(w, r)
	if p == nil {
		return
	}

	var body archiveBody
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	if err := h.accounts.ArchiveAccount(r.Context(), service.ArchiveAccountRequest{
		ActorUserID: p.UserID,
		UserID:      body.UserID,
	}); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"archived": true}))
}

// DashboardStats GET /admin/api/v1/dashboard/stats
func (h *AdminAccountsHandler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	p := h.requireAdmin(w, r)
	if p == nil {
		return
	}

	stats, err := h.accounts.DashboardStats(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(stats))
}
