package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"medvault-records/internal/domain"
	"medvault-records/internal/repository"
	"medvault-records/internal/service"

	"go.uber.org/zap"
)

// AuditHandler 审计日志 Handler（auditor 与 admin 可读）
type AuditHandler struct {
	auditRepo repository.AuditRepository
	sessions  *SessionStore
	guard     *service.Guard
	logger    *zap.Logger
}

// NewAuditHandler 创建审计日志 Handler
func NewAuditHandler(auditRepo repository.AuditRepository, sessions *SessionStore, guard *service.Guard, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		auditRepo: auditRepo,
		sessions:  sessions,
		guard:     guard,
		logger:    logger,
	}
}

func (h *AuditHandler) requireAuditor(w http.ResponseWriter, r *http.Request) *domain.Principal {
	p, err := h.sessions.PrincipalFromRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return nil
	}
	if err := h.guard.RequireRole(p, domain.RoleAuditor, domain.RoleAdmin); err != nil {
		writeDomainError(w, err)
		return nil
	}
	return p
}

// Latest GET /audit/api/v1/logs?limit=100
func (h *AuditHandler) Latest(w http.ResponseWriter, r *http.Request) {
	p := h.requireAuditor(w, r)
	if p == nil {
		return
	}

	limit := parseInt(r.URL.Query().Get("limit"), 100)
	if limit < 1 || limit > 1000 {
		limit = 100
	}

	entries, err := h.auditRepo.Latest(r.Context(), int64(limit))
	if err != nil {
		h.logger.Error("Failed to read audit log", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(entries))
}

// Export GET /audit/api/v1/logs/export?limit=1000
// 返回 xlsx 附件
func (h *AuditHandler) Export(w http.ResponseWriter, r *http.Request) {
	p := h.requireAuditor(w, r)
	if p == nil {
		return
	}

	limit := parseInt(r.URL.Query().Get("limit"), 1000)
	if limit < 1 || limit > 10000 {
		limit = 1000
	}

	entries, err := h.auditRepo.Latest(r.Context(), int64(limit))
	if err != nil {
		h.logger.Error("Failed to read audit log", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}

	data, err := GenerateAuditLogExport(entries)
	if err != nil {
		h.logger.Error("Failed to generate audit export", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}

	filename := fmt.Sprintf("audit-log-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
