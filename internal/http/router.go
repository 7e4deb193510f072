package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// methodOnly 限定 HTTP 方法
func methodOnly(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != method {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, req)
	}
}

// RegisterAuthRoutes 认证路由
func (r *Router) RegisterAuthRoutes(h *AuthHandler) {
	r.Handle("/auth/api/v1/login", methodOnly(http.MethodPost, h.Login))
	r.Handle("/auth/api/v1/logout", methodOnly(http.MethodPost, h.Logout))

	// activate/{token}
	r.Handle("/auth/api/v1/activate/", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		token := strings.TrimPrefix(req.URL.Path, "/auth/api/v1/activate/")
		if token == "" || strings.Contains(token, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.Activate(w, req, token)
	})
}

// RegisterAdminRoutes 账号管理路由（admin）
func (r *Router) RegisterAdminRoutes(h *AdminAccountsHandler) {
	r.Handle("/admin/api/v1/clinicians", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.ListClinicians(w, req)
		case http.MethodPost:
			h.InviteClinician(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	r.Handle("/admin/api/v1/clinicians/reissue-invite", methodOnly(http.MethodPost, h.ReissueInvite))
	r.Handle("/admin/api/v1/accounts/archive", methodOnly(http.MethodPost, h.ArchiveAccount))
	r.Handle("/admin/api/v1/dashboard/stats", methodOnly(http.MethodGet, h.DashboardStats))
}

// RegisterPatientRoutes 患者记录路由
func (r *Router) RegisterPatientRoutes(h *PatientHandler) {
	r.Handle("/records/api/v1/patients", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.List(w, req)
		case http.MethodPost:
			h.Create(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	r.Handle("/records/api/v1/patients/stats", methodOnly(http.MethodGet, h.Stats))

	// patients/{id} 与 patients/{id}/archive
	r.Handle("/records/api/v1/patients/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/records/api/v1/patients/")
		if rest == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		if id, ok := strings.CutSuffix(rest, "/archive"); ok {
			if strings.Contains(id, "/") || id == "" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			if req.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.Archive(w, req, id)
			return
		}

		if strings.Contains(rest, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch req.Method {
		case http.MethodGet:
			h.Get(w, req, rest)
		case http.MethodPut:
			h.Update(w, req, rest)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

// RegisterAuditRoutes 审计日志路由（auditor/admin）
func (r *Router) RegisterAuditRoutes(h *AuditHandler) {
	r.Handle("/audit/api/v1/logs", methodOnly(http.MethodGet, h.Latest))
	r.Handle("/audit/api/v1/logs/export", methodOnly(http.MethodGet, h.Export))
}
