package httpapi

import (
	"net/http"

	"medvault-records/internal/domain"
	"medvault-records/internal/service"

	"go.uber.org/zap"
)

// PatientHandler 患者记录 Handler
// 归属与角色检查在服务层完成，这里只负责会话解析与编解码
type PatientHandler struct {
	patients service.PatientService
	sessions *SessionStore
	logger   *zap.Logger
}

// NewPatientHandler 创建患者记录 Handler
func NewPatientHandler(patients service.PatientService, sessions *SessionStore, logger *zap.Logger) *PatientHandler {
	return &PatientHandler{
		patients: patients,
		sessions: sessions,
		logger:   logger,
	}
}

// principal 会话解析，失败时已写响应
func (h *PatientHandler) principal(w http.ResponseWriter, r *http.Request) *domain.Principal {
	p, err := h.sessions.PrincipalFromRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return nil
	}
	return p
}

// Create POST /records/api/v1/patients
func (h *PatientHandler) Create(w http.ResponseWriter, r *http.Request) {
	p := h.principal(w, r)
	if p == nil {
		return
	}

	var body service.PatientInput
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	view, err := h.patients.CreatePatient(r.Context(), p, body)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(view))
}

// Get GET /records/api/v1/patients/{id}
func (h *PatientHandler) Get(w http.ResponseWriter, r *http.Request, patientID string) {
	p := h.principal(w, r)
	if p == nil {
		return
	}

	view, err := h.patients.GetPatient(r.Context(), p, patientID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(view))
}

// Update PUT /records/api/v1/patients/{id}
func (h *PatientHandler) Update(w http.ResponseWriter, r *http.Request, patientID string) {
	p := h.principal(w, r)
	if p == nil {
		return
	}

	var body service.PatientInput
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	view, err := h.patients.UpdatePatient(r.Context(), p, patientID, body)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(view))
}

// Archive POST /records/api/v1/patients/{id}/archive
func (h *PatientHandler) Archive(w http.ResponseWriter, r *http.Request, patientID string) {
	p := h.principal(w, r)
	if p == nil {
		return
	}

	if err := h.patients.ArchivePatient(r.Context(), p, patientID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"archived": true}))
}

// List GET /records/api/v1/patients
func (h *PatientHandler) List(w http.ResponseWriter, r *http.Request) {
	p := h.principal(w, r)
	if p == nil {
		return
	}

	views, err := h.patients.ListPatients(r.Context(), p)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(views))
}

// Stats GET /records/api/v1/patients/stats
func (h *PatientHandler) Stats(w http.ResponseWriter, r *http.Request) {
	p := h.principal(w, r)
	if p == nil {
		return
	}

	stats, err := h.patients.PatientStats(r.Context(), p)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(stats))
}
