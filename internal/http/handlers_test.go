package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"medvault-records/internal/domain"
	"medvault-records/internal/repository"
	"medvault-records/internal/service"
	"medvault-records/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubAuthService 固定凭据的 AuthService
type stubAuthService struct{}

var _ service.AuthService = (*stubAuthService)(nil)

func (s *stubAuthService) Login(_ context.Context, req service.LoginRequest) (*service.LoginResponse, error) {
	if req.Username == "dr_lee" && req.Password == "Sup3r$ecret" {
		return &service.LoginResponse{UserID: 7, Username: "dr_lee", FullName: "Lee Araba", Role: domain.RoleClinician}, nil
	}
	return nil, domain.ErrInvalidCredentials
}

func (s *stubAuthService) Activate(_ context.Context, req service.ActivateRequest) (*service.ActivateResponse, error) {
	if req.Token != "good-token" {
		return nil, fmt.Errorf("invalid or expired activation token: %w", domain.ErrInvalidCredentials)
	}
	if req.Password != req.PasswordConfirm {
		return nil, fmt.Errorf("password confirmation does not match: %w", domain.ErrValidation)
	}
	return &service.ActivateResponse{UserID: 7, Username: "dr_lee"}, nil
}

// stubPatientService 内存患者服务（只做会话与路由测试所需的最小行为）
type stubPatientService struct {
	views map[string]*service.PatientView
}

var _ service.PatientService = (*stubPatientService)(nil)

func newStubPatientService() *stubPatientService {
	return &stubPatientService{views: make(map[string]*service.PatientView)}
}

func (s *stubPatientService) CreatePatient(_ context.Context, p *domain.Principal, req service.PatientInput) (*service.PatientView, error) {
	if p == nil {
		return nil, domain.ErrUnauthenticated
	}
	if p.Role != domain.RoleClinician {
		return nil, domain.ErrForbidden
	}
	view := &service.PatientView{
		PatientID: fmt.Sprintf("p-%d", len(s.views)+1),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		CreatedBy: p.UserID,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	s.views[view.PatientID] = view
	return view, nil
}

func (s *stubPatientService) GetPatient(_ context.Context, p *domain.Principal, patientID string) (*service.PatientView, error) {
	if p == nil {
		return nil, domain.ErrUnauthenticated
	}
	view, ok := s.views[patientID]
	if !ok {
		return nil, fmt.Errorf("patient %s: %w", patientID, domain.ErrNotFound)
	}
	return view, nil
}

func (s *stubPatientService) UpdatePatient(_ context.Context, p *domain.Principal, patientID string, req service.PatientInput) (*service.PatientView, error) {
	view, err := s.GetPatient(nil, p, patientID)
	if err != nil {
		return nil, err
	}
	view.FirstName = req.FirstName
	return view, nil
}

func (s *stubPatientService) ArchivePatient(_ context.Context, p *domain.Principal, patientID string) error {
	_, err := s.GetPatient(nil, p, patientID)
	return err
}

func (s *stubPatientService) ListPatients(_ context.Context, p *domain.Principal) ([]service.PatientView, error) {
	if p == nil {
		return nil, domain.ErrUnauthenticated
	}
	out := make([]service.PatientView, 0, len(s.views))
	for _, v := range s.views {
		out = append(out, *v)
	}
	return out, nil
}

func (s *stubPatientService) PatientStats(_ context.Context, p *domain.Principal) (*service.PatientStatsResponse, error) {
	if p == nil {
		return nil, domain.ErrUnauthenticated
	}
	return &service.PatientStatsResponse{TotalPatients: len(s.views)}, nil
}

// stubCliniciansRepo Guard 角色检查用（不解析归属）
type stubCliniciansRepo struct{}

var _ repository.CliniciansRepository = (*stubCliniciansRepo)(nil)

func (stubCliniciansRepo) CreateClinician(context.Context, int64, string, string, string) (int64, error) {
	return 0, fmt.Errorf("not implemented")
}
func (stubCliniciansRepo) GetClinicianByUserID(context.Context, int64) (*domain.Clinician, error) {
	return nil, fmt.Errorf("clinician: %w", domain.ErrNotFound)
}
func (stubCliniciansRepo) GetClinicianByID(context.Context, int64) (*domain.Clinician, error) {
	return nil, fmt.Errorf("clinician: %w", domain.ErrNotFound)
}
func (stubCliniciansRepo) ListClinicians(context.Context) ([]*domain.ClinicianAccount, error) {
	return nil, nil
}
func (stubCliniciansRepo) CountClinicians(context.Context) (int, int, error) { return 0, 0, nil }

// memAuditRepo 内存审计日志
type memAuditRepo struct {
	entries []domain.AuditEntry
}

var _ repository.AuditRepository = (*memAuditRepo)(nil)

func (m *memAuditRepo) Append(_ context.Context, entry domain.AuditEntry) {
	if entry.TS.IsZero() {
		entry.TS = time.Now().UTC()
	}
	m.entries = append([]domain.AuditEntry{entry}, m.entries...)
}

func (m *memAuditRepo) Latest(_ context.Context, n int64) ([]domain.AuditEntry, error) {
	if n > int64(len(m.entries)) {
		n = int64(len(m.entries))
	}
	return m.entries[:n], nil
}

// handlerEnv 路由 + 会话 + stub 服务
type handlerEnv struct {
	router   *Router
	sessions *SessionStore
	audit    *memAuditRepo
	mr       *miniredis.Miniredis
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	logger := zap.NewNop()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	sessions := NewSessionStore(store.NewRedisKV(client), 15*time.Minute, logger)
	guard := service.NewGuard(stubCliniciansRepo{}, logger)
	audit := &memAuditRepo{}

	router := NewRouter(logger)
	router.RegisterAuthRoutes(NewAuthHandler(&stubAuthService{}, sessions, logger))
	router.RegisterPatientRoutes(NewPatientHandler(newStubPatientService(), sessions, logger))
	router.RegisterAuditRoutes(NewAuditHandler(audit, sessions, guard, logger))

	return &handlerEnv{router: router, sessions: sessions, audit: audit, mr: mr}
}

// sessionCookie 为指定主体直接建会话并返回 Cookie
func (env *handlerEnv) sessionCookie(t *testing.T, p domain.Principal) *http.Cookie {
	t.Helper()
	id, err := env.sessions.Create(context.Background(), p)
	require.NoError(t, err)
	return &http.Cookie{Name: SessionCookieName, Value: id}
}

func (env *handlerEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}
