package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"medvault-records/internal/domain"
	"medvault-records/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// PatientService 患者记录服务接口
// 所有操作要求已认证主体；归属检查在本层完成（查看=所有者或管理员，
// 修改=仅所有者），角色粗检（只有医生能建档）也在本层
type PatientService interface {
	CreatePatient(ctx context.Context, p *domain.Principal, req PatientInput) (*PatientView, error)
	GetPatient(ctx context.Context, p *domain.Principal, patientID string) (*PatientView, error)
	UpdatePatient(ctx context.Context, p *domain.Principal, patientID string, req PatientInput) (*PatientView, error)
	ArchivePatient(ctx context.Context, p *domain.Principal, patientID string) error
	ListPatients(ctx context.Context, p *domain.Principal) ([]PatientView, error)
	PatientStats(ctx context.Context, p *domain.Principal) (*PatientStatsResponse, error)
}

// patientService 实现
type patientService struct {
	patientsRepo   repository.PatientsRepository
	cliniciansRepo repository.CliniciansRepository
	auditRepo      repository.AuditRepository
	guard          *Guard
	logger         *zap.Logger
}

// NewPatientService 创建 PatientService 实例
func NewPatientService(
	patientsRepo repository.PatientsRepository,
	cliniciansRepo repository.CliniciansRepository,
	auditRepo repository.AuditRepository,
	guard *Guard,
	logger *zap.Logger,
) PatientService {
	return &patientService{
		patientsRepo:   patientsRepo,
		cliniciansRepo: cliniciansRepo,
		auditRepo:      auditRepo,
		guard:          guard,
		logger:         logger,
	}
}

// PatientInput 患者记录输入（创建与更新共用）
// 敏感字段用指针：nil 表示缺失/置空
type PatientInput struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Gender        string `json:"gender"`
	Age           int    `json:"age"`
	DateOfBirth   string `json:"date_of_birth"`
	EverMarried   string `json:"ever_married"`
	WorkType      string `json:"work_type"`
	ResidenceType string `json:"residence_type"`
	SmokingStatus string `json:"smoking_status"`

	Hypertension    *int     `json:"hypertension"`
	HeartDisease    *int     `json:"heart_disease"`
	Stroke          *int     `json:"stroke"`
	BMI             *float64 `json:"bmi"`
	AvgGlucoseLevel *float64 `json:"avg_glucose_level"`
}

// PatientView 患者记录对外视图（始终明文）
type PatientView struct {
	PatientID     string `json:"patient_id"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Gender        string `json:"gender"`
	Age           int    `json:"age"`
	DateOfBirth   string `json:"date_of_birth,omitempty"`
	EverMarried   string `json:"ever_married,omitempty"`
	WorkType      string `json:"work_type,omitempty"`
	ResidenceType string `json:"residence_type,omitempty"`
	SmokingStatus string `json:"smoking_status,omitempty"`

	Hypertension    *int     `json:"hypertension"`
	HeartDisease    *int     `json:"heart_disease"`
	Stroke          *int     `json:"stroke"`
	BMI             *float64 `json:"bmi"`
	AvgGlucoseLevel *float64 `json:"avg_glucose_level"`

	CreatedBy  int64  `json:"created_by"`
	IsArchived bool   `json:"is_archived"`
	ArchivedAt string `json:"archived_at,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

func toPatientView(p *domain.Patient) *PatientView {
	v := &PatientView{
		PatientID:       p.PatientID,
		FirstName:       p.FirstName,
		LastName:        p.LastName,
		Gender:          p.Gender,
		Age:             p.Age,
		DateOfBirth:     p.DateOfBirth,
		EverMarried:     p.EverMarried,
		WorkType:        p.WorkType,
		ResidenceType:   p.ResidenceType,
		SmokingStatus:   p.SmokingStatus,
		Hypertension:    p.Hypertension,
		HeartDisease:    p.HeartDisease,
		Stroke:          p.Stroke,
		BMI:             p.BMI,
		AvgGlucoseLevel: p.AvgGlucoseLevel,
		CreatedBy:       p.CreatedBy,
		IsArchived:      p.IsArchived,
		CreatedAt:       p.CreatedAt.Format(time.RFC3339),
	}
	if p.ArchivedAt != nil {
		v.ArchivedAt = p.ArchivedAt.Format(time.RFC3339)
	}
	if p.UpdatedAt != nil {
		v.UpdatedAt = p.UpdatedAt.Format(time.RFC3339)
	}
	return v
}

// validatePatientInput 人口学与医疗标志位的基础校验
func validatePatientInput(req *PatientInput) error {
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		return fmt.Errorf("first_name and last_name are required: %w", domain.ErrValidation)
	}
	if req.Age < 0 || req.Age > 130 {
		return fmt.Errorf("age out of range: %w", domain.ErrValidation)
	}
	for _, flag := range []struct {
		name  string
		value *int
	}{
		{"hypertension", req.Hypertension},
		{"heart_disease", req.HeartDisease},
		{"stroke", req.Stroke},
	} {
		if flag.value != nil && *flag.value != 0 && *flag.value != 1 {
			return fmt.Errorf("%s must be 0 or 1: %w", flag.name, domain.ErrValidation)
		}
	}
	if req.BMI != nil && (*req.BMI <= 0 || *req.BMI > 100) {
		return fmt.Errorf("bmi out of range: %w", domain.ErrValidation)
	}
	if req.AvgGlucoseLevel != nil && (*req.AvgGlucoseLevel <= 0 || *req.AvgGlucoseLevel > 1000) {
		return fmt.Errorf("avg_glucose_level out of range: %w", domain.ErrValidation)
	}
	return nil
}

// titleCase 人名规范化（"jane" -> "Jane"，"van der berg" -> "Van Der Berg"）
func titleCase(s string) string {
	return cases.Title(language.Und).String(s)
}

// ageFromDOB 出生日期（YYYY-MM-DD）换算为整数年龄
// 无法解析或晚于当天一律返回 0
func ageFromDOB(dob string, today time.Time) int {
	d, err := time.Parse("2006-01-02", dob)
	if err != nil {
		return 0
	}
	if d.After(today) {
		return 0
	}
	age := today.Year() - d.Year()
	if today.Month() < d.Month() || (today.Month() == d.Month() && today.Day() < d.Day()) {
		age--
	}
	return age
}

func applyPatientInput(p *domain.Patient, req *PatientInput) {
	p.FirstName = titleCase(strings.TrimSpace(req.FirstName))
	p.LastName = titleCase(strings.TrimSpace(req.LastName))
	p.Gender = strings.TrimSpace(req.Gender)
	p.DateOfBirth = strings.TrimSpace(req.DateOfBirth)
	// 给了出生日期就以它换算年龄，调用方传入的 age 仅在缺省时生效
	if p.DateOfBirth != "" {
		p.Age = ageFromDOB(p.DateOfBirth, time.Now().UTC())
	} else {
		p.Age = req.Age
	}
	p.EverMarried = strings.TrimSpace(req.EverMarried)
	p.WorkType = strings.TrimSpace(req.WorkType)
	p.ResidenceType = strings.TrimSpace(req.ResidenceType)
	p.SmokingStatus = strings.TrimSpace(req.SmokingStatus)
	p.Hypertension = req.Hypertension
	p.HeartDisease = req.HeartDisease
	p.Stroke = req.Stroke
	p.BMI = req.BMI
	p.AvgGlucoseLevel = req.AvgGlucoseLevel
}

// CreatePatient 建档（仅医生；归属为发起医生的档案 ID）
func (s *patientService) CreatePatient(ctx context.Context, p *domain.Principal, req PatientInput) (*PatientView, error) {
	if err := s.guard.RequireRole(p, domain.RoleClinician); err != nil {
		return nil, err
	}
	if err := validatePatientInput(&req); err != nil {
		return nil, err
	}

	clinician, err := s.cliniciansRepo.GetClinicianByUserID(ctx, p.UserID)
	if err != nil {
		// 医生角色但无档案：数据不一致，fail closed
		s.logger.Warn("Patient create refused: clinician profile missing",
			zap.Int64("user_id", p.UserID),
			zap.String("reason", "clinician_profile_missing"),
		)
		return nil, fmt.Errorf("no clinician profile for user: %w", domain.ErrForbidden)
	}

	patient := &domain.Patient{CreatedBy: clinician.ClinicianID}
	applyPatientInput(patient, &req)

	patientID, err := s.patientsRepo.CreatePatient(ctx, patient)
	if err != nil {
		return nil, fmt.Errorf("failed to create patient: %w", err)
	}

	s.logger.Info("Patient record created",
		zap.String("patient_id", patientID),
		zap.Int64("clinician_id", clinician.ClinicianID),
		zap.Int64("user_id", p.UserID),
	)
	s.auditRepo.Append(ctx, domain.AuditEntry{
		Action:      "patient_created",
		ActorUserID: p.UserID,
		Details:     map[string]any{"patient_id": patientID},
	})
	return toPatientView(patient), nil
}

// GetPatient 查看单条记录（所有者或管理员）
func (s *patientService) GetPatient(ctx context.Context, p *domain.Principal, patientID string) (*PatientView, error) {
	patient, err := s.patientsRepo.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireOwnerOrAdmin(ctx, p, patient); err != nil {
		return nil, err
	}

	s.auditRepo.Append(ctx, domain.AuditEntry{
		Action:      "patient_viewed",
		ActorUserID: p.UserID,
		Details:     map[string]any{"patient_id": patientID},
	})
	return toPatientView(patient), nil
}

// UpdatePatient 修改记录（仅所有者；归档记录只读）
func (s *patientService) UpdatePatient(ctx context.Context, p *domain.Principal, patientID string, req PatientInput) (*PatientView, error) {
	patient, err := s.patientsRepo.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireOwnerOnly(ctx, p, patient); err != nil {
		return nil, err
	}
	if patient.IsArchived {
		return nil, fmt.Errorf("archived patient record is read-only: %w", domain.ErrValidation)
	}
	if err := validatePatientInput(&req); err != nil {
		return nil, err
	}

	applyPatientInput(patient, &req)
	if err := s.patientsRepo.UpdatePatient(ctx, patient); err != nil {
		return nil, fmt.Errorf("failed to update patient: %w", err)
	}

	s.logger.Info("Patient record updated",
		zap.String("patient_id", patientID),
		zap.Int64("user_id", p.UserID),
	)
	s.auditRepo.Append(ctx, domain.AuditEntry{
		Action:      "patient_updated",
		ActorUserID: p.UserID,
		Details:     map[string]any{"patient_id": patientID},
	})
	return toPatientView(patient), nil
}

// ArchivePatient 归档记录（仅所有者，单向；重复归档幂等）
func (s *patientService) ArchivePatient(ctx context.Context, p *domain.Principal, patientID string) error {
	patient, err := s.patientsRepo.GetPatient(ctx, patientID)
	if err != nil {
		return err
	}
	if err := s.guard.RequireOwnerOnly(ctx, p, patient); err != nil {
		return err
	}
	if patient.IsArchived {
		return nil
	}

	if err := s.patientsRepo.ArchivePatient(ctx, patientID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to archive patient: %w", err)
	}

	s.logger.Info("Patient record archived",
		zap.String("patient_id", patientID),
		zap.Int64("user_id", p.UserID),
	)
	s.auditRepo.Append(ctx, domain.AuditEntry{
		Action:      "patient_archived",
		ActorUserID: p.UserID,
		Details:     map[string]any{"patient_id": patientID},
	})
	return nil
}

// ListPatients 列表：管理员看全量，医生只看自己名下
func (s *patientService) ListPatients(ctx context.Context, p *domain.Principal) ([]PatientView, error) {
	if err := s.guard.RequireRole(p, domain.RoleAdmin, domain.RoleClinician); err != nil {
		return nil, err
	}

	patients, err := s.visiblePatients(ctx, p)
	if err != nil {
		return nil, err
	}

	views := make([]PatientView, 0, len(patients))
	for _, patient := range patients {
		views = append(views, *toPatientView(patient))
	}
	return views, nil
}

// visiblePatients 主体可见的患者集合
func (s *patientService) visiblePatients(ctx context.Context, p *domain.Principal) ([]*domain.Patient, error) {
	if p.IsAdmin() {
		return s.patientsRepo.ListPatients(ctx)
	}
	clinician, err := s.cliniciansRepo.GetClinicianByUserID(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("no clinician profile for user: %w", domain.ErrForbidden)
	}
	return s.patientsRepo.ListPatientsByClinician(ctx, clinician.ClinicianID)
}

// PatientStatsResponse 卒中队列统计
// 性别分布、工种分布与平均年龄/BMI 只在 stroke==1 队列上计算
type PatientStatsResponse struct {
	TotalPatients     int            `json:"total_patients"`
	ArchivedCount     int            `json:"archived_count"`
	NewToday          int            `json:"new_today"`
	StrokeCases       int            `json:"stroke_cases"`
	HypertensionCases int            `json:"hypertension_cases"`
	GenderCounts      map[string]int `json:"gender_counts"`
	WorkTypeCounts    map[string]int `json:"work_type_counts"`
	AvgAge            *float64       `json:"avg_age"`
	AvgBMI            *float64       `json:"avg_bmi"`
	AvgGlucoseLevel   *float64       `json:"avg_glucose_level"`
}

// PatientStats 在可见集合上聚合统计
// 平均值只在非空字段上计算；解密失败置空的字段自然被排除在分母之外
func (s *patientService) PatientStats(ctx context.Context, p *domain.Principal) (*PatientStatsResponse, error) {
	if err := s.guard.RequireRole(p, domain.RoleAdmin, domain.RoleClinician); err != nil {
		return nil, err
	}

	patients, err := s.visiblePatients(ctx, p)
	if err != nil {
		return nil, err
	}

	stats := &PatientStatsResponse{
		TotalPatients:  len(patients),
		GenderCounts:   map[string]int{},
		WorkTypeCounts: map[string]int{},
	}
	todayStart := time.Now().UTC().Truncate(24 * time.Hour)

	var ageSum, bmiSum, glucoseSum float64
	var ageN, bmiN, glucoseN int
	for _, patient := range patients {
		if patient.IsArchived {
			stats.ArchivedCount++
		}
		if !patient.CreatedAt.Before(todayStart) {
			stats.NewToday++
		}
		if patient.Hypertension != nil && *patient.Hypertension == 1 {
			stats.HypertensionCases++
		}
		if patient.AvgGlucoseLevel != nil {
			glucoseSum += *patient.AvgGlucoseLevel
			glucoseN++
		}

		if patient.Stroke == nil || *patient.Stroke != 1 {
			continue
		}
		stats.StrokeCases++
		stats.GenderCounts[orUnknown(patient.Gender)]++
		stats.WorkTypeCounts[orUnknown(patient.WorkType)]++
		ageSum += float64(patient.Age)
		ageN++
		if patient.BMI != nil {
			bmiSum += *patient.BMI
			bmiN++
		}
	}
	if ageN > 0 {
		avg := round1(ageSum / float64(ageN))
		stats.AvgAge = &avg
	}
	if bmiN > 0 {
		avg := round1(bmiSum / float64(bmiN))
		stats.AvgBMI = &avg
	}
	if glucoseN > 0 {
		avg := round1(glucoseSum / float64(glucoseN))
		stats.AvgGlucoseLevel = &avg
	}
	return stats, nil
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
