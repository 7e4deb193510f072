package repository

import (
	"context"
	"time"

	"medvault-records/internal/domain"
)

// UsersRepository 账号Repository接口
// 使用强类型领域模型，不使用map[string]any
type UsersRepository interface {
	// 查询（均携带 JOIN roles 的角色名）
	GetUserByID(ctx context.Context, userID int64) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)

	// 创建（邀请流程：is_active=false、password_hash 为 NULL）
	CreateUser(ctx context.Context, username, fullName, roleName string) (int64, error)

	// 激活：写入密码哈希、is_active=true、刷新 updated_at
	UpdateHashAndActivate(ctx context.Context, userID int64, passwordHash string) error

	// 归档：置位 is_archived/archived_at（单向）
	UpdateArchiveState(ctx context.Context, userID int64, archivedAt time.Time) error

	// 角色
	GetRoleByName(ctx context.Context, name string) (*domain.Role, error)
	SeedRoles(ctx context.Context) error

	// 统计（admin dashboard）
	CountUsersByRole(ctx context.Context) (map[string]int, error)
	HasAdminUser(ctx context.Context) (bool, error)

	// bootstrap：创建首个激活态管理员
	CreateActiveUser(ctx context.Context, username, fullName, roleName, passwordHash string) (int64, error)
}

// TokensRepository 激活令牌Repository接口
type TokensRepository interface {
	// InsertToken 同一事务内先作废该账号所有未使用令牌，再插入新令牌
	// 并发为同一账号签发时不得同时留下两个有效令牌
	InsertToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error

	// FindLatestByHash 按哈希查最近一条令牌记录（无论是否有效）
	FindLatestByHash(ctx context.Context, tokenHash string) (*domain.ActivationToken, error)

	// MarkUsed 幂等消费：仅在 used_at IS NULL 时置位，返回写入的时间戳
	MarkUsed(ctx context.Context, tokenHash string) (time.Time, error)
}

// CliniciansRepository 医生档案Repository接口
type CliniciansRepository interface {
	CreateClinician(ctx context.Context, userID int64, fullName, specialization, licenseNumber string) (int64, error)
	GetClinicianByUserID(ctx context.Context, userID int64) (*domain.Clinician, error)
	GetClinicianByID(ctx context.Context, clinicianID int64) (*domain.Clinician, error)
	ListClinicians(ctx context.Context) ([]*domain.ClinicianAccount, error)
	CountClinicians(ctx context.Context) (total int, active int, err error)
}

// PatientsRepository 患者文档Repository接口
// 敏感字段编解码在实现内部的存储边界完成，调用方只接触明文视图
type PatientsRepository interface {
	CreatePatient(ctx context.Context, p *domain.Patient) (string, error)
	GetPatient(ctx context.Context, patientID string) (*domain.Patient, error)
	UpdatePatient(ctx context.Context, p *domain.Patient) error
	ArchivePatient(ctx context.Context, patientID string, archivedAt time.Time) error
	ListPatients(ctx context.Context) ([]*domain.Patient, error)
	ListPatientsByClinician(ctx context.Context, clinicianID int64) ([]*domain.Patient, error)
	CountPatients(ctx context.Context) (int, error)
}

// AuditRepository 审计日志Repository接口
type AuditRepository interface {
	// Append best-effort 追加，失败只记日志不回传错误
	Append(ctx context.Context, entry domain.AuditEntry)

	// Latest 取最近 n 条，按时间倒序
	Latest(ctx context.Context, n int64) ([]domain.AuditEntry, error)
}
