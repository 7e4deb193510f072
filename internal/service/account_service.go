package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"medvault-records/internal/crypto"
	"medvault-records/internal/domain"
	"medvault-records/internal/repository"

	"go.uber.org/zap"
)

// AccountService 账号管理服务接口（admin 专用操作 + bootstrap）
type AccountService interface {
	// 邀请流程
	InviteClinician(ctx context.Context, req InviteClinicianRequest) (*InviteClinicianResponse, error)
	ReissueInvite(ctx context.Context, req ReissueInviteRequest) (*InviteClinicianResponse, error)

	// 账号管理
	ListClinicians(ctx context.Context) ([]ClinicianItem, error)
	ArchiveAccount(ctx context.Context, req ArchiveAccountRequest) error

	// Dashboard 统计
	DashboardStats(ctx context.Context) (*DashboardStatsResponse, error)

	// Bootstrap 启动期初始化：种子角色 + 默认管理员
	Bootstrap(ctx context.Context, adminUsername, adminPassword string) error
}

// accountService 实现
type accountService struct {
	usersRepo      repository.UsersRepository
	cliniciansRepo repository.CliniciansRepository
	tokensRepo     repository.TokensRepository
	patientsRepo   repository.PatientsRepository
	auditRepo      repository.AuditRepository
	notifier       InviteNotifier
	tokenTTL       time.Duration
	baseURL        string
	logger         *zap.Logger
}

// NewAccountService 创建 AccountService 实例
func NewAccountService(
	usersRepo repository.UsersRepository,
	cliniciansRepo repository.CliniciansRepository,
	tokensRepo repository.TokensRepository,
	patientsRepo repository.PatientsRepository,
	auditRepo repository.AuditRepository,
	notifier InviteNotifier,
	tokenTTL time.Duration,
	baseURL string,
	logger *zap.Logger,
) AccountService {
	return &accountService{
		usersRepo:      usersRepo,
		cliniciansRepo: cliniciansRepo,
		tokensRepo:     tokensRepo,
		patientsRepo:   patientsRepo,
		auditRepo:      auditRepo,
		notifier:       notifier,
		tokenTTL:       tokenTTL,
		baseURL:        baseURL,
		logger:         logger,
	}
}

// InviteClinicianRequest 邀请医生请求
type InviteClinicianRequest struct {
	ActorUserID    int64  // 发起邀请的管理员
	Username       string // 新账号用户名
	FullName       string // 医生姓名
	Specialization string // 专科
	LicenseNumber  string // 执照号
}

// InviteClinicianResponse 邀请医生响应
// ActivationLink 携带明文令牌，只在本次响应与 webhook 投递中出现
type InviteClinicianResponse struct {
	UserID         int64  `json:"user_id"`
	ClinicianID    int64  `json:"clinician_id"`
	Username       string `json:"username"`
	ActivationLink string `json:"activation_link"`
	ExpiresAt      string `json:"expires_at"`
}

// InviteClinician 邀请医生：创建未激活账号与医生档案，签发激活令牌
func (s *accountService) InviteClinician(ctx context.Context, req InviteClinicianRequest) (*InviteClinicianResponse, error) {
	// 1. 输入校验
	req.Username = strings.TrimSpace(req.Username)
	req.LicenseNumber = strings.TrimSpace(req.LicenseNumber)
	if err := validateUsername(req.Username); err != nil {
		return nil, err
	}
	if err := validateFullName(req.FullName); err != nil {
		return nil, err
	}
	if err := validateLicenseNumber(req.LicenseNumber); err != nil {
		return nil, err
	}

	// 2. 创建未激活账号（password_hash 为 NULL）
	userID, err := s.usersRepo.CreateUser(ctx, req.Username, req.FullName, domain.RoleClinician)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("username already taken: %w", domain.ErrValidation)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// 3. 创建医生档案
	clinicianID, err := s.cliniciansRepo.CreateClinician(ctx, userID, strings.TrimSpace(req.FullName), strings.TrimSpace(req.Specialization), req.LicenseNumber)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("license number already registered: %w", domain.ErrValidation)
		}
		return nil, fmt.Errorf("failed to create clinician profile: %w", err)
	}

	// 4. 签发令牌并组装激活链接
	link, expiresAt, err := s.issueToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Clinician invited",
		zap.Int64("actor_user_id", req.ActorUserID),
		zap.Int64("user_id", userID),
		zap.Int64("clinician_id", clinicianID),
		zap.String("username", req.Username),
	)
	s.auditRepo.Append(ctx, domain.AuditEntry{
		Action:      "clinician_invited",
		ActorUserID: req.ActorUserID,
		Details:     map[string]any{"user_id": userID, "username": req.Username},
	})

	resp := &InviteClinicianResponse{
		UserID:         userID,
		ClinicianID:    clinicianID,
		Username:       req.Username,
		ActivationLink: link,
		ExpiresAt:      expiresAt.Format(time.RFC3339),
	}
	s.deliverInvite(ctx, req.Username, req.FullName, resp)
	return resp, nil
}

// ReissueInviteRequest 重发邀请请求
type ReissueInviteRequest struct {
	ActorUserID int64
	UserID      int64 // 目标账号
}

// ReissueInvite 重发邀请：对未激活账号重新签发令牌（旧令牌同事务作废）
func (s *accountService) ReissueInvite(ctx context.Context, req ReissueInviteRequest) (*InviteClinicianResponse, error) {
	user, err := s.usersRepo.GetUserByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if user.IsArchived {
		return nil, fmt.Errorf("account is archived: %w", domain.ErrValidation)
	}
	if user.IsActive {
		return nil, fmt.Errorf("account is already activated: %w", domain.ErrValidation)
	}

	link, expiresAt, err := s.issueToken(ctx, user.UserID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Invite reissued",
		zap.Int64("actor_user_id", req.ActorUserID),
		zap.Int64("user_id", user.UserID),
		zap.String("username", user.Username),
	)
	s.auditRepo.Append(ctx, domain.AuditEntry{
		Action:      "invite_reissued",
		ActorUserID: req.ActorUserID,
		Details:     map[string]any{"user_id": user.UserID, "username": user.Username},
	})

	resp := &InviteClinicianResponse{
		UserID:         user.UserID,
		Username:       user.Username,
		ActivationLink: link,
		ExpiresAt:      expiresAt.Format(time.RFC3339),
	}
	s.deliverInvite(ctx, user.Username, user.FullName, resp)
	return resp, nil
}

// issueToken 生成明文令牌、落库哈希、组装激活链接
func (s *accountService) issueToken(ctx context.Context, userID int64) (string, time.Time, error) {
	raw, err := crypto.NewActivationToken()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate token: %w", err)
	}
	expiresAt := time.Now().UTC().Add(s.tokenTTL)
	if err := s.tokensRepo.InsertToken(ctx, userID, crypto.HashToken(raw), expiresAt); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to store token: %w", err)
	}
	return fmt.Sprintf("%s/auth/api/v1/activate/%s", strings.TrimRight(s.baseURL, "/"), raw), expiresAt, nil
}

// deliverInvite webhook 投递（best-effort：投递失败只记日志，链接仍在响应里）
func (s *accountService) deliverInvite(ctx context.Context, username, fullName string, resp *InviteClinicianResponse) {
	err := s.notifier.NotifyInvite(ctx, InviteNotification{
		Username:       username,
		FullName:       fullName,
		ActivationLink: resp.ActivationLink,
		ExpiresAt:      resp.ExpiresAt,
	})
	if err != nil {
		s.logger.Warn("Invite notification delivery failed",
			zap.String("username", username),
			zap.Error(err),
		)
	}
}

// ClinicianItem 医生列表条目
type ClinicianItem struct {
	UserID         int64  `json:"user_id"`
	ClinicianID    int64  `json:"clinician_id"`
	Username       string `json:"username"`
	FullName       string `json:"full_name"`
	Specialization string `json:"specialization"`
	LicenseNumber  string `json:"license_number"`
	IsActive       bool   `json:"is_active"`
	IsArchived     bool   `json:"is_archived"`
	ArchivedAt     string `json:"archived_at,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// ListClinicians 医生列表
func (s *accountService) ListClinicians(ctx context.Context) ([]ClinicianItem, error) {
	accounts, err := s.cliniciansRepo.ListClinicians(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list clinicians: %w", err)
	}

	items := make([]ClinicianItem, 0, len(accounts))
	for _, a := range accounts {
		item := ClinicianItem{
			UserID:         a.UserID,
			ClinicianID:    a.ClinicianID,
			Username:       a.Username,
			FullName:       a.FullName,
			Specialization: a.Specialization,
			LicenseNumber:  a.LicenseNumber,
			IsActive:       a.IsActive,
			IsArchived:     a.IsArchived,
			CreatedAt:      a.ClinicianCreatedAt.Format(time.RFC3339),
		}
		if a.ArchivedAt.Valid {
			item.ArchivedAt = a.ArchivedAt.Time.Format(time.RFC3339)
		}
		items = append(items, item)
	}
	return items, nil
}

// ArchiveAccountRequest 归档账号请求
type ArchiveAccountRequest struct {
	ActorUserID int64
	UserID      int64 // 目标账号
}

// ArchiveAccount 归档账号（单向软删除）
// 管理员账号不可归档；已归档账号重复归档按幂等处理
func (s *accountService) ArchiveAccount(ctx context.Context, req ArchiveAccountRequest) error {
	user, err := s.usersRepo.GetUserByID(ctx, req.UserID)
	if err != nil {
		return err
	}
	if user.RoleName == domain.RoleAdmin {
		s.logger.Warn("Archive refused: admin account",
			zap.Int64("actor_user_id", req.ActorUserID),
			zap.Int64("user_id", req.UserID),
			zap.String("reason", "admin_not_archivable"),
		)
		return fmt.Errorf("admin accounts cannot be archived: %w", domain.ErrValidation)
	}
	if user.IsArchived {
		return nil
	}

	if err := s.usersRepo.UpdateArchiveState(ctx, req.UserID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to archive account: %w", err)
	}

	s.logger.Info("Account archived",
		zap.Int64("actor_user_id", req.ActorUserID),
		zap.Int64("user_id", req.UserID),
		zap.String("username", user.Username),
	)
	s.auditRepo.Append(ctx, domain.AuditEntry{
		Action:      "account_archived",
		ActorUserID: req.ActorUserID,
		Details:     map[string]any{"user_id": req.UserID, "username": user.Username},
	})
	return nil
}

// DashboardStatsResponse admin dashboard 统计
type DashboardStatsResponse struct {
	UsersByRole      map[string]int `json:"users_by_role"`
	TotalClinicians  int            `json:"total_clinicians"`
	ActiveClinicians int            `json:"active_clinicians"`
	TotalPatients    int            `json:"total_patients"`
}

// DashboardStats 聚合账号与患者总量统计
func (s *accountService) DashboardStats(ctx context.Context) (*DashboardStatsResponse, error) {
	byRole, err := s.usersRepo.CountUsersByRole(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	totalClinicians, activeClinicians, err := s.cliniciansRepo.CountClinicians(ctx)
	if err != nil {
		return nil, err
	}
	totalPatients, err := s.patientsRepo.CountPatients(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count patients: %w", err)
	}

	return &DashboardStatsResponse{
		UsersByRole:      byRole,
		TotalClinicians:  totalClinicians,
		ActiveClinicians: activeClinicians,
		TotalPatients:    totalPatients,
	}, nil
}

// Bootstrap 种子角色并确保默认管理员存在（幂等，启动期调用）
// 凭据未配置且库中尚无管理员时启动失败：系统不能无管理员运行
func (s *accountService) Bootstrap(ctx context.Context, adminUsername, adminPassword string) error {
	if err := s.usersRepo.SeedRoles(ctx); err != nil {
		return err
	}

	hasAdmin, err := s.usersRepo.HasAdminUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to check for admin user: %w", err)
	}
	if hasAdmin {
		return nil
	}

	if adminUsername == "" || adminPassword == "" {
		return fmt.Errorf("no admin user exists and ADMIN_USERNAME/ADMIN_PASSWORD not set")
	}
	if err := validateUsername(adminUsername); err != nil {
		return fmt.Errorf("admin bootstrap: %w", err)
	}
	if err := validatePassword(adminPassword); err != nil {
		return fmt.Errorf("admin bootstrap: %w", err)
	}

	hash, err := crypto.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	userID, err := s.usersRepo.CreateActiveUser(ctx, adminUsername, "System Administrator", domain.RoleAdmin, hash)
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	s.logger.Info("Default admin user created",
		zap.Int64("user_id", userID),
		zap.String("username", adminUsername),
	)
	return nil
}
