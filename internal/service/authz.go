package service

import (
	"context"
	"fmt"

	"medvault-records/internal/domain"
	"medvault-records/internal/repository"

	"go.uber.org/zap"
)

// Guard 授权检查器
// 检查顺序固定：先认证（401），再角色（403），最后资源归属（403）
// 归属链解析：patient.created_by -> clinicians.id -> clinicians.user_id
// 任何解析失败一律 fail closed 按无权处理，绝不因查询出错而放行
type Guard struct {
	cliniciansRepo repository.CliniciansRepository
	logger         *zap.Logger
}

// NewGuard 创建授权检查器
func NewGuard(cliniciansRepo repository.CliniciansRepository, logger *zap.Logger) *Guard {
	return &Guard{cliniciansRepo: cliniciansRepo, logger: logger}
}

// RequireAuthenticated 要求请求携带会话主体
func (g *Guard) RequireAuthenticated(p *domain.Principal) error {
	if p == nil {
		return domain.ErrUnauthenticated
	}
	return nil
}

// RequireRole 要求主体角色属于给定集合
func (g *Guard) RequireRole(p *domain.Principal, roles ...string) error {
	if err := g.RequireAuthenticated(p); err != nil {
		return err
	}
	for _, role := range roles {
		if p.Role == role {
			return nil
		}
	}
	g.logger.Warn("Authorization denied: role mismatch",
		zap.Int64("user_id", p.UserID),
		zap.String("role", p.Role),
		zap.Strings("required_roles", roles),
		zap.String("reason", "role_mismatch"),
	)
	return fmt.Errorf("role %q not permitted: %w", p.Role, domain.ErrForbidden)
}

// resolveOwner 解析患者记录归属的账号 ID
func (g *Guard) resolveOwner(ctx context.Context, patient *domain.Patient) (int64, error) {
	clinician, err := g.cliniciansRepo.GetClinicianByID(ctx, patient.CreatedBy)
	if err != nil {
		// 归属链断裂（档案被删或 created_by 脏数据）：按无权处理
		g.logger.Warn("Authorization denied: owner resolution failed",
			zap.String("patient_id", patient.PatientID),
			zap.Int64("created_by", patient.CreatedBy),
			zap.String("reason", "owner_resolution_failed"),
			zap.Error(err),
		)
		return 0, fmt.Errorf("cannot resolve record owner: %w", domain.ErrForbidden)
	}
	return clinician.UserID, nil
}

// RequireOwnerOrAdmin 查看权限：记录所有者或管理员
func (g *Guard) RequireOwnerOrAdmin(ctx context.Context, p *domain.Principal, patient *domain.Patient) error {
	if err := g.RequireAuthenticated(p); err != nil {
		return err
	}
	if p.IsAdmin() {
		return nil
	}
	ownerID, err := g.resolveOwner(ctx, patient)
	if err != nil {
		return err
	}
	if ownerID != p.UserID {
		g.logger.Warn("Authorization denied: not record owner",
			zap.Int64("user_id", p.UserID),
			zap.String("patient_id", patient.PatientID),
			zap.String("reason", "not_owner"),
		)
		return fmt.Errorf("not record owner: %w", domain.ErrForbidden)
	}
	return nil
}

// RequireOwnerOnly 修改权限：仅记录所有者（管理员也不能改写临床数据）
func (g *Guard) RequireOwnerOnly(ctx context.Context, p *domain.Principal, patient *domain.Patient) error {
	if err := g.RequireAuthenticated(p); err != nil {
		return err
	}
	ownerID, err := g.resolveOwner(ctx, patient)
	if err != nil {
		return err
	}
	if ownerID != p.UserID {
		g.logger.Warn("Authorization denied: not record owner",
			zap.Int64("user_id", p.UserID),
			zap.String("patient_id", patient.PatientID),
			zap.String("reason", "not_owner"),
		)
		return fmt.Errorf("not record owner: %w", domain.ErrForbidden)
	}
	return nil
}
