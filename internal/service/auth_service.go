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

// AuthService 认证服务接口
type AuthService interface {
	// 登录功能
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)

	// 令牌激活功能（邀请流程的收尾：设置初始密码并激活账号）
	Activate(ctx context.Context, req ActivateRequest) (*ActivateResponse, error)
}

// authService 实现
type authService struct {
	usersRepo  repository.UsersRepository
	tokensRepo repository.TokensRepository
	auditRepo  repository.AuditRepository
	logger     *zap.Logger
}

// NewAuthService 创建 AuthService 实例
func NewAuthService(
	usersRepo repository.UsersRepository,
	tokensRepo repository.TokensRepository,
	auditRepo repository.AuditRepository,
	logger *zap.Logger,
) AuthService {
	return &authService{
		usersRepo:  usersRepo,
		tokensRepo: tokensRepo,
		auditRepo:  auditRepo,
		logger:     logger,
	}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username  string // 必填，大小写不敏感
	Password  string // 必填，明文（仅在内存中短暂存在）
	IPAddress string // 客户端 IP（用于日志）
	UserAgent string // 客户端 User-Agent（用于日志）
}

// LoginResponse 登录响应
type LoginResponse struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// Principal 本次登录对应的会话主体
func (r *LoginResponse) Principal() domain.Principal {
	return domain.Principal{UserID: r.UserID, Role: r.Role}
}

// Login 用户登录
// 失败路径对外一律返回低信息量的 ErrInvalidCredentials：
// 不区分"用户不存在"与"密码错误"，细节只进结构化日志
func (s *authService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	// 1. 参数验证和规范化
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		s.logger.Warn("User login failed: missing credentials",
			zap.String("ip_address", req.IPAddress),
			zap.String("user_agent", req.UserAgent),
			zap.String("reason", "missing_credentials"),
		)
		return nil, fmt.Errorf("missing credentials: %w", domain.ErrInvalidCredentials)
	}

	// 2. 查找账号
	user, err := s.usersRepo.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// 未知用户也走一次哈希比较，避免时间侧信道泄露用户是否存在
			crypto.VerifyPassword(dummyBcryptHash, req.Password)
			s.logger.Warn("User login failed: invalid credentials",
				zap.String("username", req.Username),
				zap.String("ip_address", req.IPAddress),
				zap.String("user_agent", req.UserAgent),
				zap.String("reason", "unknown_user"),
			)
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	// 3. 密码校验
	if !user.PasswordHash.Valid || !crypto.VerifyPassword(user.PasswordHash.String, req.Password) {
		s.logger.Warn("User login failed: invalid credentials",
			zap.Int64("user_id", user.UserID),
			zap.String("username", user.Username),
			zap.String("ip_address", req.IPAddress),
			zap.String("user_agent", req.UserAgent),
			zap.String("reason", "password_mismatch"),
		)
		return nil, domain.ErrInvalidCredentials
	}

	// 4. 账号状态检查（密码正确之后才检查，顺序不可交换：
	// 状态错误信息的披露以通过认证为前提）
	if user.IsArchived {
		s.logger.Warn("User login failed: account archived",
			zap.Int64("user_id", user.UserID),
			zap.String("username", user.Username),
			zap.String("ip_address", req.IPAddress),
			zap.String("reason", "account_archived"),
		)
		return nil, fmt.Errorf("account is archived: %w", domain.ErrForbidden)
	}
	if !user.IsActive {
		s.logger.Warn("User login failed: account not activated",
			zap.Int64("user_id", user.UserID),
			zap.String("username", user.Username),
			zap.String("ip_address", req.IPAddress),
			zap.String("reason", "account_not_active"),
		)
		return nil, fmt.Errorf("account is not activated: %w", domain.ErrForbidden)
	}

	// 5. 登录成功
	s.logger.Info("User login successful",
		zap.Int64("user_id", user.UserID),
		zap.String("username", user.Username),
		zap.String("role", user.RoleName),
		zap.String("ip_address", req.IPAddress),
		zap.String("user_agent", req.UserAgent),
		zap.Time("login_time", time.Now()),
	)
	s.auditRepo.Append(ctx, domain.AuditEntry{
		Action:      "login_success",
		ActorUserID: user.UserID,
		Details:     map[string]any{"username": user.Username, "role": user.RoleName},
	})

	return &LoginResponse{
		UserID:   user.UserID,
		Username: user.Username,
		FullName: user.FullName,
		Role:     user.RoleName,
	}, nil
}

// ActivateRequest 激活请求
type ActivateRequest struct {
	Token           string // URL 中的明文令牌
	Password        string // 初始密码
	PasswordConfirm string // 确认密码
	IPAddress       string
}

// ActivateResponse 激活响应
type ActivateResponse struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// Activate 消费激活令牌：校验令牌与密码策略，设置密码哈希并激活账号
// 令牌失败一律返回同一个低信息量错误：不区分"不存在"、"已使用"、"已过期"
func (s *authService) Activate(ctx context.Context, req ActivateRequest) (*ActivateResponse, error) {
	tokenInvalid := func(reason string, fields ...zap.Field) error {
		fields = append(fields,
			zap.String("ip_address", req.IPAddress),
			zap.String("reason", reason),
		)
		s.logger.Warn("Account activation failed", fields...)
		return fmt.Errorf("invalid or expired activation token: %w", domain.ErrInvalidCredentials)
	}

	// 1. 令牌查找（只比对哈希，明文令牌从不落库也从不入日志）
	raw := strings.TrimSpace(req.Token)
	if raw == "" {
		return nil, tokenInvalid("missing_token")
	}
	token, err := s.tokensRepo.FindLatestByHash(ctx, crypto.HashToken(raw))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, tokenInvalid("unknown_token")
		}
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	// 2. 令牌状态检查：已使用或已过期（now > expires_at 才算过期，边界时刻仍有效）
	if token.UsedAt.Valid {
		return nil, tokenInvalid("token_already_used", zap.Int64("user_id", token.UserID))
	}
	if time.Now().UTC().After(token.ExpiresAt) {
		return nil, tokenInvalid("token_expired", zap.Int64("user_id", token.UserID))
	}

	// 3. 目标账号状态检查
	user, err := s.usersRepo.GetUserByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, tokenInvalid("user_missing", zap.Int64("user_id", token.UserID))
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user.IsArchived {
		return nil, tokenInvalid("account_archived", zap.Int64("user_id", user.UserID))
	}

	// 4. 密码策略检查（在任何写操作之前：弱密码不消耗令牌，可重试）
	if req.Password != req.PasswordConfirm {
		return nil, fmt.Errorf("password confirmation does not match: %w", domain.ErrValidation)
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}

	// 5. 写入：设置哈希并激活，然后消费令牌
	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.usersRepo.UpdateHashAndActivate(ctx, user.UserID, hash); err != nil {
		return nil, fmt.Errorf("failed to activate account: %w", err)
	}
	if _, err := s.tokensRepo.MarkUsed(ctx, token.TokenHash); err != nil {
		// 账号已激活但令牌未消费：记错误日志，不回滚激活
		s.logger.Error("Failed to mark activation token used",
			zap.Int64("user_id", user.UserID),
			zap.Error(err),
		)
	}

	s.logger.Info("Account activated",
		zap.Int64("user_id", user.UserID),
		zap.String("username", user.Username),
		zap.String("ip_address", req.IPAddress),
	)
	s.auditRepo.Append(ctx, domain.AuditEntry{
		Action:      "account_activated",
		ActorUserID: user.UserID,
		Details:     map[string]any{"username": user.Username},
	})

	return &ActivateResponse{UserID: user.UserID, Username: user.Username}, nil
}

// dummyBcryptHash 未知用户登录时用于等时比较的占位 bcrypt 哈希
const dummyBcryptHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"
