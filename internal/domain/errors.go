package domain

import "errors"

// 错误分类（sentinel errors）
// 各层用 fmt.Errorf("...: %w", ErrXxx) 包装，边界处用 errors.Is 判断
var (
	// ErrValidation 输入不合法（用户名格式、弱密码、确认不一致等），可由调用方修正后重试
	ErrValidation = errors.New("validation failed")

	// ErrInvalidCredentials 认证失败（凭据错误/账号未激活/令牌无效）
	// 低信息量：对外不区分"密码错误"与"用户不存在"，也不区分令牌"过期"与"已使用"
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthenticated 请求未携带会话主体
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden 已认证但权限不足（角色不符或非资源所有者），fail closed
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound 引用的账号/资源不存在
	ErrNotFound = errors.New("not found")

	// ErrConflict 唯一约束冲突（用户名/执照号已存在），边界处转译为 ErrValidation 语义
	ErrConflict = errors.New("already exists")
)
