package domain

import (
	"database/sql"
	"time"
)

// 角色代码（roles 表种子数据，可扩展）
const (
	RoleAdmin     = "admin"
	RoleClinician = "clinician"
	RoleAuditor   = "auditor"
)

// User 用户领域模型（对应 users 表）
// 生命周期：邀请创建时 is_active=false、password_hash 为 NULL；
// 激活成功后 is_active=true；管理员归档后 is_archived=true（单向，不可登录）
type User struct {
	// 主键
	UserID int64 `db:"id"`

	// 账号信息
	Username     string         `db:"username"`      // NOT NULL, UNIQUE
	FullName     string         `db:"full_name"`     // NOT NULL
	PasswordHash sql.NullString `db:"password_hash"` // nullable，激活前为 NULL

	// 角色
	RoleID   int64  `db:"role_id"`
	RoleName string `db:"-"` // JOIN roles 得到的冗余角色名，便于快速检查

	// 状态
	IsActive   bool         `db:"is_active"`
	IsArchived bool         `db:"is_archived"` // DEFAULT FALSE
	ArchivedAt sql.NullTime `db:"archived_at"` // nullable

	// 时间戳
	CreatedAt time.Time    `db:"created_at"`
	UpdatedAt sql.NullTime `db:"updated_at"` // nullable
}

// Principal 请求级会话主体（显式传入每个授权检查，不读隐式全局状态）
type Principal struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

// IsAdmin 是否管理员
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}
