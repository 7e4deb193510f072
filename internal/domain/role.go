package domain

// Role 角色领域模型（对应 roles 表）
type Role struct {
	RoleID      int64  `db:"id"`
	Name        string `db:"name"`        // NOT NULL, UNIQUE: admin / clinician / auditor
	Description string `db:"description"` // NOT NULL
}
