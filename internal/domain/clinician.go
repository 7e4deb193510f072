package domain

import (
	"database/sql"
	"time"
)

// Clinician 临床医生档案（对应 clinicians 表）
// 与 users 一对一：user_id 唯一，是患者归属链 patient -> clinician -> user 的中间节点
type Clinician struct {
	ClinicianID int64 `db:"id"`
	UserID      int64 `db:"user_id"` // NOT NULL, UNIQUE, FK users(id)

	FullName       string `db:"full_name"`      // NOT NULL
	Specialization string `db:"specialization"` // NOT NULL
	LicenseNumber  string `db:"license_number"` // NOT NULL, UNIQUE，格式 ^[A-Z]{2,3}\d{4,6}$

	CreatedAt time.Time `db:"created_at"`
}

// ClinicianAccount 医生列表视图（users + clinicians JOIN 结果）
type ClinicianAccount struct {
	UserID     int64        `db:"user_id"`
	Username   string       `db:"username"`
	IsActive   bool         `db:"is_active"`
	IsArchived bool         `db:"is_archived"`
	RoleName   string       `db:"role_name"`
	UserCreatedAt time.Time `db:"user_created_at"`

	ClinicianID       int64     `db:"clinician_id"`
	FullName          string    `db:"full_name"`
	Specialization    string    `db:"specialization"`
	LicenseNumber     string    `db:"license_number"`
	ClinicianCreatedAt time.Time `db:"clinician_created_at"`

	ArchivedAt sql.NullTime `db:"archived_at"`
}
