package domain

import "time"

// Patient 患者记录（文档库存储，主键为生成的 UUID）
// 敏感医疗字段（hypertension/heart_disease/stroke/bmi/avg_glucose_level）
// 在仓储边界经 codec 加密后才落库，这里始终是明文视图
// 指针为 nil 表示字段缺失/置空（与 0 值区分）
type Patient struct {
	PatientID string `json:"patient_id"`

	// 人口学信息（明文直存）
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Gender        string `json:"gender"`
	Age           int    `json:"age"`
	DateOfBirth   string `json:"date_of_birth,omitempty"` // YYYY-MM-DD
	EverMarried   string `json:"ever_married,omitempty"`
	WorkType      string `json:"work_type,omitempty"`
	ResidenceType string `json:"residence_type,omitempty"`
	SmokingStatus string `json:"smoking_status,omitempty"`

	// 敏感医疗字段
	Hypertension    *int     `json:"hypertension"`
	HeartDisease    *int     `json:"heart_disease"`
	Stroke          *int     `json:"stroke"`
	BMI             *float64 `json:"bmi"`
	AvgGlucoseLevel *float64 `json:"avg_glucose_level"`

	// 归属：创建该记录的医生（clinicians.id）
	CreatedBy int64 `json:"created_by"`

	// 状态与时间戳
	IsArchived bool       `json:"is_archived"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}
