package codec

import (
	"strconv"
	"sync/atomic"
	"time"

	"medvault-records/internal/crypto"
	"medvault-records/internal/domain"

	"go.uber.org/zap"
)

// StoredPatient 患者文档的落库形态：敏感医疗字段被 Envelope 替换，其余字段原样透传
// 源值为 nil 时存 null（不是 envelope，也不省略字段）
type StoredPatient struct {
	PatientID string `json:"patient_id"`

	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Gender        string `json:"gender"`
	Age           int    `json:"age"`
	DateOfBirth   string `json:"date_of_birth,omitempty"`
	EverMarried   string `json:"ever_married,omitempty"`
	WorkType      string `json:"work_type,omitempty"`
	ResidenceType string `json:"residence_type,omitempty"`
	SmokingStatus string `json:"smoking_status,omitempty"`

	Hypertension    *crypto.Envelope `json:"hypertension"`
	HeartDisease    *crypto.Envelope `json:"heart_disease"`
	Stroke          *crypto.Envelope `json:"stroke"`
	BMI             *crypto.Envelope `json:"bmi"`
	AvgGlucoseLevel *crypto.Envelope `json:"avg_glucose_level"`

	CreatedBy int64 `json:"created_by"`

	IsArchived bool       `json:"is_archived"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// PatientCodec 敏感记录编解码器
// 在患者仓储边界调用：写入前加密固定的医疗字段集合，读出时解密并还原数值类型
// 解密/类型还原失败采取宽松策略：字段置 nil、记录告警并累加计数，整条记录仍然返回
type PatientCodec struct {
	key    []byte
	logger *zap.Logger

	decryptFailures atomic.Int64
}

// NewPatientCodec 创建编解码器，key 来自 crypto.DeriveKey
func NewPatientCodec(key []byte, logger *zap.Logger) *PatientCodec {
	return &PatientCodec{
		key:    key,
		logger: logger,
	}
}

// DecryptFailures 解密失败累计计数（观测钩子）
func (c *PatientCodec) DecryptFailures() int64 {
	return c.decryptFailures.Load()
}

// EncodeForStorage 将明文患者记录转换为落库形态
func (c *PatientCodec) EncodeForStorage(p *domain.Patient) (*StoredPatient, error) {
	stored := &StoredPatient{
		PatientID:     p.PatientID,
		FirstName:     p.FirstName,
		LastName:      p.LastName,
		Gender:        p.Gender,
		Age:           p.Age,
		DateOfBirth:   p.DateOfBirth,
		EverMarried:   p.EverMarried,
		WorkType:      p.WorkType,
		ResidenceType: p.ResidenceType,
		SmokingStatus: p.SmokingStatus,
		CreatedBy:     p.CreatedBy,
		IsArchived:    p.IsArchived,
		ArchivedAt:    p.ArchivedAt,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}

	var err error
	if p.Hypertension != nil {
		if stored.Hypertension, err = crypto.EncryptValue(c.key, strconv.Itoa(*p.Hypertension)); err != nil {
			return nil, err
		}
	}
	if p.HeartDisease != nil {
		if stored.HeartDisease, err = crypto.EncryptValue(c.key, strconv.Itoa(*p.HeartDisease)); err != nil {
			return nil, err
		}
	}
	if p.Stroke != nil {
		if stored.Stroke, err = crypto.EncryptValue(c.key, strconv.Itoa(*p.Stroke)); err != nil {
			return nil, err
		}
	}
	if p.BMI != nil {
		if stored.BMI, err = crypto.EncryptValue(c.key, formatFloat(*p.BMI)); err != nil {
			return nil, err
		}
	}
	if p.AvgGlucoseLevel != nil {
		if stored.AvgGlucoseLevel, err = crypto.EncryptValue(c.key, formatFloat(*p.AvgGlucoseLevel)); err != nil {
			return nil, err
		}
	}

	return stored, nil
}

// DecodeFromStorage 将落库形态还原为明文患者记录
// 任意单个字段解密或类型还原失败都不影响整条记录的返回（该字段置 nil）
func (c *PatientCodec) DecodeFromStorage(stored *StoredPatient) *domain.Patient {
	p := &domain.Patient{
		PatientID:     stored.PatientID,
		FirstName:     stored.FirstName,
		LastName:      stored.LastName,
		Gender:        stored.Gender,
		Age:           stored.Age,
		DateOfBirth:   stored.DateOfBirth,
		EverMarried:   stored.EverMarried,
		WorkType:      stored.WorkType,
		ResidenceType: stored.ResidenceType,
		SmokingStatus: stored.SmokingStatus,
		CreatedBy:     stored.CreatedBy,
		IsArchived:    stored.IsArchived,
		ArchivedAt:    stored.ArchivedAt,
		CreatedAt:     stored.CreatedAt,
		UpdatedAt:     stored.UpdatedAt,
	}

	p.Hypertension = c.decodeInt(stored.PatientID, "hypertension", stored.Hypertension)
	p.HeartDisease = c.decodeInt(stored.PatientID, "heart_disease", stored.HeartDisease)
	p.Stroke = c.decodeInt(stored.PatientID, "stroke", stored.Stroke)
	p.BMI = c.decodeFloat(stored.PatientID, "bmi", stored.BMI)
	p.AvgGlucoseLevel = c.decodeFloat(stored.PatientID, "avg_glucose_level", stored.AvgGlucoseLevel)

	return p
}

func (c *PatientCodec) decodeInt(patientID, field string, env *crypto.Envelope) *int {
	if env == nil {
		return nil
	}
	plain, err := crypto.DecryptValue(c.key, env)
	if err != nil {
		c.recordFailure(patientID, field, err)
		return nil
	}
	v, err := strconv.Atoi(plain)
	if err != nil {
		// 类型还原失败按宽松策略吞掉，字段呈现为 nil
		c.recordFailure(patientID, field, err)
		return nil
	}
	return &v
}

func (c *PatientCodec) decodeFloat(patientID, field string, env *crypto.Envelope) *float64 {
	if env == nil {
		return nil
	}
	plain, err := crypto.DecryptValue(c.key, env)
	if err != nil {
		c.recordFailure(patientID, field, err)
		return nil
	}
	v, err := strconv.ParseFloat(plain, 64)
	if err != nil {
		c.recordFailure(patientID, field, err)
		return nil
	}
	return &v
}

func (c *PatientCodec) recordFailure(patientID, field string, err error) {
	c.decryptFailures.Add(1)
	c.logger.Warn("Patient field decode failed, resolving to null",
		zap.String("patient_id", patientID),
		zap.String("field", field),
		zap.Error(err),
	)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
