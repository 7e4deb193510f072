package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"medvault-records/internal/codec"
	"medvault-records/internal/domain"
	"medvault-records/internal/store"

	"github.com/google/uuid"
)

const patientKeyPrefix = "patient:"

// KVPatientsRepository 患者文档Repository实现（KV文档库）
// 文档以 JSON 存储，键为 patient:<uuid>；敏感字段的加解密在本层
// 通过 codec 完成，调用方永远只接触明文视图
type KVPatientsRepository struct {
	kv    store.KV
	codec *codec.PatientCodec
}

// NewKVPatientsRepository 创建患者Repository
func NewKVPatientsRepository(kv store.KV, c *codec.PatientCodec) *KVPatientsRepository {
	return &KVPatientsRepository{kv: kv, codec: c}
}

var _ PatientsRepository = (*KVPatientsRepository)(nil)

func patientKey(patientID string) string {
	return patientKeyPrefix + patientID
}

func (r *KVPatientsRepository) put(ctx context.Context, stored *codec.StoredPatient) error {
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal patient document: %w", err)
	}
	// 患者文档不设 TTL
	return r.kv.Set(ctx, patientKey(stored.PatientID), string(data), 0)
}

// CreatePatient 新建患者文档，返回生成的文档 ID
func (r *KVPatientsRepository) CreatePatient(ctx context.Context, p *domain.Patient) (string, error) {
	p.PatientID = uuid.NewString()
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = nil

	stored, err := r.codec.EncodeForStorage(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode patient: %w", err)
	}
	if err := r.put(ctx, stored); err != nil {
		return "", err
	}
	return p.PatientID, nil
}

// GetPatient 读取并解码患者文档
func (r *KVPatientsRepository) GetPatient(ctx context.Context, patientID string) (*domain.Patient, error) {
	raw, err := r.kv.Get(ctx, patientKey(patientID))
	if err != nil {
		if errors.Is(err, store.ErrMiss) {
			return nil, fmt.Errorf("patient %s: %w", patientID, domain.ErrNotFound)
		}
		return nil, err
	}

	var stored codec.StoredPatient
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal patient document: %w", err)
	}
	return r.codec.DecodeFromStorage(&stored), nil
}

// UpdatePatient 覆盖写患者文档（重新加密全部敏感字段）
func (r *KVPatientsRepository) UpdatePatient(ctx context.Context, p *domain.Patient) error {
	// 确认文档存在
	if _, err := r.kv.Get(ctx, patientKey(p.PatientID)); err != nil {
		if errors.Is(err, store.ErrMiss) {
			return fmt.Errorf("patient %s: %w", p.PatientID, domain.ErrNotFound)
		}
		return err
	}

	now := time.Now().UTC()
	p.UpdatedAt = &now

	stored, err := r.codec.EncodeForStorage(p)
	if err != nil {
		return fmt.Errorf("failed to encode patient: %w", err)
	}
	return r.put(ctx, stored)
}

// ArchivePatient 归档患者（单向）
// 直接在落库形态上置位，不做解密-重加密往返：宽松解码会把解不开的
// 密文置空，若在归档时回写会把原始密文永久抹掉
func (r *KVPatientsRepository) ArchivePatient(ctx context.Context, patientID string, archivedAt time.Time) error {
	raw, err := r.kv.Get(ctx, patientKey(patientID))
	if err != nil {
		if errors.Is(err, store.ErrMiss) {
			return fmt.Errorf("patient %s: %w", patientID, domain.ErrNotFound)
		}
		return err
	}

	var stored codec.StoredPatient
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return fmt.Errorf("failed to unmarshal patient document: %w", err)
	}
	stored.IsArchived = true
	stored.ArchivedAt = &archivedAt
	stored.UpdatedAt = &archivedAt
	return r.put(ctx, &stored)
}

// ListPatients 全量患者列表（创建时间倒序）
func (r *KVPatientsRepository) ListPatients(ctx context.Context) ([]*domain.Patient, error) {
	keys, err := r.kv.ScanKeys(ctx, patientKeyPrefix+"*")
	if err != nil {
		return nil, err
	}

	patients := make([]*domain.Patient, 0, len(keys))
	for _, key := range keys {
		raw, err := r.kv.Get(ctx, key)
		if err != nil {
			if errors.Is(err, store.ErrMiss) {
				continue // scan 和 get 之间被删除
			}
			return nil, err
		}
		var stored codec.StoredPatient
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			continue // 跳过坏文档，不让单条脏数据拖垮整个列表
		}
		patients = append(patients, r.codec.DecodeFromStorage(&stored))
	}

	sort.Slice(patients, func(i, j int) bool {
		return patients[i].CreatedAt.After(patients[j].CreatedAt)
	})
	return patients, nil
}

// ListPatientsByClinician 指定医生名下的患者列表
func (r *KVPatientsRepository) ListPatientsByClinician(ctx context.Context, clinicianID int64) ([]*domain.Patient, error) {
	all, err := r.ListPatients(ctx)
	if err != nil {
		return nil, err
	}
	patients := make([]*domain.Patient, 0, len(all))
	for _, p := range all {
		if p.CreatedBy == clinicianID {
			patients = append(patients, p)
		}
	}
	return patients, nil
}

// CountPatients 患者总数（admin dashboard）
func (r *KVPatientsRepository) CountPatients(ctx context.Context) (int, error) {
	keys, err := r.kv.ScanKeys(ctx, patientKeyPrefix+"*")
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}
