package repository

import (
	"context"
	"encoding/json"
	"time"

	"medvault-records/internal/domain"
	"medvault-records/internal/store"

	"go.uber.org/zap"
)

const auditLogKey = "audit:logs"

// RedisAuditRepository 审计日志Repository实现（append-only 列表）
// 写入是 best-effort：任何失败只记一条错误日志，绝不向触发操作回传错误
type RedisAuditRepository struct {
	kv     store.KV
	logger *zap.Logger
}

// NewRedisAuditRepository 创建审计日志Repository
func NewRedisAuditRepository(kv store.KV, logger *zap.Logger) *RedisAuditRepository {
	return &RedisAuditRepository{kv: kv, logger: logger}
}

var _ AuditRepository = (*RedisAuditRepository)(nil)

// Append 追加一条审计记录（fire-and-forget）
func (r *RedisAuditRepository) Append(ctx context.Context, entry domain.AuditEntry) {
	if entry.TS.IsZero() {
		entry.TS = time.Now().UTC()
	}
	if entry.Details == nil {
		entry.Details = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		r.logger.Error("Audit log marshal failed", zap.String("action", entry.Action), zap.Error(err))
		return
	}
	if err := r.kv.PushList(ctx, auditLogKey, string(data)); err != nil {
		r.logger.Error("Audit log insert failed", zap.String("action", entry.Action), zap.Error(err))
	}
}

// Latest 取最近 n 条审计记录（左端追加，所以 0..n-1 即时间倒序）
func (r *RedisAuditRepository) Latest(ctx context.Context, n int64) ([]domain.AuditEntry, error) {
	if n <= 0 {
		n = 100
	}
	raws, err := r.kv.RangeList(ctx, auditLogKey, 0, n-1)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.AuditEntry, 0, len(raws))
	for _, raw := range raws {
		var e domain.AuditEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue // 跳过坏记录
		}
		entries = append(entries, e)
	}
	return entries, nil
}
