package domain

import "time"

// AuditEntry 审计日志条目（文档库 append-only）
// 写入是 best-effort：审计失败不能使触发它的业务操作失败
type AuditEntry struct {
	Action      string         `json:"action"`
	ActorUserID int64          `json:"actor_user_id"`
	Details     map[string]any `json:"details"`
	TS          time.Time      `json:"ts"`
}
