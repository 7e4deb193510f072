package domain

import (
	"database/sql"
	"time"
)

// ActivationToken 激活令牌（对应 activation_tokens 表）
// 明文令牌绝不入库，只存 SHA-256 哈希；used_at 置位后不可复用；记录永不删除（审计留痕）
// 有效判定：used_at IS NULL 且 now <= expires_at
type ActivationToken struct {
	TokenID   int64        `db:"id"`
	UserID    int64        `db:"user_id"`    // NOT NULL, FK users(id)
	TokenHash string       `db:"token_hash"` // NOT NULL，hex(SHA-256(raw))
	ExpiresAt time.Time    `db:"expires_at"` // NOT NULL
	UsedAt    sql.NullTime `db:"used_at"`    // nullable，消费时间
	CreatedAt time.Time    `db:"created_at"`
}
