package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"medvault-records/internal/domain"

	"github.com/lib/pq"
)

// PostgresTokensRepository 激活令牌Repository实现
// 令牌记录永不删除（审计留痕），作废一律通过置位 used_at 完成
type PostgresTokensRepository struct {
	db *sql.DB
}

// NewPostgresTokensRepository 创建令牌Repository
func NewPostgresTokensRepository(db *sql.DB) *PostgresTokensRepository {
	return &PostgresTokensRepository{db: db}
}

var _ TokensRepository = (*PostgresTokensRepository)(nil)

// 并发签发最多重试次数
const insertTokenMaxAttempts = 3

// InsertToken 签发新令牌
// 同一事务内先作废该账号全部未使用令牌再插入；uq_activation_tokens_user_unused
// 唯一索引兜底并发场景：READ COMMITTED 下两个并发事务的 UPDATE 互相看不到
// 对方新插入的行，各自都会走到 INSERT，后提交的撞唯一索引（23505）后整轮重试，
// 重试轮的 UPDATE 能看到对方已提交的令牌并将其作废
func (r *PostgresTokensRepository) InsertToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	var err error
	for attempt := 0; attempt < insertTokenMaxAttempts; attempt++ {
		err = r.insertTokenOnce(ctx, userID, tokenHash, expiresAt)
		if err == nil || !isUniqueViolation(err) {
			return err
		}
	}
	return fmt.Errorf("failed to issue token after %d attempts: %w", insertTokenMaxAttempts, err)
}

func (r *PostgresTokensRepository) insertTokenOnce(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	// 作废旧令牌
	_, err = tx.ExecContext(ctx, `
		UPDATE activation_tokens
		SET used_at = $1
		WHERE user_id = $2 AND used_at IS NULL
	`, now, userID)
	if err != nil {
		return fmt.Errorf("failed to invalidate prior tokens: %w", err)
	}

	// 插入新令牌
	_, err = tx.ExecContext(ctx, `
		INSERT INTO activation_tokens (user_id, token_hash, expires_at, used_at, created_at)
		VALUES ($1, $2, $3, NULL, $4)
	`, userID, tokenHash, expiresAt, now)
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}

	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// FindLatestByHash 按哈希取最近一条令牌记录
func (r *PostgresTokensRepository) FindLatestByHash(ctx context.Context, tokenHash string) (*domain.ActivationToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, used_at, created_at
		FROM activation_tokens
		WHERE token_hash = $1
		ORDER BY id DESC
		LIMIT 1
	`

	var token domain.ActivationToken
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&token.TokenID,
		&token.UserID,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.UsedAt,
		&token.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("token: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// MarkUsed 幂等消费：仅更新 used_at IS NULL 的记录
// 已消费时不报错（no-op），返回本次写入使用的时间戳
func (r *PostgresTokensRepository) MarkUsed(ctx context.Context, tokenHash string) (time.Time, error) {
	usedAt := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE activation_tokens
		SET used_at = $1
		WHERE token_hash = $2 AND used_at IS NULL
	`, usedAt, tokenHash)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to mark token used: %w", err)
	}
	return usedAt, nil
}
