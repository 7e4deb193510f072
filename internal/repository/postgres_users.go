package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"medvault-records/internal/domain"

	"github.com/lib/pq"
)

// PostgresUsersRepository 账号Repository实现（强类型版本）
type PostgresUsersRepository struct {
	db *sql.DB
}

// NewPostgresUsersRepository 创建账号Repository
func NewPostgresUsersRepository(db *sql.DB) *PostgresUsersRepository {
	return &PostgresUsersRepository{db: db}
}

// 确保实现了接口
var _ UsersRepository = (*PostgresUsersRepository)(nil)

const userSelectColumns = `
	users.id,
	users.username,
	users.full_name,
	users.password_hash,
	users.role_id,
	roles.name AS role_name,
	users.is_active,
	users.is_archived,
	users.archived_at,
	users.created_at,
	users.updated_at
`

func (r *PostgresUsersRepository) scanUser(row *sql.Row) (*domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.UserID,
		&user.Username,
		&user.FullName,
		&user.PasswordHash,
		&user.RoleID,
		&user.RoleName,
		&user.IsActive,
		&user.IsArchived,
		&user.ArchivedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByID 按主键获取账号（含角色名）
func (r *PostgresUsersRepository) GetUserByID(ctx context.Context, userID int64) (*domain.User, error) {
	query := `
		SELECT ` + userSelectColumns + `
		FROM users
		JOIN roles ON users.role_id = roles.id
		WHERE users.id = $1
	`
	return r.scanUser(r.db.QueryRowContext(ctx, query, userID))
}

// GetUserByUsername 按用户名获取账号（大小写不敏感，两端空白剔除）
func (r *PostgresUsersRepository) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `
		SELECT ` + userSelectColumns + `
		FROM users
		JOIN roles ON users.role_id = roles.id
		WHERE LOWER(users.username) = LOWER($1)
	`
	return r.scanUser(r.db.QueryRowContext(ctx, query, strings.TrimSpace(username)))
}

// CreateUser 创建未激活账号（邀请流程，password_hash 为 NULL）
func (r *PostgresUsersRepository) CreateUser(ctx context.Context, username, fullName, roleName string) (int64, error) {
	query := `
		INSERT INTO users (username, full_name, password_hash, role_id, is_active, created_at)
		SELECT $1, $2, NULL, roles.id, FALSE, $3
		FROM roles WHERE roles.name = $4
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query, strings.TrimSpace(username), fullName, time.Now().UTC(), roleName).Scan(&id)
	if err == sql.ErrNoRows {
		// INSERT ... SELECT 无行：角色不存在
		return 0, fmt.Errorf("role %q: %w", roleName, domain.ErrNotFound)
	}
	if err != nil {
		return 0, translateUniqueViolation(err, "username")
	}
	return id, nil
}

// CreateActiveUser 创建已激活账号（bootstrap 管理员）
func (r *PostgresUsersRepository) CreateActiveUser(ctx context.Context, username, fullName, roleName, passwordHash string) (int64, error) {
	query := `
		INSERT INTO users (username, full_name, password_hash, role_id, is_active, created_at)
		SELECT $1, $2, $3, roles.id, TRUE, $4
		FROM roles WHERE roles.name = $5
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query, strings.TrimSpace(username), fullName, passwordHash, time.Now().UTC(), roleName).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("role %q: %w", roleName, domain.ErrNotFound)
	}
	if err != nil {
		return 0, translateUniqueViolation(err, "username")
	}
	return id, nil
}

// UpdateHashAndActivate 激活账号：设置密码哈希并置位 is_active
func (r *PostgresUsersRepository) UpdateHashAndActivate(ctx context.Context, userID int64, passwordHash string) error {
	query := `
		UPDATE users
		SET password_hash = $1, is_active = TRUE, updated_at = $2
		WHERE id = $3
	`
	res, err := r.db.ExecContext(ctx, query, passwordHash, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to activate user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d: %w", userID, domain.ErrNotFound)
	}
	return nil
}

// UpdateArchiveState 归档账号（单向）
func (r *PostgresUsersRepository) UpdateArchiveState(ctx context.Context, userID int64, archivedAt time.Time) error {
	query := `
		UPDATE users
		SET is_archived = TRUE, archived_at = $1, updated_at = $1
		WHERE id = $2
	`
	res, err := r.db.ExecContext(ctx, query, archivedAt, userID)
	if err != nil {
		return fmt.Errorf("failed to archive user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d: %w", userID, domain.ErrNotFound)
	}
	return nil
}

// GetRoleByName 获取角色
func (r *PostgresUsersRepository) GetRoleByName(ctx context.Context, name string) (*domain.Role, error) {
	var role domain.Role
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, description FROM roles WHERE name = $1`, name,
	).Scan(&role.RoleID, &role.Name, &role.Description)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role %q: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// SeedRoles 种子角色数据（幂等）
func (r *PostgresUsersRepository) SeedRoles(ctx context.Context) error {
	query := `
		INSERT INTO roles (name, description) VALUES
			('admin', 'System Administrator with full privileges'),
			('clinician', 'Healthcare professional who manages patients'),
			('auditor', 'Auditor who audits logs')
		ON CONFLICT (name) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to seed roles: %w", err)
	}
	return nil
}

// CountUsersByRole 按角色统计账号数（admin dashboard）
func (r *PostgresUsersRepository) CountUsersByRole(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT roles.name, COUNT(users.id)
		FROM roles
		LEFT JOIN users ON users.role_id = roles.id
		GROUP BY roles.name
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		counts[name] = n
	}
	return counts, rows.Err()
}

// HasAdminUser 是否已存在管理员账号
func (r *PostgresUsersRepository) HasAdminUser(ctx context.Context) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM users JOIN roles ON users.role_id = roles.id WHERE roles.name = $1`,
		domain.RoleAdmin,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// translateUniqueViolation 唯一约束冲突转译为领域层 ErrConflict
// 避免把裸的数据库约束错误透传到上层
func translateUniqueViolation(err error, field string) error {
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return fmt.Errorf("%s: %w", field, domain.ErrConflict)
	}
	return err
}
