package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"medvault-records/internal/domain"
)

// PostgresCliniciansRepository 医生档案Repository实现
type PostgresCliniciansRepository struct {
	db *sql.DB
}

// NewPostgresCliniciansRepository 创建医生档案Repository
func NewPostgresCliniciansRepository(db *sql.DB) *PostgresCliniciansRepository {
	return &PostgresCliniciansRepository{db: db}
}

var _ CliniciansRepository = (*PostgresCliniciansRepository)(nil)

// CreateClinician 创建医生档案（user_id、license_number 均唯一）
func (r *PostgresCliniciansRepository) CreateClinician(ctx context.Context, userID int64, fullName, specialization, licenseNumber string) (int64, error) {
	query := `
		INSERT INTO clinicians (user_id, full_name, specialization, license_number, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query, userID, fullName, specialization, licenseNumber, time.Now().UTC()).Scan(&id)
	if err != nil {
		return 0, translateUniqueViolation(err, "license_number")
	}
	return id, nil
}

func (r *PostgresCliniciansRepository) scanClinician(row *sql.Row) (*domain.Clinician, error) {
	var c domain.Clinician
	err := row.Scan(
		&c.ClinicianID,
		&c.UserID,
		&c.FullName,
		&c.Specialization,
		&c.LicenseNumber,
		&c.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("clinician: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetClinicianByUserID 按账号查档案（登录归档检查、患者归属解析使用）
func (r *PostgresCliniciansRepository) GetClinicianByUserID(ctx context.Context, userID int64) (*domain.Clinician, error) {
	query := `
		SELECT id, user_id, full_name, specialization, license_number, created_at
		FROM clinicians
		WHERE user_id = $1
	`
	return r.scanClinician(r.db.QueryRowContext(ctx, query, userID))
}

// GetClinicianByID 按档案主键查档案（patient.created_by -> clinician -> user 归属链）
func (r *PostgresCliniciansRepository) GetClinicianByID(ctx context.Context, clinicianID int64) (*domain.Clinician, error) {
	query := `
		SELECT id, user_id, full_name, specialization, license_number, created_at
		FROM clinicians
		WHERE id = $1
	`
	return r.scanClinician(r.db.QueryRowContext(ctx, query, clinicianID))
}

// ListClinicians 医生列表（users JOIN clinicians，按档案创建时间倒序）
func (r *PostgresCliniciansRepository) ListClinicians(ctx context.Context) ([]*domain.ClinicianAccount, error) {
	query := `
		SELECT
			users.id AS user_id,
			users.username,
			users.is_active,
			users.is_archived,
			users.archived_at,
			roles.name AS role_name,
			users.created_at AS user_created_at,

			clinicians.id AS clinician_id,
			clinicians.full_name,
			clinicians.specialization,
			clinicians.license_number,
			clinicians.created_at AS clinician_created_at

		FROM users
		JOIN roles ON users.role_id = roles.id
		JOIN clinicians ON clinicians.user_id = users.id
		WHERE roles.name = 'clinician'
		ORDER BY clinicians.created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.ClinicianAccount
	for rows.Next() {
		var c domain.ClinicianAccount
		err := rows.Scan(
			&c.UserID,
			&c.Username,
			&c.IsActive,
			&c.IsArchived,
			&c.ArchivedAt,
			&c.RoleName,
			&c.UserCreatedAt,
			&c.ClinicianID,
			&c.FullName,
			&c.Specialization,
			&c.LicenseNumber,
			&c.ClinicianCreatedAt,
		)
		if err != nil {
			return nil, err
		}
		items = append(items, &c)
	}
	return items, rows.Err()
}

// CountClinicians 医生总数与激活数（admin dashboard）
func (r *PostgresCliniciansRepository) CountClinicians(ctx context.Context) (int, int, error) {
	query := `
		SELECT COUNT(1), COUNT(1) FILTER (WHERE users.is_active AND NOT users.is_archived)
		FROM clinicians
		JOIN users ON users.id = clinicians.user_id
	`
	var total, active int
	if err := r.db.QueryRowContext(ctx, query).Scan(&total, &active); err != nil {
		return 0, 0, fmt.Errorf("failed to count clinicians: %w", err)
	}
	return total, active, nil
}
