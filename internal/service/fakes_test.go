package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"medvault-records/internal/domain"
	"medvault-records/internal/repository"

	"github.com/google/uuid"
)

// 内存版 Repository 实现，行为对齐 Postgres/KV 实现的约定
// （大小写不敏感用户名、唯一约束冲突、幂等令牌消费等）

type fakeUsersRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*domain.User
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{nextID: 1, users: make(map[int64]*domain.User)}
}

var _ repository.UsersRepository = (*fakeUsersRepo)(nil)

func (f *fakeUsersRepo) GetUserByID(_ context.Context, userID int64) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, fmt.Errorf("user: %w", domain.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsersRepo) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	needle := strings.ToLower(strings.TrimSpace(username))
	for _, u := range f.users {
		if strings.ToLower(u.Username) == needle {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user: %w", domain.ErrNotFound)
}

func (f *fakeUsersRepo) create(username, fullName, roleName, passwordHash string, active bool) (int64, error) {
	needle := strings.ToLower(strings.TrimSpace(username))
	for _, u := range f.users {
		if strings.ToLower(u.Username) == needle {
			return 0, fmt.Errorf("username: %w", domain.ErrConflict)
		}
	}
	id := f.nextID
	f.nextID++
	u := &domain.User{
		UserID:    id,
		Username:  strings.TrimSpace(username),
		FullName:  fullName,
		RoleName:  roleName,
		IsActive:  active,
		CreatedAt: time.Now().UTC(),
	}
	if passwordHash != "" {
		u.PasswordHash = sql.NullString{String: passwordHash, Valid: true}
	}
	f.users[id] = u
	return id, nil
}

func (f *fakeUsersRepo) CreateUser(_ context.Context, username, fullName, roleName string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.create(username, fullName, roleName, "", false)
}

func (f *fakeUsersRepo) CreateActiveUser(_ context.Context, username, fullName, roleName, passwordHash string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.create(username, fullName, roleName, passwordHash, true)
}

func (f *fakeUsersRepo) UpdateHashAndActivate(_ context.Context, userID int64, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return fmt.Errorf("user %d: %w", userID, domain.ErrNotFound)
	}
	u.PasswordHash = sql.NullString{String: passwordHash, Valid: true}
	u.IsActive = true
	u.UpdatedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	return nil
}

func (f *fakeUsersRepo) UpdateArchiveState(_ context.Context, userID int64, archivedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return fmt.Errorf("user %d: %w", userID, domain.ErrNotFound)
	}
	u.IsArchived = true
	u.ArchivedAt = sql.NullTime{Time: archivedAt, Valid: true}
	return nil
}

func (f *fakeUsersRepo) GetRoleByName(_ context.Context, name string) (*domain.Role, error) {
	switch name {
	case domain.RoleAdmin, domain.RoleClinician, domain.RoleAuditor:
		return &domain.Role{Name: name}, nil
	}
	return nil, fmt.Errorf("role %q: %w", name, domain.ErrNotFound)
}

func (f *fakeUsersRepo) SeedRoles(context.Context) error { return nil }

func (f *fakeUsersRepo) CountUsersByRole(context.Context) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := map[string]int{domain.RoleAdmin: 0, domain.RoleClinician: 0, domain.RoleAuditor: 0}
	for _, u := range f.users {
		counts[u.RoleName]++
	}
	return counts, nil
}

func (f *fakeUsersRepo) HasAdminUser(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.RoleName == domain.RoleAdmin {
			return true, nil
		}
	}
	return false, nil
}

type fakeTokensRepo struct {
	mu     sync.Mutex
	nextID int64
	tokens []*domain.ActivationToken
}

func newFakeTokensRepo() *fakeTokensRepo { return &fakeTokensRepo{nextID: 1} }

var _ repository.TokensRepository = (*fakeTokensRepo)(nil)

func (f *fakeTokensRepo) InsertToken(_ context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	for _, t := range f.tokens {
		if t.UserID == userID && !t.UsedAt.Valid {
			t.UsedAt = sql.NullTime{Time: now, Valid: true}
		}
	}
	f.tokens = append(f.tokens, &domain.ActivationToken{
		TokenID:   f.nextID,
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	})
	f.nextID++
	return nil
}

func (f *fakeTokensRepo) FindLatestByHash(_ context.Context, tokenHash string) (*domain.ActivationToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.tokens) - 1; i >= 0; i-- {
		if f.tokens[i].TokenHash == tokenHash {
			cp := *f.tokens[i]
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("token: %w", domain.ErrNotFound)
}

func (f *fakeTokensRepo) MarkUsed(_ context.Context, tokenHash string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	usedAt := time.Now().UTC()
	for _, t := range f.tokens {
		if t.TokenHash == tokenHash && !t.UsedAt.Valid {
			t.UsedAt = sql.NullTime{Time: usedAt, Valid: true}
		}
	}
	return usedAt, nil
}

// activeTokenCount 指定账号当前有效（未使用）令牌数
func (f *fakeTokensRepo) activeTokenCount(userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tokens {
		if t.UserID == userID && !t.UsedAt.Valid {
			n++
		}
	}
	return n
}

type fakeCliniciansRepo struct {
	mu         sync.Mutex
	nextID     int64
	clinicians map[int64]*domain.Clinician
	users      *fakeUsersRepo
}

func newFakeCliniciansRepo(users *fakeUsersRepo) *fakeCliniciansRepo {
	return &fakeCliniciansRepo{nextID: 1, clinicians: make(map[int64]*domain.Clinician), users: users}
}

var _ repository.CliniciansRepository = (*fakeCliniciansRepo)(nil)

func (f *fakeCliniciansRepo) CreateClinician(_ context.Context, userID int64, fullName, specialization, licenseNumber string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.clinicians {
		if c.LicenseNumber == licenseNumber {
			return 0, fmt.Errorf("license_number: %w", domain.ErrConflict)
		}
	}
	id := f.nextID
	f.nextID++
	f.clinicians[id] = &domain.Clinician{
		ClinicianID:    id,
		UserID:         userID,
		FullName:       fullName,
		Specialization: specialization,
		LicenseNumber:  licenseNumber,
		CreatedAt:      time.Now().UTC(),
	}
	return id, nil
}

func (f *fakeCliniciansRepo) GetClinicianByUserID(_ context.Context, userID int64) (*domain.Clinician, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.clinicians {
		if c.UserID == userID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("clinician: %w", domain.ErrNotFound)
}

func (f *fakeCliniciansRepo) GetClinicianByID(_ context.Context, clinicianID int64) (*domain.Clinician, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clinicians[clinicianID]
	if !ok {
		return nil, fmt.Errorf("clinician: %w", domain.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCliniciansRepo) ListClinicians(ctx context.Context) ([]*domain.ClinicianAccount, error) {
	f.mu.Lock()
	clinicians := make([]*domain.Clinician, 0, len(f.clinicians))
	for _, c := range f.clinicians {
		clinicians = append(clinicians, c)
	}
	f.mu.Unlock()

	sort.Slice(clinicians, func(i, j int) bool {
		return clinicians[i].CreatedAt.After(clinicians[j].CreatedAt)
	})

	items := make([]*domain.ClinicianAccount, 0, len(clinicians))
	for _, c := range clinicians {
		u, err := f.users.GetUserByID(ctx, c.UserID)
		if err != nil {
			continue
		}
		items = append(items, &domain.ClinicianAccount{
			UserID:             u.UserID,
			Username:           u.Username,
			IsActive:           u.IsActive,
			IsArchived:         u.IsArchived,
			ArchivedAt:         u.ArchivedAt,
			RoleName:           u.RoleName,
			UserCreatedAt:      u.CreatedAt,
			ClinicianID:        c.ClinicianID,
			FullName:           c.FullName,
			Specialization:     c.Specialization,
			LicenseNumber:      c.LicenseNumber,
			ClinicianCreatedAt: c.CreatedAt,
		})
	}
	return items, nil
}

func (f *fakeCliniciansRepo) CountClinicians(ctx context.Context) (int, int, error) {
	items, err := f.ListClinicians(ctx)
	if err != nil {
		return 0, 0, err
	}
	active := 0
	for _, c := range items {
		if c.IsActive && !c.IsArchived {
			active++
		}
	}
	return len(items), active, nil
}

type fakePatientsRepo struct {
	mu       sync.Mutex
	patients map[string]*domain.Patient
}

func newFakePatientsRepo() *fakePatientsRepo {
	return &fakePatientsRepo{patients: make(map[string]*domain.Patient)}
}

var _ repository.PatientsRepository = (*fakePatientsRepo)(nil)

func (f *fakePatientsRepo) CreatePatient(_ context.Context, p *domain.Patient) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.PatientID = uuid.NewString()
	p.CreatedAt = time.Now().UTC()
	cp := *p
	f.patients[p.PatientID] = &cp
	return p.PatientID, nil
}

func (f *fakePatientsRepo) GetPatient(_ context.Context, patientID string) (*domain.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.patients[patientID]
	if !ok {
		return nil, fmt.Errorf("patient %s: %w", patientID, domain.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (f *fakePatientsRepo) UpdatePatient(_ context.Context, p *domain.Patient) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.patients[p.PatientID]; !ok {
		return fmt.Errorf("patient %s: %w", p.PatientID, domain.ErrNotFound)
	}
	now := time.Now().UTC()
	p.UpdatedAt = &now
	cp := *p
	f.patients[p.PatientID] = &cp
	return nil
}

func (f *fakePatientsRepo) ArchivePatient(_ context.Context, patientID string, archivedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.patients[patientID]
	if !ok {
		return fmt.Errorf("patient %s: %w", patientID, domain.ErrNotFound)
	}
	p.IsArchived = true
	p.ArchivedAt = &archivedAt
	return nil
}

func (f *fakePatientsRepo) ListPatients(context.Context) ([]*domain.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	patients := make([]*domain.Patient, 0, len(f.patients))
	for _, p := range f.patients {
		cp := *p
		patients = append(patients, &cp)
	}
	sort.Slice(patients, func(i, j int) bool {
		return patients[i].CreatedAt.After(patients[j].CreatedAt)
	})
	return patients, nil
}

func (f *fakePatientsRepo) ListPatientsByClinician(ctx context.Context, clinicianID int64) ([]*domain.Patient, error) {
	all, err := f.ListPatients(ctx)
	if err != nil {
		return nil, err
	}
	owned := make([]*domain.Patient, 0, len(all))
	for _, p := range all {
		if p.CreatedBy == clinicianID {
			owned = append(owned, p)
		}
	}
	return owned, nil
}

func (f *fakePatientsRepo) CountPatients(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.patients), nil
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func newFakeAuditRepo() *fakeAuditRepo { return &fakeAuditRepo{} }

var _ repository.AuditRepository = (*fakeAuditRepo)(nil)

func (f *fakeAuditRepo) Append(_ context.Context, entry domain.AuditEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entry.TS.IsZero() {
		entry.TS = time.Now().UTC()
	}
	f.entries = append([]domain.AuditEntry{entry}, f.entries...)
}

func (f *fakeAuditRepo) Latest(_ context.Context, n int64) ([]domain.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n <= 0 || n > int64(len(f.entries)) {
		n = int64(len(f.entries))
	}
	out := make([]domain.AuditEntry, n)
	copy(out, f.entries[:n])
	return out, nil
}

// actions 按时间倒序的动作名列表
func (f *fakeAuditRepo) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.Action)
	}
	return out
}

// recordingNotifier 记录投递载荷的 InviteNotifier
type recordingNotifier struct {
	mu   sync.Mutex
	sent []InviteNotification
	fail bool
}

var _ InviteNotifier = (*recordingNotifier)(nil)

func (r *recordingNotifier) NotifyInvite(_ context.Context, n InviteNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return fmt.Errorf("webhook unavailable")
	}
	r.sent = append(r.sent, n)
	return nil
}
