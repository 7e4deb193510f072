package service

import (
	"context"
	"testing"
	"time"

	"medvault-records/internal/crypto"
	"medvault-records/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type serviceEnv struct {
	users      *fakeUsersRepo
	tokens     *fakeTokensRepo
	clinicians *fakeCliniciansRepo
	patients   *fakePatientsRepo
	audit      *fakeAuditRepo
	notifier   *recordingNotifier

	auth     AuthService
	accounts AccountService
	patientS PatientService
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()
	logger := zap.NewNop()

	env := &serviceEnv{
		users:    newFakeUsersRepo(),
		tokens:   newFakeTokensRepo(),
		patients: newFakePatientsRepo(),
		audit:    newFakeAuditRepo(),
		notifier: &recordingNotifier{},
	}
	env.clinicians = newFakeCliniciansRepo(env.users)

	guard := NewGuard(env.clinicians, logger)
	env.auth = NewAuthService(env.users, env.tokens, env.audit, logger)
	env.accounts = NewAccountService(
		env.users, env.clinicians, env.tokens, env.patients, env.audit,
		env.notifier, 24*time.Hour, "http://localhost:8080", logger,
	)
	env.patientS = NewPatientService(env.patients, env.clinicians, env.audit, guard, logger)
	return env
}

// seedActiveUser 直接写入一个已激活账号，返回 user_id
func (env *serviceEnv) seedActiveUser(t *testing.T, username, password, role string) int64 {
	t.Helper()
	hash, err := crypto.HashPassword(password)
	require.NoError(t, err)
	id, err := env.users.CreateActiveUser(context.Background(), username, "Test "+username, role, hash)
	require.NoError(t, err)
	return id
}

func TestLogin_Success(t *testing.T) {
	env := newServiceEnv(t)
	env.seedActiveUser(t, "dr_lee", "Sup3r$ecret", domain.RoleClinician)

	resp, err := env.auth.Login(context.Background(), LoginRequest{
		Username: "  DR_LEE  ", // 大小写不敏感、两端空白剔除
		Password: "Sup3r$ecret",
	})

	require.NoError(t, err)
	assert.Equal(t, "dr_lee", resp.Username)
	assert.Equal(t, domain.RoleClinician, resp.Role)
	assert.Equal(t, []string{"login_success"}, env.audit.actions())
}

func TestLogin_WrongPassword(t *testing.T) {
	env := newServiceEnv(t)
	env.seedActiveUser(t, "dr_lee", "Sup3r$ecret", domain.RoleClinician)

	_, err := env.auth.Login(context.Background(), LoginRequest{
		Username: "dr_lee",
		Password: "wrong-password",
	})

	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.Empty(t, env.audit.actions())
}

func TestLogin_UnknownUserSameError(t *testing.T) {
	env := newServiceEnv(t)

	_, err := env.auth.Login(context.Background(), LoginRequest{
		Username: "ghost",
		Password: "whatever",
	})

	// 未知用户与密码错误必须不可区分
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestLogin_ArchivedAccount(t *testing.T) {
	env := newServiceEnv(t)
	id := env.seedActiveUser(t, "dr_lee", "Sup3r$ecret", domain.RoleClinician)
	require.NoError(t, env.users.UpdateArchiveState(context.Background(), id, time.Now().UTC()))

	_, err := env.auth.Login(context.Background(), LoginRequest{
		Username: "dr_lee",
		Password: "Sup3r$ecret",
	})

	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestLogin_NotActivatedAccount(t *testing.T) {
	env := newServiceEnv(t)
	_, err := env.users.CreateUser(context.Background(), "dr_new", "New Doc", domain.RoleClinician)
	require.NoError(t, err)

	_, err = env.auth.Login(context.Background(), LoginRequest{
		Username: "dr_new",
		Password: "anything",
	})

	// 未激活账号 password_hash 为 NULL，先按凭据错误挡下
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

// inviteClinician 跑一遍完整邀请流程，返回明文令牌
func inviteClinician(t *testing.T, env *serviceEnv, username string) (int64, string) {
	t.Helper()
	adminID := env.seedActiveUser(t, "admin_"+username, "Adm1n$ecret", domain.RoleAdmin)
	resp, err := env.accounts.InviteClinician(context.Background(), InviteClinicianRequest{
		ActorUserID:    adminID,
		Username:       username,
		FullName:       "Dr " + username,
		Specialization: "Cardiology",
		LicenseNumber:  "MD12345",
	})
	require.NoError(t, err)

	// 激活链接末段即明文令牌
	link := resp.ActivationLink
	raw := link[len("http://localhost:8080/auth/api/v1/activate/"):]
	require.NotEmpty(t, raw)
	return resp.UserID, raw
}

func TestActivate_Success(t *testing.T) {
	env := newServiceEnv(t)
	userID, raw := inviteClinician(t, env, "dr_lee")

	resp, err := env.auth.Activate(context.Background(), ActivateRequest{
		Token:           raw,
		Password:        "N3w$trongPwd",
		PasswordConfirm: "N3w$trongPwd",
	})

	require.NoError(t, err)
	assert.Equal(t, userID, resp.UserID)

	// 激活后可登录
	login, err := env.auth.Login(context.Background(), LoginRequest{
		Username: "dr_lee",
		Password: "N3w$trongPwd",
	})
	require.NoError(t, err)
	assert.Equal(t, userID, login.UserID)
}

func TestActivate_TokenSingleUse(t *testing.T) {
	env := newServiceEnv(t)
	_, raw := inviteClinician(t, env, "dr_lee")

	req := ActivateRequest{Token: raw, Password: "N3w$trongPwd", PasswordConfirm: "N3w$trongPwd"}
	_, err := env.auth.Activate(context.Background(), req)
	require.NoError(t, err)

	_, err = env.auth.Activate(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestActivate_ExpiredToken(t *testing.T) {
	env := newServiceEnv(t)
	userID, raw := inviteClinician(t, env, "dr_lee")

	// 把令牌改成刚刚过期
	require.NoError(t, env.tokens.InsertToken(context.Background(), userID, crypto.HashToken(raw), time.Now().UTC().Add(-time.Second)))

	_, err := env.auth.Activate(context.Background(), ActivateRequest{
		Token:           raw,
		Password:        "N3w$trongPwd",
		PasswordConfirm: "N3w$trongPwd",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestActivate_TokenStillValidJustBeforeExpiry(t *testing.T) {
	env := newServiceEnv(t)
	userID, raw := inviteClinician(t, env, "dr_lee")

	// 过期判定是严格大于 expires_at：临界点之前的令牌仍然有效
	require.NoError(t, env.tokens.InsertToken(context.Background(), userID, crypto.HashToken(raw), time.Now().UTC().Add(time.Second)))

	resp, err := env.auth.Activate(context.Background(), ActivateRequest{
		Token:           raw,
		Password:        "N3w$trongPwd",
		PasswordConfirm: "N3w$trongPwd",
	})

	require.NoError(t, err)
	assert.Equal(t, userID, resp.UserID)
}

func TestActivate_UnknownToken(t *testing.T) {
	env := newServiceEnv(t)

	_, err := env.auth.Activate(context.Background(), ActivateRequest{
		Token:           "not-a-real-token",
		Password:        "N3w$trongPwd",
		PasswordConfirm: "N3w$trongPwd",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestActivate_WeakPasswordDoesNotConsumeToken(t *testing.T) {
	env := newServiceEnv(t)
	_, raw := inviteClinician(t, env, "dr_lee")

	_, err := env.auth.Activate(context.Background(), ActivateRequest{
		Token:           raw,
		Password:        "weakpwd", // 缺大写/数字/特殊字符
		PasswordConfirm: "weakpwd",
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	// 弱密码被拒后令牌仍然可用
	_, err = env.auth.Activate(context.Background(), ActivateRequest{
		Token:           raw,
		Password:        "N3w$trongPwd",
		PasswordConfirm: "N3w$trongPwd",
	})
	assert.NoError(t, err)
}

func TestActivate_ConfirmMismatch(t *testing.T) {
	env := newServiceEnv(t)
	_, raw := inviteClinician(t, env, "dr_lee")

	_, err := env.auth.Activate(context.Background(), ActivateRequest{
		Token:           raw,
		Password:        "N3w$trongPwd",
		PasswordConfirm: "Different$1pwd",
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
