package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"medvault-records/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginRoute_Success(t *testing.T) {
	env := newHandlerEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/api/v1/login",
		strings.NewReader(`{"username":"dr_lee","password":"Sup3r$ecret"}`))
	rec := env.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var result Result[map[string]any]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, ResultSuccess, result.Code)
	assert.Equal(t, "dr_lee", result.Result["username"])

	// 会话 Cookie 已下发且有效
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	var sessionValue string
	for _, c := range cookies {
		if c.Name == SessionCookieName {
			sessionValue = c.Value
		}
	}
	require.NotEmpty(t, sessionValue)

	p, err := env.sessions.Get(req.Context(), sessionValue)
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.UserID)
}

func TestLoginRoute_BadCredentials(t *testing.T) {
	env := newHandlerEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/api/v1/login",
		strings.NewReader(`{"username":"dr_lee","password":"wrong"}`))
	rec := env.do(req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var result Result[any]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, ResultError, result.Code)
}

func TestLoginRoute_MethodNotAllowed(t *testing.T) {
	env := newHandlerEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/auth/api/v1/login", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLogoutRoute_DestroysSession(t *testing.T) {
	env := newHandlerEnv(t)
	cookie := env.sessionCookie(t, domain.Principal{UserID: 7, Role: domain.RoleClinician})

	req := httptest.NewRequest(http.MethodPost, "/auth/api/v1/logout", nil)
	req.AddCookie(cookie)
	rec := env.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)

	_, err := env.sessions.Get(req.Context(), cookie.Value)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestActivateRoute_Success(t *testing.T) {
	env := newHandlerEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/api/v1/activate/good-token",
		strings.NewReader(`{"password":"N3w$trongPwd","password_confirm":"N3w$trongPwd"}`))
	rec := env.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var result Result[map[string]any]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "dr_lee", result.Result["username"])
}

func TestActivateRoute_BadToken(t *testing.T) {
	env := newHandlerEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/api/v1/activate/bad-token",
		strings.NewReader(`{"password":"N3w$trongPwd","password_confirm":"N3w$trongPwd"}`))
	rec := env.do(req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestActivateRoute_EmptyToken(t *testing.T) {
	env := newHandlerEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/auth/api/v1/activate/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
