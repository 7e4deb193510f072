package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"medvault-records/internal/domain"
	"medvault-records/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	sessionKeyPrefix  = "session:"
	SessionCookieName = "medvault_session"
)

// SessionStore 服务端会话（KV 存储，空闲超时滑动续期）
// 会话 ID 是不透明的随机 UUID，值为 JSON 序列化的 Principal；
// 每次成功读取都重置 TTL，连续空闲超过 idleTTL 的会话自动消失
type SessionStore struct {
	kv      store.KV
	idleTTL time.Duration
	logger  *zap.Logger
}

// NewSessionStore 创建会话存储
func NewSessionStore(kv store.KV, idleTTL time.Duration, logger *zap.Logger) *SessionStore {
	return &SessionStore{kv: kv, idleTTL: idleTTL, logger: logger}
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

// Create 建立新会话，返回会话 ID
func (s *SessionStore) Create(ctx context.Context, p domain.Principal) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal principal: %w", err)
	}
	sessionID := uuid.NewString()
	if err := s.kv.Set(ctx, sessionKey(sessionID), string(data), s.idleTTL); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}
	return sessionID, nil
}

// Get 读取会话并滑动续期；未命中返回 ErrUnauthenticated
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*domain.Principal, error) {
	if sessionID == "" {
		return nil, domain.ErrUnauthenticated
	}
	raw, err := s.kv.Get(ctx, sessionKey(sessionID))
	if err != nil {
		if errors.Is(err, store.ErrMiss) {
			return nil, domain.ErrUnauthenticated
		}
		return nil, err
	}

	var p domain.Principal
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		// 坏会话当作不存在处理
		s.logger.Warn("Discarding corrupt session", zap.Error(err))
		_ = s.kv.Delete(ctx, sessionKey(sessionID))
		return nil, domain.ErrUnauthenticated
	}

	if err := s.kv.Expire(ctx, sessionKey(sessionID), s.idleTTL); err != nil {
		s.logger.Warn("Failed to refresh session TTL", zap.Error(err))
	}
	return &p, nil
}

// Delete 销毁会话（登出）
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.kv.Delete(ctx, sessionKey(sessionID))
}

// SetCookie 写会话 Cookie
func (s *SessionStore) SetCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie 清除会话 Cookie
func (s *SessionStore) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// PrincipalFromRequest 从请求 Cookie 解析会话主体
func (s *SessionStore) PrincipalFromRequest(r *http.Request) (*domain.Principal, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil, domain.ErrUnauthenticated
	}
	return s.Get(r.Context(), cookie.Value)
}
