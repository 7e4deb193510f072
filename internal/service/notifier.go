package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// InviteNotification 激活链接投递载荷
// 明文令牌只出现在这条出站消息里，服务端此后只持有哈希
type InviteNotification struct {
	Username       string `json:"username"`
	FullName       string `json:"full_name"`
	ActivationLink string `json:"activation_link"`
	ExpiresAt      string `json:"expires_at"` // RFC 3339
}

// InviteNotifier 激活链接投递接口
type InviteNotifier interface {
	NotifyInvite(ctx context.Context, n InviteNotification) error
}

// WebhookNotifier 通过 webhook 投递激活链接（邮件网关等下游自行消费）
type WebhookNotifier struct {
	httpClient *resty.Client
	webhookURL string
	logger     *zap.Logger
}

// NewWebhookNotifier 创建 webhook 投递器
func NewWebhookNotifier(webhookURL string, logger *zap.Logger) *WebhookNotifier {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &WebhookNotifier{
		httpClient: client,
		webhookURL: webhookURL,
		logger:     logger,
	}
}

var _ InviteNotifier = (*WebhookNotifier)(nil)

// NotifyInvite 投递激活链接
func (w *WebhookNotifier) NotifyInvite(ctx context.Context, n InviteNotification) error {
	resp, err := w.httpClient.R().
		SetContext(ctx).
		SetBody(n).
		Post(w.webhookURL)
	if err != nil {
		return fmt.Errorf("failed to call invite webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("invite webhook returned status %d", resp.StatusCode())
	}

	w.logger.Info("Invite notification delivered",
		zap.String("username", n.Username),
		zap.Int("status_code", resp.StatusCode()),
	)
	return nil
}

// NoopNotifier 未配置 webhook 时的空投递器（激活链接只返回给调用方）
type NoopNotifier struct{}

var _ InviteNotifier = (*NoopNotifier)(nil)

func (NoopNotifier) NotifyInvite(context.Context, InviteNotification) error { return nil }
