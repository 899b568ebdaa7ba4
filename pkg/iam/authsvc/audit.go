package authsvc

import (
	"context"
	"time"

	"github.com/manifesto-gateway/core/pkg/kernel"
	"github.com/manifesto-gateway/core/pkg/logx"
)

// AuditService defines the contract for authentication audit logging.
// Audit calls are fire-and-forget: no auth operation fails because an
// audit sink is down.
type AuditService interface {
	LogLoginAttempt(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID, success bool, ip string, userAgent string)
	LogLogout(ctx context.Context, ip string)
	LogTokenRefresh(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID, ip string)
}

// LogxAuditService implements AuditService using structured logx logging.
type LogxAuditService struct{}

func NewLogxAuditService() *LogxAuditService {
	return &LogxAuditService{}
}

func (s *LogxAuditService) LogLoginAttempt(_ context.Context, userID kernel.UserID, tenantID kernel.TenantID, success bool, ip string, userAgent string) {
	logx.WithFields(logx.Fields{
		"audit_event": "login_attempt",
		"user_id":     userID,
		"tenant_id":   tenantID,
		"success":     success,
		"ip":          ip,
		"user_agent":  userAgent,
		"timestamp":   time.Now(),
	}).Info("Audit: login attempt")
}

func (s *LogxAuditService) LogLogout(_ context.Context, ip string) {
	logx.WithFields(logx.Fields{
		"audit_event": "logout",
		"ip":          ip,
		"timestamp":   time.Now(),
	}).Info("Audit: logout")
}

func (s *LogxAuditService) LogTokenRefresh(_ context.Context, userID kernel.UserID, tenantID kernel.TenantID, ip string) {
	logx.WithFields(logx.Fields{
		"audit_event": "token_refresh",
		"user_id":     userID,
		"tenant_id":   tenantID,
		"ip":          ip,
		"timestamp":   time.Now(),
	}).Info("Audit: token refresh")
}
