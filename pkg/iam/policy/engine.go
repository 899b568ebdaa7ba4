package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/manifesto-gateway/core/pkg/errx"
)

// Engine composes Store and AutoBanStore into the Policy Engine's
// operations: password validation, IP admission (static + auto-ban), and
// bounds-checked document updates.
type Engine struct {
	store   Store
	autoBan AutoBanStore
	defaults Document
}

// NewEngine builds an Engine. defaults is written as the document on the
// first Get call that finds none persisted yet.
func NewEngine(store Store, autoBan AutoBanStore, defaults Document) *Engine {
	return &Engine{store: store, autoBan: autoBan, defaults: defaults}
}

// Get returns the current document, initializing it to defaults on first read.
func (e *Engine) Get(ctx context.Context) (*Document, error) {
	doc, err := e.store.Get(ctx)
	if err != nil {
		return nil, errx.Wrap(err, "failed to load policy document", errx.TypeInternal)
	}
	if doc != nil {
		return doc, nil
	}
	fresh := e.defaults
	fresh.UpdatedAt = time.Now().UTC()
	if err := e.store.Put(ctx, fresh); err != nil {
		return nil, errx.Wrap(err, "failed to initialize default policy document", errx.TypeInternal)
	}
	return &fresh, nil
}

// Update bounds-checks doc before persisting.
func (e *Engine) Update(ctx context.Context, doc Document) error {
	if doc.Password.MinLength < MinPasswordLengthBound || doc.Password.MinLength > MaxPasswordLengthBound {
		return ErrOutOfBounds("password.min_length")
	}
	if doc.Password.MaxLength < doc.Password.MinLength || doc.Password.MaxLength > MaxPasswordLengthBound {
		return ErrOutOfBounds("password.max_length")
	}
	if doc.SessionTimeoutMin < MinSessionTimeoutMin || doc.SessionTimeoutMin > MaxSessionTimeoutMin {
		return ErrOutOfBounds("session_timeout_minutes")
	}
	if doc.MaxLoginAttempts < MinFailedAttempts || doc.MaxLoginAttempts > MaxFailedAttempts {
		return ErrOutOfBounds("max_login_attempts")
	}
	if doc.RetentionDays < MinRetentionDays || doc.RetentionDays > MaxRetentionDays {
		return ErrOutOfBounds("retention_days")
	}

	doc.UpdatedAt = time.Now().UTC()
	if err := e.store.Put(ctx, doc); err != nil {
		return errx.Wrap(err, "failed to persist policy document", errx.TypeInternal)
	}
	return nil
}

// ValidatePassword loads the current document and validates candidate
// against its password policy.
func (e *Engine) ValidatePassword(ctx context.Context, candidate string, userInfo []string) (PasswordValidation, error) {
	doc, err := e.Get(ctx)
	if err != nil {
		return PasswordValidation{}, err
	}
	return ValidatePassword(candidate, userInfo, doc.Password), nil
}

// CheckIP evaluates ip against the static allow/deny lists and the dynamic
// auto-ban table, returning a typed error on denial (nil on admission).
func (e *Engine) CheckIP(ctx context.Context, ip string) error {
	doc, err := e.Get(ctx)
	if err != nil {
		return err
	}

	if doc.IP.AutoBanEnabled {
		banned, until, err := e.autoBan.IsBanned(ctx, ip)
		if err != nil {
			return errx.Wrap(err, "failed to check auto-ban status", errx.TypeInternal)
		}
		if banned {
			return ErrAutoBanned(ip, until.Format(time.RFC3339))
		}
	}

	admission := AdmitIP(ip, doc.IP)
	if !admission.Allowed {
		return ErrIPDenied(ip).WithDetail("reason", admission.Reason)
	}
	return nil
}

// RecordFailedLogin increments ip's failed-login counter and, if
// auto-ban is enabled and the threshold is reached, inserts an auto-ban
// entry and resets the counter.
func (e *Engine) RecordFailedLogin(ctx context.Context, ip string) error {
	doc, err := e.Get(ctx)
	if err != nil {
		return err
	}
	if !doc.IP.AutoBanEnabled {
		return nil
	}

	count, err := e.autoBan.IncrementFailedLogin(ctx, ip, doc.IP.AutoBanCounterTTL)
	if err != nil {
		return errx.Wrap(err, "failed to increment failed-login counter", errx.TypeInternal)
	}
	if count < doc.IP.AutoBanThreshold {
		return nil
	}
	if err := e.autoBan.Ban(ctx, ip, doc.IP.AutoBanDuration); err != nil {
		return errx.Wrap(err, "failed to insert auto-ban entry", errx.TypeInternal)
	}
	if err := e.autoBan.ResetFailedLogin(ctx, ip); err != nil {
		return errx.Wrap(err, fmt.Sprintf("failed to reset failed-login counter after auto-ban for %s", ip), errx.TypeInternal)
	}
	return nil
}

// ResetFailedLogin clears ip's failed-login counter on a successful login.
func (e *Engine) ResetFailedLogin(ctx context.Context, ip string) error {
	return e.autoBan.ResetFailedLogin(ctx, ip)
}
