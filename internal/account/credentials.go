package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Ashrafnet/CommunityServer/internal/apperr"
	"github.com/Ashrafnet/CommunityServer/internal/password"
)

// PasswordService applies the tenant password policy to explicit password
// operations.
type PasswordService struct {
	deps   Deps
	logger *zap.SugaredLogger
}

func NewPasswordService(deps Deps, logger *zap.SugaredLogger) *PasswordService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &PasswordService{deps: deps, logger: logger}
}

func (s *PasswordService) settings(ctx context.Context) (password.Settings, error) {
	st, err := s.deps.Settings.LoadPasswordSettings(ctx, s.deps.Tenant.TenantID())
	if err != nil {
		return password.Settings{}, fmt.Errorf("load password settings: %w", err)
	}
	return st, nil
}

// CheckPolicy validates pwd against the current tenant's settings.
func (s *PasswordService) CheckPolicy(ctx context.Context, pwd string) error {
	st, err := s.settings(ctx)
	if err != nil {
		return err
	}
	return password.Check(pwd, st)
}

// GeneratePassword returns a password valid under the tenant's settings.
func (s *PasswordService) GeneratePassword(ctx context.Context) (string, error) {
	st, err := s.settings(ctx)
	if err != nil {
		return "", err
	}
	return password.Generate(st)
}

// PasswordHelp describes the tenant's password policy.
func (s *PasswordService) PasswordHelp(ctx context.Context) (string, error) {
	st, err := s.settings(ctx)
	if err != nil {
		return "", err
	}
	return password.Describe(st), nil
}

// SetPassword stores a new password for the account and notifies its owner.
// skipPolicy bypasses the policy check for administrative resets.
func (s *PasswordService) SetPassword(ctx context.Context, id, pwd string, skipPolicy bool) error {
	if !skipPolicy {
		if err := s.CheckPolicy(ctx, pwd); err != nil {
			return err
		}
	} else if pwd == "" {
		return apperr.ErrEmptyCredential
	}
	if err := s.deps.Credentials.SetPassword(ctx, id, pwd); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	s.deps.Notifier.PasswordChanged(ctx, id)
	s.logger.Infow("password changed", "id", id, "policy_skipped", skipPolicy)
	return nil
}

// RequestPasswordChange sends password-change instructions to the account
// registered under email.
func (s *PasswordService) RequestPasswordChange(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apperr.WithMetadata(apperr.CodeInvalidEmail, "email is empty", nil)
	}
	a, err := s.deps.Accounts.FindByEmail(ctx, email)
	if errors.Is(err, apperr.ErrAccountNotFound) {
		return apperr.WithMetadata(apperr.CodeAccountNotFound, "no account for email",
			map[string]string{"email": email})
	}
	if err != nil {
		return fmt.Errorf("find by email: %w", err)
	}
	exists, err := s.deps.Accounts.Exists(ctx, a.ID)
	if err != nil {
		return fmt.Errorf("check account: %w", err)
	}
	if !exists || a.Email == "" {
		return apperr.WithMetadata(apperr.CodeAccountNotFound, "no account for email",
			map[string]string{"email": email})
	}
	if a.IsTerminated() {
		return apperr.ErrTerminatedAccount
	}
	s.deps.Notifier.PasswordChangeRequested(ctx, a)
	return nil
}
