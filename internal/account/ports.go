// Package account provisions accounts and reconciles directory-sourced
// identities against the local account store.
package account

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Ashrafnet/CommunityServer/internal/account/entity"
	"github.com/Ashrafnet/CommunityServer/internal/password"
)

// VisitorGroupID is the group every visitor account joins.
var VisitorGroupID = uuid.MustParse("aced04fa-dd96-4b35-af3e-346bf1eb972d")

// AccountStore persists accounts of the current tenant. The FindBy methods
// return apperr.ErrAccountNotFound when nothing matches. Save enforces
// username and email uniqueness and reports violations as
// apperr.ErrUsernameCollision and apperr.ErrDuplicateEmail.
type AccountStore interface {
	FindByUsername(ctx context.Context, username string) (entity.Account, error)
	FindByEmail(ctx context.Context, email string) (entity.Account, error)
	FindBySid(ctx context.Context, sid string) (entity.Account, error)
	Exists(ctx context.Context, id string) (bool, error)
	Save(ctx context.Context, a entity.Account) (entity.Account, error)
	Delete(ctx context.Context, id string) error
	AddToGroup(ctx context.Context, id string, groupID uuid.UUID) error
}

// CredentialStore stores account passwords.
type CredentialStore interface {
	SetPassword(ctx context.Context, id, plaintext string) error
}

// Notifier dispatches account notifications. Delivery is best-effort and
// failures are not reported back to the caller.
type Notifier interface {
	WelcomePersonal(ctx context.Context, a entity.Account)
	UserInvitedAfterInvite(ctx context.Context, a entity.Account)
	GuestInvitedAfterInvite(ctx context.Context, a entity.Account)
	UserActivationPrompt(ctx context.Context, a entity.Account)
	GuestActivationPrompt(ctx context.Context, a entity.Account)
	ActivationInstructions(ctx context.Context, a entity.Account, email string)
	PasswordChanged(ctx context.Context, accountID string)
	PasswordChangeRequested(ctx context.Context, a entity.Account)
}

// TenantContext describes the tenant the current request runs in.
type TenantContext interface {
	TenantID() int64
	// Now returns the current time in the tenant's time zone.
	Now() time.Time
	// Personal reports the simplified personal deployment mode.
	Personal() bool
	ActiveUserCount(ctx context.Context) (int, error)
	UserQuota(ctx context.Context) (int, error)
}

// SettingsStore loads per-tenant password settings.
type SettingsStore interface {
	LoadPasswordSettings(ctx context.Context, tenantID int64) (password.Settings, error)
}

// Deps bundles the collaborators of the account components.
type Deps struct {
	Accounts    AccountStore
	Credentials CredentialStore
	Notifier    Notifier
	Tenant      TenantContext
	Settings    SettingsStore
}
