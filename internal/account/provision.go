package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Ashrafnet/CommunityServer/internal/account/entity"
	"github.com/Ashrafnet/CommunityServer/internal/apperr"
	"github.com/Ashrafnet/CommunityServer/internal/password"
)

// AddOptions controls activation and notification of a new account.
type AddOptions struct {
	AfterInvite          bool
	Notify               bool
	IsVisitor            bool
	FromInviteLink       bool
	AssignUniqueUsername bool
}

// DefaultAddOptions notifies the user and derives the username from email.
func DefaultAddOptions() AddOptions {
	return AddOptions{Notify: true, AssignUniqueUsername: true}
}

// Provisioner creates new accounts.
type Provisioner struct {
	deps      Deps
	usernames *UsernameAllocator
	newID     func() string
	logger    *zap.SugaredLogger
	metrics   *Metrics
}

// NewProvisioner builds a Provisioner. newID mints account identifiers.
func NewProvisioner(deps Deps, newID func() string, logger *zap.SugaredLogger, metrics *Metrics) *Provisioner {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Provisioner{
		deps:      deps,
		usernames: NewUsernameAllocator(deps.Accounts),
		newID:     newID,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckUniqueEmail reports whether email is free for the account id: no
// non-terminated account holds it, or the holder is id itself.
func (p *Provisioner) CheckUniqueEmail(ctx context.Context, id, email string) (bool, error) {
	if email == "" {
		return true, nil
	}
	found, err := p.deps.Accounts.FindByEmail(ctx, email)
	if errors.Is(err, apperr.ErrAccountNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("find by email: %w", err)
	}
	return found.IsTerminated() || found.ID == id, nil
}

// AddUser validates, persists and announces a new account.
func (p *Provisioner) AddUser(ctx context.Context, a entity.Account, pwd string, opts AddOptions) (entity.Account, error) {
	settings, err := p.deps.Settings.LoadPasswordSettings(ctx, p.deps.Tenant.TenantID())
	if err != nil {
		return entity.Account{}, fmt.Errorf("load password settings: %w", err)
	}
	if err := password.Check(pwd, settings); err != nil {
		return entity.Account{}, err
	}

	unique, err := p.CheckUniqueEmail(ctx, a.ID, a.Email)
	if err != nil {
		return entity.Account{}, err
	}
	if !unique {
		return entity.Account{}, apperr.WithMetadata(apperr.CodeDuplicateEmail, "email already exists",
			map[string]string{"email": a.Email})
	}

	if opts.AssignUniqueUsername {
		name, err := p.usernames.Allocate(ctx, a.Email)
		if err != nil {
			return entity.Account{}, err
		}
		a.Username = name
	}
	if strings.TrimSpace(a.Username) == "" {
		return entity.Account{}, apperr.ErrInvalidUsername
	}
	if a.WorkFrom == nil {
		now := p.deps.Tenant.Now()
		a.WorkFrom = &now
	}

	personal := p.deps.Tenant.Personal()
	if !personal && !opts.FromInviteLink {
		if opts.AfterInvite {
			a.ActivationStatus = entity.ActivationActivated
		} else {
			a.ActivationStatus = entity.ActivationPending
		}
	}
	a.IsVisitor = opts.IsVisitor
	if a.ID == "" {
		a.ID = p.newID()
	}

	saved, err := p.deps.Accounts.Save(ctx, a)
	if err != nil {
		return entity.Account{}, fmt.Errorf("save account: %w", err)
	}
	if err := p.deps.Credentials.SetPassword(ctx, saved.ID, pwd); err != nil {
		return entity.Account{}, fmt.Errorf("set password: %w", err)
	}
	p.metrics.accountProvisioned(opts.IsVisitor)
	p.logger.Infow("account provisioned",
		"id", saved.ID,
		"username", saved.Username,
		"visitor", opts.IsVisitor,
		"after_invite", opts.AfterInvite,
	)

	if personal {
		p.deps.Notifier.WelcomePersonal(ctx, saved)
		return saved, nil
	}

	// Only active accounts are notified.
	if saved.Status.Has(entity.StatusActive) && opts.Notify {
		p.notifyNew(ctx, saved, opts)
	}

	if opts.IsVisitor {
		if err := p.deps.Accounts.AddToGroup(ctx, saved.ID, VisitorGroupID); err != nil {
			return entity.Account{}, fmt.Errorf("add to visitor group: %w", err)
		}
	}
	return saved, nil
}

func (p *Provisioner) notifyNew(ctx context.Context, a entity.Account, opts AddOptions) {
	n := p.deps.Notifier
	switch {
	case opts.AfterInvite && opts.IsVisitor:
		n.GuestInvitedAfterInvite(ctx, a)
	case opts.AfterInvite:
		n.UserInvitedAfterInvite(ctx, a)
	case opts.IsVisitor:
		n.GuestActivationPrompt(ctx, a)
	default:
		n.UserActivationPrompt(ctx, a)
	}
	if opts.AfterInvite && opts.FromInviteLink {
		n.ActivationInstructions(ctx, a, a.Email)
	}
}
