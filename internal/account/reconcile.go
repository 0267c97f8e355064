package account

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Ashrafnet/CommunityServer/internal/account/entity"
	"github.com/Ashrafnet/CommunityServer/internal/apperr"
)

// Outcome names what reconciliation did with a directory record.
type Outcome string

const (
	OutcomeSkipped          Outcome = "skipped"   // inactive directory user without a local account
	OutcomeCreated          Outcome = "created"   // no local match, account provisioned
	OutcomeUnchanged        Outcome = "unchanged" // local account already up to date
	OutcomeMerged           Outcome = "merged"    // fields merged into the matched account
	OutcomeReplaced         Outcome = "replaced"  // matched account deleted, new account provisioned
	OutcomeMergedIntoHolder Outcome = "merged_into_holder"
)

// Result is the account reconciliation settled on. Account is nil when
// no account exists for the record (OutcomeSkipped).
type Result struct {
	Account *entity.Account
	Outcome Outcome
}

type directoryAdder interface {
	AddDirectoryUser(ctx context.Context, ext entity.Account, asVisitor bool) (entity.Account, error)
}

// Reconciler syncs directory-sourced account records into the local store.
type Reconciler struct {
	accounts  AccountStore
	tenant    TenantContext
	directory directoryAdder
	logger    *zap.SugaredLogger
	metrics   *Metrics
}

func NewReconciler(accounts AccountStore, tenant TenantContext, directory directoryAdder, logger *zap.SugaredLogger, metrics *Metrics) *Reconciler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Reconciler{accounts: accounts, tenant: tenant, directory: directory, logger: logger, metrics: metrics}
}

// SearchExisting finds the local account for ext by SID, then by email.
func (r *Reconciler) SearchExisting(ctx context.Context, ext entity.Account) (entity.Account, bool, error) {
	if ext.Sid != "" {
		a, err := r.accounts.FindBySid(ctx, ext.Sid)
		if err == nil {
			return a, true, nil
		}
		if !errors.Is(err, apperr.ErrAccountNotFound) {
			return entity.Account{}, false, fmt.Errorf("find by sid: %w", err)
		}
	}
	if ext.Email == "" {
		return entity.Account{}, false, nil
	}
	a, err := r.accounts.FindByEmail(ctx, ext.Email)
	if errors.Is(err, apperr.ErrAccountNotFound) {
		return entity.Account{}, false, nil
	}
	if err != nil {
		return entity.Account{}, false, fmt.Errorf("find by email: %w", err)
	}
	return a, true, nil
}

// Reconcile applies one directory record to the local store.
func (r *Reconciler) Reconcile(ctx context.Context, ext entity.Account) (Result, error) {
	res, err := r.reconcile(ctx, ext)
	if err != nil {
		r.logger.Warnw("directory reconciliation failed", "sid", ext.Sid, "err", err)
		return Result{}, err
	}
	r.metrics.reconciledAs(res.Outcome)
	fields := []any{"sid", ext.Sid, "outcome", res.Outcome}
	if res.Account != nil {
		fields = append(fields, "id", res.Account.ID)
	}
	r.logger.Infow("directory record reconciled", fields...)
	return res, nil
}

func (r *Reconciler) reconcile(ctx context.Context, ext entity.Account) (Result, error) {
	local, found, err := r.SearchExisting(ctx, ext)
	if err != nil {
		return Result{}, err
	}

	if !found {
		// Inactive directory users are never auto-provisioned.
		if ext.Status != entity.StatusActive {
			return Result{Outcome: OutcomeSkipped}, nil
		}
		visitor, err := r.asVisitor(ctx)
		if err != nil {
			return Result{}, err
		}
		a, err := r.provision(ctx, ext, visitor)
		if err != nil {
			return Result{}, err
		}
		return Result{Account: &a, Outcome: OutcomeCreated}, nil
	}

	if !entity.NeedsUpdate(local, ext) {
		return Result{Account: &local, Outcome: OutcomeUnchanged}, nil
	}

	f := &syncFacts{local: local, ext: ext}
	for _, rule := range syncRules {
		ok, err := rule.when(ctx, r, f)
		if err != nil {
			return Result{}, err
		}
		if ok {
			r.logger.Debugw("sync rule matched", "rule", rule.name, "id", local.ID)
			return r.apply(ctx, rule.action, f)
		}
	}
	return Result{Account: &local, Outcome: OutcomeUnchanged}, nil
}

// syncFacts holds the inputs of the merge decision. The holder of the new
// email is looked up only by the rules that need it.
type syncFacts struct {
	local, ext   entity.Account
	holder       *entity.Account
	holderLoaded bool
}

func (f *syncFacts) sameEmail() bool { return f.local.Email == f.ext.Email }
func (f *syncFacts) sameSid() bool   { return f.local.Sid == f.ext.Sid }

// emailHolder returns the other local account already holding ext's email.
func (r *Reconciler) emailHolder(ctx context.Context, f *syncFacts) (*entity.Account, error) {
	if f.holderLoaded {
		return f.holder, nil
	}
	a, err := r.accounts.FindByEmail(ctx, f.ext.Email)
	switch {
	case errors.Is(err, apperr.ErrAccountNotFound):
	case err != nil:
		return nil, fmt.Errorf("find email holder: %w", err)
	case a.ID != f.local.ID:
		f.holder = &a
	}
	f.holderLoaded = true
	return f.holder, nil
}

type syncAction int

const (
	mergeIntoLocal syncAction = iota
	replaceLocal
	mergeIntoHolder
)

type syncRule struct {
	name   string
	when   func(ctx context.Context, r *Reconciler, f *syncFacts) (bool, error)
	action syncAction
}

// syncRules is evaluated in order; the first match wins. The last three
// rows only fire if the earlier rows stop covering every directory-linked
// account, and are kept as the canonical table.
var syncRules = []syncRule{
	{
		name: "local-or-matching",
		when: func(_ context.Context, _ *Reconciler, f *syncFacts) (bool, error) {
			return !f.local.IsDirectoryLinked() || f.sameEmail() || f.sameSid(), nil
		},
		action: mergeIntoLocal,
	},
	{
		name: "linked-owner",
		when: func(_ context.Context, _ *Reconciler, f *syncFacts) (bool, error) {
			return f.local.IsDirectoryLinked() && f.local.IsOwner, nil
		},
		action: mergeIntoLocal,
	},
	{
		name: "linked-mismatch",
		when: func(_ context.Context, _ *Reconciler, f *syncFacts) (bool, error) {
			return f.local.IsDirectoryLinked() && !f.local.IsOwner, nil
		},
		action: replaceLocal,
	},
	{
		name: "new-email-free",
		when: func(ctx context.Context, r *Reconciler, f *syncFacts) (bool, error) {
			if f.sameEmail() {
				return false, nil
			}
			holder, err := r.emailHolder(ctx, f)
			return holder == nil, err
		},
		action: mergeIntoLocal,
	},
	{
		name: "new-email-held-owner",
		when: func(ctx context.Context, r *Reconciler, f *syncFacts) (bool, error) {
			if f.sameEmail() {
				return false, nil
			}
			holder, err := r.emailHolder(ctx, f)
			return holder != nil && f.local.IsOwner, err
		},
		action: mergeIntoLocal,
	},
	{
		name: "new-email-held",
		when: func(ctx context.Context, r *Reconciler, f *syncFacts) (bool, error) {
			if f.sameEmail() {
				return false, nil
			}
			holder, err := r.emailHolder(ctx, f)
			return holder != nil && !f.local.IsOwner, err
		},
		action: mergeIntoHolder,
	},
}

func (r *Reconciler) apply(ctx context.Context, action syncAction, f *syncFacts) (Result, error) {
	switch action {
	case replaceLocal:
		// Quota is read while the replaced account still counts.
		visitor, err := r.asVisitor(ctx)
		if err != nil {
			return Result{}, err
		}
		if err := r.accounts.Delete(ctx, f.local.ID); err != nil {
			return Result{}, fmt.Errorf("delete account %s: %w", f.local.ID, err)
		}
		a, err := r.provision(ctx, f.ext, visitor)
		if err != nil {
			return Result{}, err
		}
		return Result{Account: &a, Outcome: OutcomeReplaced}, nil

	case mergeIntoHolder:
		holder, err := r.emailHolder(ctx, f)
		if err != nil {
			return Result{}, err
		}
		if err := r.accounts.Delete(ctx, f.local.ID); err != nil {
			return Result{}, fmt.Errorf("delete account %s: %w", f.local.ID, err)
		}
		a, err := r.merge(ctx, *holder, f.ext)
		if err != nil {
			return Result{}, err
		}
		return Result{Account: &a, Outcome: OutcomeMergedIntoHolder}, nil

	default:
		a, err := r.merge(ctx, f.local, f.ext)
		if err != nil {
			return Result{}, err
		}
		return Result{Account: &a, Outcome: OutcomeMerged}, nil
	}
}

func (r *Reconciler) merge(ctx context.Context, target, ext entity.Account) (entity.Account, error) {
	saved, err := r.accounts.Save(ctx, entity.MergeFrom(target, ext, target.IsOwner))
	if err != nil {
		return entity.Account{}, fmt.Errorf("save merged account %s: %w", target.ID, err)
	}
	return saved, nil
}

func (r *Reconciler) provision(ctx context.Context, ext entity.Account, visitor bool) (entity.Account, error) {
	fresh := ext
	fresh.ID = ""
	fresh.IsOwner = false
	return r.directory.AddDirectoryUser(ctx, fresh, visitor)
}

// asVisitor reports whether the tenant has used up its user quota, in which
// case new directory accounts are created as visitors.
func (r *Reconciler) asVisitor(ctx context.Context) (bool, error) {
	count, err := r.tenant.ActiveUserCount(ctx)
	if err != nil {
		return false, fmt.Errorf("active user count: %w", err)
	}
	quota, err := r.tenant.UserQuota(ctx)
	if err != nil {
		return false, fmt.Errorf("user quota: %w", err)
	}
	return count >= quota, nil
}
