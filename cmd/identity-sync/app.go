package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Ashrafnet/CommunityServer/internal/account"
	"github.com/Ashrafnet/CommunityServer/internal/account/entity"
	accountrepo "github.com/Ashrafnet/CommunityServer/internal/account/repo"
	"github.com/Ashrafnet/CommunityServer/internal/config"
	"github.com/Ashrafnet/CommunityServer/internal/notify"
	notifyrepo "github.com/Ashrafnet/CommunityServer/internal/notify/repo"
	"github.com/Ashrafnet/CommunityServer/internal/setting"
	settingrepo "github.com/Ashrafnet/CommunityServer/internal/setting/repo"
	"github.com/Ashrafnet/CommunityServer/internal/tenant"
	"github.com/Ashrafnet/CommunityServer/pkg/utilities"
)

const tokenIssuer = "identity-sync"

type app struct {
	reconciler *account.Reconciler
	registry   *prometheus.Registry
}

// summary counts reconciliation outcomes of one run.
type summary struct {
	Outcomes map[account.Outcome]int
	Failed   int
}

func (s summary) total() int {
	n := s.Failed
	for _, c := range s.Outcomes {
		n += c
	}
	return n
}

func migrate(ctx context.Context, db *sqlx.DB, tenantID int64) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"accounts", accountrepo.NewAccountRepo(db, tenantID).EnsureTable},
		{"settings", settingrepo.NewRepo(db).EnsureTable},
		{"notification_outbox", notifyrepo.NewOutboxRepo(db).EnsureTable},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("ensure %s: %w", s.name, err)
		}
	}
	return nil
}

// newApp wires the account components over db. hasher may be nil for the
// production bcrypt cost.
func newApp(cfg config.Config, db *sqlx.DB, hasher accountrepo.PasswordHasher, clock clockwork.Clock, logger *zap.SugaredLogger) (*app, error) {
	ids, err := utilities.NewIDGenerator(cfg.SnowflakeNode)
	if err != nil {
		return nil, err
	}
	accounts := accountrepo.NewAccountRepo(db, cfg.TenantID)

	tenantCtx, err := tenant.New(tenant.Config{
		ID:        cfg.TenantID,
		TimeZone:  cfg.TenantTimeZone,
		Personal:  cfg.PersonalMode,
		UserQuota: cfg.UserQuota,
	}, accounts, clock)
	if err != nil {
		return nil, err
	}

	tokens, err := notify.NewTokenIssuer([]byte(cfg.ActivationSecret), tokenIssuer, cfg.ActivationTTL, clock)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics, err := account.NewMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	deps := account.Deps{
		Accounts:    accounts,
		Credentials: accountrepo.NewCredentialRepo(db, hasher),
		Notifier: notify.NewService(notifyrepo.NewOutboxRepo(db), tokens, cfg.ActivationBaseURL, logger,
			notify.WithClock(clock)),
		Tenant:   tenantCtx,
		Settings: setting.NewService(settingrepo.NewRepo(db), logger),
	}
	provisioner := account.NewProvisioner(deps, ids.NewID, logger, metrics)
	directory := account.NewDirectoryProvisioner(provisioner, account.NewPasswordService(deps, logger), clock,
		account.RetryConfig{Backoff: cfg.RetryBackoff, Attempts: cfg.RetryAttempts}, logger, metrics)

	return &app{
		reconciler: account.NewReconciler(accounts, tenantCtx, directory, logger, metrics),
		registry:   registry,
	}, nil
}

// syncRecords reconciles one JSON-encoded directory record per line of r.
// A record that fails is counted and skipped; a malformed stream or a
// cancelled ctx stops the run.
func (a *app) syncRecords(ctx context.Context, r io.Reader) (summary, error) {
	sum := summary{Outcomes: map[account.Outcome]int{}}
	dec := json.NewDecoder(r)
	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		var ext entity.Account
		if err := dec.Decode(&ext); err != nil {
			if errors.Is(err, io.EOF) {
				return sum, nil
			}
			return sum, fmt.Errorf("record %d: %w", line, err)
		}
		res, err := a.reconciler.Reconcile(ctx, ext)
		if err != nil {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			sum.Failed++
			continue
		}
		sum.Outcomes[res.Outcome]++
	}
}
