package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/Ashrafnet/CommunityServer/internal/account/entity"
	"github.com/Ashrafnet/CommunityServer/internal/apperr"
)

const (
	DefaultRetryBackoff  = 10 * time.Second
	DefaultRetryAttempts = 3
)

type userAdder interface {
	AddUser(ctx context.Context, a entity.Account, pwd string, opts AddOptions) (entity.Account, error)
}

type passwordGenerator interface {
	GeneratePassword(ctx context.Context) (string, error)
}

// RetryConfig bounds directory provisioning retries.
type RetryConfig struct {
	Backoff  time.Duration
	Attempts int
}

// DirectoryProvisioner creates accounts for directory users, retrying when a
// concurrent writer takes the allocated username first.
type DirectoryProvisioner struct {
	users     userAdder
	passwords passwordGenerator
	clock     clockwork.Clock
	cfg       RetryConfig
	logger    *zap.SugaredLogger
	metrics   *Metrics
}

func NewDirectoryProvisioner(users userAdder, passwords passwordGenerator, clock clockwork.Clock, cfg RetryConfig, logger *zap.SugaredLogger, metrics *Metrics) *DirectoryProvisioner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultRetryBackoff
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultRetryAttempts
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &DirectoryProvisioner{users: users, passwords: passwords, clock: clock, cfg: cfg, logger: logger, metrics: metrics}
}

// AddDirectoryUser provisions ext as an activated account with a generated
// password and no notifications. Username collisions are retried after the
// backoff; any other failure returns at once. Cancelling ctx aborts a
// pending wait.
func (d *DirectoryProvisioner) AddDirectoryUser(ctx context.Context, ext entity.Account, asVisitor bool) (entity.Account, error) {
	opts := AddOptions{AfterInvite: true, IsVisitor: asVisitor, AssignUniqueUsername: true}
	for attempt := 1; ; attempt++ {
		pwd, err := d.passwords.GeneratePassword(ctx)
		if err != nil {
			return entity.Account{}, fmt.Errorf("generate password: %w", err)
		}
		a, err := d.users.AddUser(ctx, ext, pwd, opts)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, apperr.ErrUsernameCollision) || attempt >= d.cfg.Attempts {
			return entity.Account{}, err
		}

		d.metrics.provisionRetried()
		d.logger.Warnw("username collision, retrying directory provisioning",
			"sid", ext.Sid,
			"attempt", attempt,
			"backoff", d.cfg.Backoff,
		)
		select {
		case <-ctx.Done():
			return entity.Account{}, ctx.Err()
		case <-d.clock.After(d.cfg.Backoff):
		}
	}
}
