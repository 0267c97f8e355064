// Package tenant supplies the per-tenant context the account components
// run in.
package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// ActiveCounter counts the active users of the tenant; the account
// repository implements it.
type ActiveCounter interface {
	CountActive(ctx context.Context) (int, error)
}

// Config describes one tenant.
type Config struct {
	ID        int64
	TimeZone  string
	Personal  bool
	UserQuota int
}

// Context is the TenantContext of a single configured tenant.
type Context struct {
	id       int64
	loc      *time.Location
	personal bool
	quota    int
	counter  ActiveCounter
	clock    clockwork.Clock
}

func New(cfg Config, counter ActiveCounter, clock clockwork.Clock) (*Context, error) {
	tz := cfg.TimeZone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("tenant time zone %q: %w", tz, err)
	}
	if cfg.UserQuota < 0 {
		return nil, fmt.Errorf("tenant user quota must not be negative, got %d", cfg.UserQuota)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Context{
		id:       cfg.ID,
		loc:      loc,
		personal: cfg.Personal,
		quota:    cfg.UserQuota,
		counter:  counter,
		clock:    clock,
	}, nil
}

func (c *Context) TenantID() int64 { return c.id }

// Now returns the current time in the tenant's time zone.
func (c *Context) Now() time.Time { return c.clock.Now().In(c.loc) }

func (c *Context) Personal() bool { return c.personal }

func (c *Context) ActiveUserCount(ctx context.Context) (int, error) {
	return c.counter.CountActive(ctx)
}

func (c *Context) UserQuota(context.Context) (int, error) { return c.quota, nil }
