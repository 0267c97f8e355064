package account

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ashrafnet/CommunityServer/internal/account/entity"
	"github.com/Ashrafnet/CommunityServer/internal/apperr"
)

// scriptedAdder fails AddUser with the queued errors, then succeeds.
type scriptedAdder struct {
	mu    sync.Mutex
	errs  []error
	calls []AddOptions
	pwds  []string
}

func (s *scriptedAdder) AddUser(_ context.Context, a entity.Account, pwd string, opts AddOptions) (entity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, opts)
	s.pwds = append(s.pwds, pwd)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return entity.Account{}, err
	}
	a.ID = "created"
	return a, nil
}

func (s *scriptedAdder) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type counterPasswords struct {
	mu  sync.Mutex
	n   int
	err error
}

func (c *counterPasswords) GeneratePassword(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	c.n++
	return fmt.Sprintf("Generated%d!", c.n), nil
}

type addResult struct {
	account entity.Account
	err     error
}

func runAdd(d *DirectoryProvisioner, ctx context.Context, asVisitor bool) <-chan addResult {
	done := make(chan addResult, 1)
	go func() {
		a, err := d.AddDirectoryUser(ctx, entity.Account{Email: "john@x.com", Sid: "S-1"}, asVisitor)
		done <- addResult{a, err}
	}()
	return done
}

func waitResult(t *testing.T, done <-chan addResult) addResult {
	t.Helper()
	select {
	case r := <-done:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("AddDirectoryUser did not return")
		return addResult{}
	}
}

// advanceAfterWait moves the fake clock past one backoff once the
// provisioner is blocked on it.
func advanceAfterWait(t *testing.T, clock *clockwork.FakeClock, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(d)
}

func TestAddDirectoryUserFirstAttempt(t *testing.T) {
	adder := &scriptedAdder{}
	pw := &counterPasswords{}
	d := NewDirectoryProvisioner(adder, pw, clockwork.NewFakeClock(), RetryConfig{}, nil, nil)

	a, err := d.AddDirectoryUser(context.Background(), entity.Account{Email: "john@x.com"}, true)
	require.NoError(t, err)
	assert.Equal(t, "created", a.ID)

	require.Len(t, adder.calls, 1)
	assert.Equal(t, AddOptions{AfterInvite: true, IsVisitor: true, AssignUniqueUsername: true}, adder.calls[0])
	assert.False(t, adder.calls[0].Notify)
}

func TestAddDirectoryUserRetriesCollision(t *testing.T) {
	clock := clockwork.NewFakeClock()
	adder := &scriptedAdder{errs: []error{fmt.Errorf("save account: %w", apperr.ErrUsernameCollision)}}
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	d := NewDirectoryProvisioner(adder, &counterPasswords{}, clock, RetryConfig{}, nil, m)

	done := runAdd(d, context.Background(), false)
	advanceAfterWait(t, clock, DefaultRetryBackoff)
	r := waitResult(t, done)

	require.NoError(t, r.err)
	assert.Equal(t, "created", r.account.ID)
	assert.Equal(t, 2, adder.callCount())
	assert.Equal(t, []string{"Generated1!", "Generated2!"}, adder.pwds)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retries))
}

func TestAddDirectoryUserWaitsFullBackoff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	adder := &scriptedAdder{errs: []error{apperr.ErrUsernameCollision}}
	d := NewDirectoryProvisioner(adder, &counterPasswords{}, clock, RetryConfig{}, nil, nil)

	done := runAdd(d, context.Background(), false)
	advanceAfterWait(t, clock, DefaultRetryBackoff-time.Second)

	select {
	case <-done:
		t.Fatal("retried before the backoff elapsed")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 1, adder.callCount())

	clock.Advance(time.Second)
	require.NoError(t, waitResult(t, done).err)
	assert.Equal(t, 2, adder.callCount())
}

func TestAddDirectoryUserGivesUp(t *testing.T) {
	clock := clockwork.NewFakeClock()
	adder := &scriptedAdder{errs: []error{
		apperr.ErrUsernameCollision,
		apperr.ErrUsernameCollision,
		apperr.ErrUsernameCollision,
		apperr.ErrUsernameCollision,
	}}
	d := NewDirectoryProvisioner(adder, &counterPasswords{}, clock, RetryConfig{}, nil, nil)

	done := runAdd(d, context.Background(), false)
	advanceAfterWait(t, clock, DefaultRetryBackoff)
	advanceAfterWait(t, clock, DefaultRetryBackoff)
	r := waitResult(t, done)

	assert.True(t, errors.Is(r.err, apperr.ErrUsernameCollision))
	assert.Equal(t, DefaultRetryAttempts, adder.callCount())
}

func TestAddDirectoryUserCustomAttempts(t *testing.T) {
	adder := &scriptedAdder{errs: []error{apperr.ErrUsernameCollision}}
	d := NewDirectoryProvisioner(adder, &counterPasswords{}, clockwork.NewFakeClock(),
		RetryConfig{Attempts: 1, Backoff: time.Minute}, nil, nil)

	_, err := d.AddDirectoryUser(context.Background(), entity.Account{Email: "john@x.com"}, false)
	assert.True(t, errors.Is(err, apperr.ErrUsernameCollision))
	assert.Equal(t, 1, adder.callCount())
}

func TestAddDirectoryUserNoRetryOnOtherErrors(t *testing.T) {
	for _, cause := range []error{apperr.ErrDuplicateEmail, apperr.ErrPolicyViolation, errors.New("db down")} {
		adder := &scriptedAdder{errs: []error{cause}}
		d := NewDirectoryProvisioner(adder, &counterPasswords{}, clockwork.NewFakeClock(), RetryConfig{}, nil, nil)

		_, err := d.AddDirectoryUser(context.Background(), entity.Account{Email: "john@x.com"}, false)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, 1, adder.callCount())
	}
}

func TestAddDirectoryUserPasswordError(t *testing.T) {
	adder := &scriptedAdder{}
	d := NewDirectoryProvisioner(adder, &counterPasswords{err: errors.New("no entropy")}, clockwork.NewFakeClock(), RetryConfig{}, nil, nil)

	_, err := d.AddDirectoryUser(context.Background(), entity.Account{Email: "john@x.com"}, false)
	assert.ErrorContains(t, err, "no entropy")
	assert.Zero(t, adder.callCount())
}

func TestAddDirectoryUserCancelledDuringBackoff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	adder := &scriptedAdder{errs: []error{apperr.ErrUsernameCollision}}
	d := NewDirectoryProvisioner(adder, &counterPasswords{}, clock, RetryConfig{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAdd(d, ctx, false)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	cancel()

	r := waitResult(t, done)
	assert.ErrorIs(t, r.err, context.Canceled)
	assert.Equal(t, 1, adder.callCount())
}

func TestAddDirectoryUserWithProvisioner(t *testing.T) {
	h := newHarness()
	h.store.saveErrs = []error{apperr.ErrUsernameCollision}
	clock := clockwork.NewFakeClock()
	d := NewDirectoryProvisioner(h.provisioner(), NewPasswordService(h.deps(), nil), clock, RetryConfig{}, nil, nil)

	done := runAdd(d, context.Background(), false)
	advanceAfterWait(t, clock, DefaultRetryBackoff)
	r := waitResult(t, done)

	require.NoError(t, r.err)
	assert.Equal(t, "john", r.account.Username)
	assert.Equal(t, entity.ActivationActivated, r.account.ActivationStatus)
	assert.NotEmpty(t, h.creds.passwords[r.account.ID])
	assert.Empty(t, h.notifier.kinds())
}
