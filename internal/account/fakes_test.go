package account

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Ashrafnet/CommunityServer/internal/account/entity"
	"github.com/Ashrafnet/CommunityServer/internal/apperr"
	"github.com/Ashrafnet/CommunityServer/internal/password"
)

// ---- fakes ----

type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]entity.Account
	groups   map[string][]uuid.UUID
	deleted  []string
	saves    int

	// saveErrs is consumed one per Save call before the save happens.
	saveErrs []error
	findErr  error
	onDelete func(id string)
}

func newFakeStore(seed ...entity.Account) *fakeStore {
	s := &fakeStore{accounts: map[string]entity.Account{}, groups: map[string][]uuid.UUID{}}
	for _, a := range seed {
		s.accounts[a.ID] = a
	}
	return s
}

func (s *fakeStore) find(match func(entity.Account) bool) (entity.Account, error) {
	if s.findErr != nil {
		return entity.Account{}, s.findErr
	}
	var found *entity.Account
	for _, a := range s.accounts {
		if !match(a) {
			continue
		}
		a := a
		// prefer non-terminated accounts
		if found == nil || (found.IsTerminated() && !a.IsTerminated()) {
			found = &a
		}
	}
	if found == nil {
		return entity.Account{}, apperr.ErrAccountNotFound
	}
	return *found, nil
}

func (s *fakeStore) FindByUsername(_ context.Context, username string) (entity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(a entity.Account) bool { return a.Username == username })
}

func (s *fakeStore) FindByEmail(_ context.Context, email string) (entity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(a entity.Account) bool { return email != "" && strings.EqualFold(a.Email, email) })
}

func (s *fakeStore) FindBySid(_ context.Context, sid string) (entity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(a entity.Account) bool { return sid != "" && a.Sid == sid })
}

func (s *fakeStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.accounts[id]
	return ok, nil
}

func (s *fakeStore) Save(_ context.Context, a entity.Account) (entity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if len(s.saveErrs) > 0 {
		err := s.saveErrs[0]
		s.saveErrs = s.saveErrs[1:]
		if err != nil {
			return entity.Account{}, err
		}
	}
	for id, other := range s.accounts {
		if id == a.ID {
			continue
		}
		if a.Username != "" && other.Username == a.Username {
			return entity.Account{}, apperr.ErrUsernameCollision
		}
		if a.Email != "" && strings.EqualFold(other.Email, a.Email) && !other.IsTerminated() && !a.IsTerminated() {
			return entity.Account{}, apperr.ErrDuplicateEmail
		}
	}
	s.accounts[a.ID] = a
	return a, nil
}

func (s *fakeStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, id)
	s.deleted = append(s.deleted, id)
	if s.onDelete != nil {
		s.onDelete(id)
	}
	return nil
}

func (s *fakeStore) AddToGroup(_ context.Context, id string, groupID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[id] = append(s.groups[id], groupID)
	return nil
}

func (s *fakeStore) get(id string) (entity.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	return a, ok
}

type fakeCredentials struct {
	mu        sync.Mutex
	passwords map[string]string
	err       error
}

func (c *fakeCredentials) SetPassword(_ context.Context, id, plaintext string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.passwords == nil {
		c.passwords = map[string]string{}
	}
	c.passwords[id] = plaintext
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) record(kind, id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, kind+":"+id)
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, e := range n.events {
		out[i] = e[:strings.Index(e, ":")]
	}
	return out
}

func (n *recordingNotifier) WelcomePersonal(_ context.Context, a entity.Account) {
	n.record("welcome_personal", a.ID)
}
func (n *recordingNotifier) UserInvitedAfterInvite(_ context.Context, a entity.Account) {
	n.record("user_invited", a.ID)
}
func (n *recordingNotifier) GuestInvitedAfterInvite(_ context.Context, a entity.Account) {
	n.record("guest_invited", a.ID)
}
func (n *recordingNotifier) UserActivationPrompt(_ context.Context, a entity.Account) {
	n.record("user_activation", a.ID)
}
func (n *recordingNotifier) GuestActivationPrompt(_ context.Context, a entity.Account) {
	n.record("guest_activation", a.ID)
}
func (n *recordingNotifier) ActivationInstructions(_ context.Context, a entity.Account, _ string) {
	n.record("activation_instructions", a.ID)
}
func (n *recordingNotifier) PasswordChanged(_ context.Context, id string) {
	n.record("password_changed", id)
}
func (n *recordingNotifier) PasswordChangeRequested(_ context.Context, a entity.Account) {
	n.record("password_change_requested", a.ID)
}

type fakeTenant struct {
	id       int64
	now      time.Time
	personal bool
	count    int
	quota    int
}

func (t *fakeTenant) TenantID() int64                              { return t.id }
func (t *fakeTenant) Now() time.Time                               { return t.now }
func (t *fakeTenant) Personal() bool                               { return t.personal }
func (t *fakeTenant) ActiveUserCount(context.Context) (int, error) { return t.count, nil }
func (t *fakeTenant) UserQuota(context.Context) (int, error)       { return t.quota, nil }

type fakeSettings struct {
	settings password.Settings
	err      error
}

func (s *fakeSettings) LoadPasswordSettings(context.Context, int64) (password.Settings, error) {
	return s.settings, s.err
}

// ---- helpers ----

type harness struct {
	store    *fakeStore
	creds    *fakeCredentials
	notifier *recordingNotifier
	tenant   *fakeTenant
	settings *fakeSettings
	nextID   atomic.Int64
}

func newHarness(seed ...entity.Account) *harness {
	return &harness{
		store:    newFakeStore(seed...),
		creds:    &fakeCredentials{},
		notifier: &recordingNotifier{},
		tenant:   &fakeTenant{id: 1, now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), quota: 100},
		settings: &fakeSettings{settings: password.DefaultSettings()},
	}
}

func (h *harness) deps() Deps {
	return Deps{
		Accounts:    h.store,
		Credentials: h.creds,
		Notifier:    h.notifier,
		Tenant:      h.tenant,
		Settings:    h.settings,
	}
}

func (h *harness) newID() string {
	return fmt.Sprintf("new-%d", h.nextID.Add(1))
}

func (h *harness) provisioner() *Provisioner {
	return NewProvisioner(h.deps(), h.newID, nil, nil)
}
