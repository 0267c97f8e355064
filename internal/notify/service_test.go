package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ashrafnet/CommunityServer/internal/account"
	accountentity "github.com/Ashrafnet/CommunityServer/internal/account/entity"
	"github.com/Ashrafnet/CommunityServer/internal/notify/entity"
)

var _ account.Notifier = (*Service)(nil)

type memOutbox struct {
	mu   sync.Mutex
	msgs []entity.Message
	err  error
}

func (o *memOutbox) Enqueue(_ context.Context, m entity.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.msgs = append(o.msgs, m)
	return nil
}

func newTestService(t *testing.T, outbox Outbox) (*Service, *TokenIssuer, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	tokens, err := NewTokenIssuer([]byte("test-secret"), "identity", time.Hour, clock)
	require.NoError(t, err)
	n := 0
	svc := NewService(outbox, tokens, "https://portal.example.com/confirm?lang=en", nil,
		WithClock(clock),
		WithIDFunc(func() string { n++; return fmt.Sprintf("m%d", n) }),
	)
	return svc, tokens, clock
}

var john = accountentity.Account{ID: "a1", Username: "john", Email: "john@x.com", FirstName: "John", LastName: "Smith"}

func TestServiceQueuesEveryKind(t *testing.T) {
	outbox := &memOutbox{}
	svc, _, clock := newTestService(t, outbox)
	ctx := context.Background()

	svc.WelcomePersonal(ctx, john)
	svc.UserInvitedAfterInvite(ctx, john)
	svc.GuestInvitedAfterInvite(ctx, john)
	svc.UserActivationPrompt(ctx, john)
	svc.GuestActivationPrompt(ctx, john)
	svc.ActivationInstructions(ctx, john, "other@x.com")
	svc.PasswordChanged(ctx, "a1")
	svc.PasswordChangeRequested(ctx, john)

	var kinds []entity.Kind
	for _, m := range outbox.msgs {
		kinds = append(kinds, m.Kind)
		assert.Equal(t, "a1", m.AccountID)
		assert.True(t, clock.Now().Equal(m.CreatedAt))
	}
	assert.Equal(t, []entity.Kind{
		entity.KindWelcomePersonal,
		entity.KindUserInvited,
		entity.KindGuestInvited,
		entity.KindUserActivation,
		entity.KindGuestActivation,
		entity.KindActivationInstructions,
		entity.KindPasswordChanged,
		entity.KindPasswordChangeRequested,
	}, kinds)
	assert.Equal(t, "m1", outbox.msgs[0].ID)
	assert.Equal(t, "other@x.com", outbox.msgs[5].Recipient)
	assert.Empty(t, outbox.msgs[6].Recipient)
}

func TestActivationLinkCarriesVerifiableToken(t *testing.T) {
	outbox := &memOutbox{}
	svc, tokens, _ := newTestService(t, outbox)

	svc.UserActivationPrompt(context.Background(), john)
	require.Len(t, outbox.msgs, 1)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(outbox.msgs[0].Payload, &payload))
	assert.Equal(t, "John", payload["first_name"])
	assert.NotContains(t, payload, "password")

	link, err := url.Parse(payload["link"])
	require.NoError(t, err)
	assert.Equal(t, "portal.example.com", link.Host)
	assert.Equal(t, "en", link.Query().Get("lang"))

	claims, err := tokens.Verify(link.Query().Get("token"), PurposeActivation)
	require.NoError(t, err)
	assert.Equal(t, "a1", claims.Subject)
	assert.Equal(t, "john@x.com", claims.Email)

	_, err = tokens.Verify(link.Query().Get("token"), PurposePasswordChange)
	assert.Error(t, err)
}

func TestServiceSwallowsOutboxErrors(t *testing.T) {
	svc, _, _ := newTestService(t, &memOutbox{err: errors.New("db down")})

	assert.NotPanics(t, func() {
		svc.UserInvitedAfterInvite(context.Background(), john)
		svc.PasswordChangeRequested(context.Background(), john)
	})
}
