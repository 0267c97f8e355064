// Package notify turns account events into queued notification messages.
package notify

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	accountentity "github.com/Ashrafnet/CommunityServer/internal/account/entity"
	"github.com/Ashrafnet/CommunityServer/internal/notify/entity"
	"github.com/Ashrafnet/CommunityServer/pkg/utilities"
)

// Outbox stores messages for delivery; *repo.OutboxRepo implements it.
type Outbox interface {
	Enqueue(ctx context.Context, m entity.Message) error
}

// Service queues one message per account event. Failures are logged, not
// returned.
type Service struct {
	outbox  Outbox
	tokens  *TokenIssuer
	baseURL string
	clock   clockwork.Clock
	newID   func() string
	logger  *zap.SugaredLogger
}

// Option customises a Service.
type Option func(*Service)

// WithIDFunc replaces the ksuid message id generator.
func WithIDFunc(f func() string) Option { return func(s *Service) { s.newID = f } }

// WithClock sets the clock used for message timestamps.
func WithClock(c clockwork.Clock) Option { return func(s *Service) { s.clock = c } }

// NewService builds a Service. baseURL is the page that consumes link
// tokens, e.g. https://portal.example.com/confirm.
func NewService(outbox Outbox, tokens *TokenIssuer, baseURL string, logger *zap.SugaredLogger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Service{
		outbox:  outbox,
		tokens:  tokens,
		baseURL: baseURL,
		clock:   clockwork.NewRealClock(),
		newID:   utilities.NewKSUID,
		logger:  logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) WelcomePersonal(ctx context.Context, a accountentity.Account) {
	s.enqueue(ctx, entity.KindWelcomePersonal, a, nil)
}

func (s *Service) UserInvitedAfterInvite(ctx context.Context, a accountentity.Account) {
	s.enqueue(ctx, entity.KindUserInvited, a, nil)
}

func (s *Service) GuestInvitedAfterInvite(ctx context.Context, a accountentity.Account) {
	s.enqueue(ctx, entity.KindGuestInvited, a, nil)
}

func (s *Service) UserActivationPrompt(ctx context.Context, a accountentity.Account) {
	s.enqueueWithLink(ctx, entity.KindUserActivation, a, a.Email, PurposeActivation)
}

func (s *Service) GuestActivationPrompt(ctx context.Context, a accountentity.Account) {
	s.enqueueWithLink(ctx, entity.KindGuestActivation, a, a.Email, PurposeActivation)
}

// ActivationInstructions sends the activation link to email, which may
// differ from the address stored on the account.
func (s *Service) ActivationInstructions(ctx context.Context, a accountentity.Account, email string) {
	s.enqueueWithLink(ctx, entity.KindActivationInstructions, a, email, PurposeActivation)
}

func (s *Service) PasswordChanged(ctx context.Context, accountID string) {
	s.enqueue(ctx, entity.KindPasswordChanged, accountentity.Account{ID: accountID}, nil)
}

func (s *Service) PasswordChangeRequested(ctx context.Context, a accountentity.Account) {
	s.enqueueWithLink(ctx, entity.KindPasswordChangeRequested, a, a.Email, PurposePasswordChange)
}

func (s *Service) enqueueWithLink(ctx context.Context, kind entity.Kind, a accountentity.Account, email, purpose string) {
	token, err := s.tokens.Issue(a.ID, email, purpose)
	if err != nil {
		s.logger.Warnw("issue link token failed", "kind", kind, "id", a.ID, "err", err)
		return
	}
	a.Email = email
	s.enqueue(ctx, kind, a, map[string]string{"link": s.link(token)})
}

func (s *Service) link(token string) string {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return s.baseURL + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Service) enqueue(ctx context.Context, kind entity.Kind, a accountentity.Account, extra map[string]string) {
	fields := map[string]string{
		"first_name": a.FirstName,
		"last_name":  a.LastName,
		"username":   a.Username,
	}
	for k, v := range extra {
		fields[k] = v
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		s.logger.Warnw("encode notification failed", "kind", kind, "id", a.ID, "err", err)
		return
	}
	m := entity.Message{
		ID:        s.newID(),
		Kind:      kind,
		AccountID: a.ID,
		Recipient: a.Email,
		Payload:   payload,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.outbox.Enqueue(ctx, m); err != nil {
		s.logger.Warnw("enqueue notification failed", "kind", kind, "id", a.ID, "err", err)
		return
	}
	s.logger.Debugw("notification queued", "kind", kind, "id", a.ID, "message_id", m.ID)
}
