package account

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strconv"
	"strings"

	"github.com/Ashrafnet/CommunityServer/internal/apperr"
)

// UsernameAllocator derives free usernames from email addresses.
//
// Allocation is check-then-act: a name returned here can be taken by a
// concurrent caller before it is saved. AccountStore.Save rejects that case
// with apperr.ErrUsernameCollision.
type UsernameAllocator struct {
	accounts AccountStore
}

func NewUsernameAllocator(accounts AccountStore) *UsernameAllocator {
	return &UsernameAllocator{accounts: accounts}
}

// Allocate returns the local part of email, suffixed with 1, 2, 3, ... until
// no account holds it.
func (u *UsernameAllocator) Allocate(ctx context.Context, email string) (string, error) {
	base, err := localPart(email)
	if err != nil {
		return "", err
	}
	candidate := base
	for i := 1; ; i++ {
		taken, err := u.taken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + strconv.Itoa(i)
	}
}

func (u *UsernameAllocator) taken(ctx context.Context, username string) (bool, error) {
	_, err := u.accounts.FindByUsername(ctx, username)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, apperr.ErrAccountNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("probe username %q: %w", username, err)
}

func localPart(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", apperr.WithMetadata(apperr.CodeInvalidEmail, "email is empty", nil)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeInvalidEmail, "parse email", err)
	}
	at := strings.LastIndex(addr.Address, "@")
	if at <= 0 {
		return "", apperr.WithMetadata(apperr.CodeInvalidEmail, "email has no local part",
			map[string]string{"email": email})
	}
	return addr.Address[:at], nil
}

var emailPattern = regexp.MustCompile(`(?i)^(([^<>()\[\]\\.,;:\s@"]+(\.[^<>()\[\]\\.,;:\s@"]+)*)|(".+"))@((\[[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\])|(([a-zA-Z\-0-9]+\.)+[a-zA-Z]{2,}))$`)

// ValidateEmail reports whether email is a well-formed address with a
// dotted domain or a bracketed IPv4 literal.
func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}
