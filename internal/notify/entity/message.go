package entity

import (
	"encoding/json"
	"time"
)

// Kind names a notification template.
type Kind string

const (
	KindWelcomePersonal         Kind = "welcome_personal"
	KindUserInvited             Kind = "user_invited"
	KindGuestInvited            Kind = "guest_invited"
	KindUserActivation          Kind = "user_activation"
	KindGuestActivation         Kind = "guest_activation"
	KindActivationInstructions  Kind = "activation_instructions"
	KindPasswordChanged         Kind = "password_changed"
	KindPasswordChangeRequested Kind = "password_change_requested"
)

// Message is one queued notification awaiting delivery.
type Message struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	AccountID string          `json:"account_id"`
	Recipient string          `json:"recipient,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
