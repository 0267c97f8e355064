package entity

import (
	"slices"
	"time"
)

// ActivationStatus tracks whether the account's email has been confirmed.
type ActivationStatus int

const (
	ActivationNotActivated ActivationStatus = 0
	ActivationActivated    ActivationStatus = 1
	ActivationPending      ActivationStatus = 2
)

// EmployeeStatus is a bit set of employment states.
type EmployeeStatus int

const (
	StatusActive         EmployeeStatus = 1
	StatusTerminated     EmployeeStatus = 2
	StatusLeaveOfAbsence EmployeeStatus = 4
)

// Has reports whether every bit of flag is set.
func (s EmployeeStatus) Has(flag EmployeeStatus) bool {
	return s&flag == flag
}

// Contact is one entry of an account's contact list (e.g. phone, skype).
type Contact struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Account is an identity record. Values are treated as immutable by the
// reconciliation code: merges produce a new Account.
type Account struct {
	ID               string           `json:"id,omitempty"`
	Username         string           `json:"username,omitempty"`
	Email            string           `json:"email"`
	Sid              string           `json:"sid,omitempty"` // external directory id; empty for local accounts
	FirstName        string           `json:"first_name"`
	LastName         string           `json:"last_name"`
	Title            string           `json:"title,omitempty"`
	Location         string           `json:"location,omitempty"`
	Contacts         []Contact        `json:"contacts,omitempty"`
	ActivationStatus ActivationStatus `json:"activation_status"`
	Status           EmployeeStatus   `json:"status"`
	IsOwner          bool             `json:"is_owner,omitempty"`
	IsVisitor        bool             `json:"is_visitor,omitempty"`
	WorkFrom         *time.Time       `json:"work_from,omitempty"`
}

// IsDirectoryLinked reports whether the account originates from an external
// identity directory.
func (a Account) IsDirectoryLinked() bool {
	return a.Sid != ""
}

// IsTerminated reports whether the terminated flag is set.
func (a Account) IsTerminated() bool {
	return a.Status.Has(StatusTerminated)
}

// HasContacts reports whether every contact in want is present in a.
func (a Account) HasContacts(want []Contact) bool {
	for _, c := range want {
		if !slices.Contains(a.Contacts, c) {
			return false
		}
	}
	return true
}

// NeedsUpdate reports whether any directory-managed field of local differs
// from ext. Contacts compare as a set: every contact of ext must already be
// present on local.
func NeedsUpdate(local, ext Account) bool {
	return local.FirstName != ext.FirstName ||
		local.LastName != ext.LastName ||
		local.Email != ext.Email ||
		local.Sid != ext.Sid ||
		local.ActivationStatus != ext.ActivationStatus ||
		local.Status != ext.Status ||
		local.Title != ext.Title ||
		local.Location != ext.Location ||
		!local.HasContacts(ext.Contacts)
}

// MergeFrom returns target with the directory-managed fields of ext applied.
// The employment status is kept when isOwner is set: an owner is never
// terminated by directory sync. Identity fields of target (ID, username,
// owner and visitor flags, work start) are preserved.
func MergeFrom(target, ext Account, isOwner bool) Account {
	merged := target
	merged.FirstName = ext.FirstName
	merged.LastName = ext.LastName
	merged.Email = ext.Email
	merged.Sid = ext.Sid
	merged.ActivationStatus = ext.ActivationStatus
	merged.Contacts = slices.Clone(ext.Contacts)
	merged.Title = ext.Title
	merged.Location = ext.Location
	if !isOwner {
		merged.Status = ext.Status
	}
	return merged
}
