package models

import (
	"strings"

	dErrors "cidledger/pkg/domain-errors"
)

// Status is the identity lifecycle state.
type Status string

const (
	StatusClaimed   Status = "claimed"
	StatusVerified  Status = "verified"
	StatusSuspended Status = "suspended"
	StatusRevoked   Status = "revoked"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{StatusClaimed, StatusVerified, StatusSuspended, StatusRevoked}

// rank orders statuses; transitions only move to a strictly higher rank.
var rank = map[Status]int{
	StatusClaimed:   0,
	StatusVerified:  1,
	StatusSuspended: 2,
	StatusRevoked:   3,
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", dErrors.Invalid("status", "must be one of claimed, verified, suspended, revoked")
	}
	return st, nil
}

func (s Status) IsValid() bool {
	_, ok := rank[s]
	return ok
}

func (s Status) String() string { return string(s) }

// IsActive is false once an identity is suspended or revoked.
func (s Status) IsActive() bool {
	return s == StatusClaimed || s == StatusVerified
}

// CanTransitionTo reports whether s may move to next. Requesting the current
// status is handled by callers as a no-op and is not a transition.
func (s Status) CanTransitionTo(next Status) bool {
	from, ok := rank[s]
	if !ok {
		return false
	}
	to, ok := rank[next]
	if !ok {
		return false
	}
	return to > from
}

// VerificationMethod names the check that produced a Verification.
type VerificationMethod string

const (
	MethodDocumentLiveness VerificationMethod = "document_liveness"
	MethodLiveness         VerificationMethod = "liveness"
)

// VerificationResult is the outcome recorded for a Verification.
type VerificationResult string

const (
	ResultPassed  VerificationResult = "passed"
	ResultClaimed VerificationResult = "claimed"
)

// ContactType is the channel a contact value belongs to.
type ContactType string

const (
	ContactEmail ContactType = "email"
	ContactPhone ContactType = "phone"
	ContactAgent ContactType = "agent"
)

func ParseContactType(s string) (ContactType, error) {
	t := ContactType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case ContactEmail, ContactPhone, ContactAgent:
		return t, nil
	}
	return "", dErrors.Invalid("type", "must be one of email, phone, agent")
}
