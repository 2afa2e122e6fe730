package audit

import (
	"time"

	"github.com/google/uuid"
)

// Category separates compliance-relevant records from operational noise.
type Category string

const (
	CategoryCompliance Category = "compliance"
	CategoryOperations Category = "operations"
)

// Action names the audited operation.
type Action string

const (
	ActionIdentityCreated       Action = "identity_created"
	ActionIdentityStatusChanged Action = "identity_status_changed"
	ActionContactUpserted       Action = "contact_upserted"
	ActionConsentAppended       Action = "consent_appended"
	ActionConsentChecked        Action = "consent_checked"
	ActionChainVerified         Action = "consent_chain_verified"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID         uuid.UUID
	Category   Category
	Timestamp  time.Time
	CID        string
	Action     Action
	Decision   string
	Reason     string
	RequestID  string
	ActorID    string
	Attributes map[string]string
}

// ListFilter narrows ListByCID results.
type ListFilter struct {
	Action Action
	Limit  int
}
