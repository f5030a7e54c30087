package rule

import "time"

// Status tracks the lifecycle of a rule during optimistic creation and other
// in-flight mutations.
type Status string

const (
	StatusActive   Status = "active"
	StatusCreating Status = "creating"
	StatusUpdating Status = "updating"
	StatusDeleting Status = "deleting"
	StatusError    Status = "error"
)

// State is the transient bookkeeping entry for a rule mutation. It is held
// in memory by the reconciler and swept once past its TTL.
type State struct {
	ID               string
	Status           Status
	TempID           string
	RealID           string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ValidationErrors []string
}

// IDMapping records the resolution of a temporary identifier to the durable
// identifier assigned at persistence time.
type IDMapping struct {
	TempID   string
	RealID   string
	MappedAt time.Time
}
