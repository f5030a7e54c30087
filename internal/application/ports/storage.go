// Package ports defines the application layer port interfaces following
// hexagonal architecture. Ports are abstractions that allow the application
// core to interact with external systems (adapters) without knowing their
// implementation details.
package ports

import (
	"context"

	"github.com/streakworks/chainrules/internal/domain/rule"
)

// RuleCollectionPort is the persistence boundary for the rule collection.
// The backend is a dumb durable store: it loads and saves the collection as
// an opaque whole and performs no validation. All consistency logic lives in
// the application layer.
type RuleCollectionPort interface {
	// LoadRules retrieves the full rule collection.
	LoadRules(ctx context.Context) ([]rule.Rule, error)

	// SaveRules replaces the full rule collection atomically.
	SaveRules(ctx context.Context, rules []rule.Rule) error
}

// UsageCollectionPort is the persistence boundary for the usage-record
// collection, with the same dumb-store semantics as RuleCollectionPort.
type UsageCollectionPort interface {
	// LoadRecords retrieves the full usage-record collection.
	LoadRecords(ctx context.Context) ([]rule.UsageRecord, error)

	// SaveRecords replaces the full usage-record collection atomically.
	SaveRecords(ctx context.Context, records []rule.UsageRecord) error
}
