// Package storage provides SQLite-based implementations of the collection
// persistence ports. The repositories are deliberately dumb: they load and
// save whole collections and perform no validation of their own.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/streakworks/chainrules/internal/application/ports"
	"github.com/streakworks/chainrules/internal/domain/rule"
)

// Compile-time check that RuleRepository implements RuleCollectionPort.
var _ ports.RuleCollectionPort = (*RuleRepository)(nil)

// RuleRepository implements RuleCollectionPort using SQLite.
type RuleRepository struct {
	db *sql.DB
}

// NewRuleRepository creates a new rule repository.
func NewRuleRepository(db *sql.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// LoadRules retrieves the full rule collection. Malformed rows are returned
// as-is (zero values where columns are unreadable) so the integrity checker
// can see them.
func (r *RuleRepository) LoadRules(ctx context.Context) ([]rule.Rule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, type, scope, chain_id,
		       created_at, last_used_at, usage_count, is_active, is_archived
		FROM rules
		ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var result []rule.Rule
	for rows.Next() {
		var (
			id, name, description, ruleType, scope, chainID sql.NullString
			createdAt, lastUsedAt                           sql.NullString
			usageCount                                      sql.NullInt64
			isActive, isArchived                            sql.NullBool
		)
		if err := rows.Scan(&id, &name, &description, &ruleType, &scope, &chainID,
			&createdAt, &lastUsedAt, &usageCount, &isActive, &isArchived); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}

		item := rule.Rule{
			ID:          id.String,
			Name:        name.String,
			Description: description.String,
			Type:        rule.Type(ruleType.String),
			Scope:       rule.Scope(scope.String),
			ChainID:     chainID.String,
			UsageCount:  int(usageCount.Int64),
			IsActive:    isActive.Bool,
			IsArchived:  isArchived.Bool,
		}
		if createdAt.Valid {
			if t, err := time.Parse(time.RFC3339Nano, createdAt.String); err == nil {
				item.CreatedAt = t
			}
		}
		if lastUsedAt.Valid && lastUsedAt.String != "" {
			if t, err := time.Parse(time.RFC3339Nano, lastUsedAt.String); err == nil {
				item.LastUsedAt = &t
			}
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	return result, nil
}

// SaveRules replaces the full rule collection inside one transaction.
func (r *RuleRepository) SaveRules(ctx context.Context, rules []rule.Rule) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM rules"); err != nil {
		return fmt.Errorf("failed to clear rules: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO rules
		(id, name, description, type, scope, chain_id, created_at, last_used_at, usage_count, is_active, is_archived)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, item := range rules {
		var lastUsed sql.NullString
		if item.LastUsedAt != nil {
			lastUsed = sql.NullString{String: item.LastUsedAt.Format(time.RFC3339Nano), Valid: true}
		}
		var created string
		if !item.CreatedAt.IsZero() {
			created = item.CreatedAt.Format(time.RFC3339Nano)
		}

		if _, err := stmt.ExecContext(ctx,
			item.ID,
			item.Name,
			item.Description,
			string(item.Type),
			string(item.Scope),
			item.ChainID,
			created,
			lastUsed,
			item.UsageCount,
			item.IsActive,
			item.IsArchived,
		); err != nil {
			return fmt.Errorf("failed to insert rule %s: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rules: %w", err)
	}
	return nil
}
