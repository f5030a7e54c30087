package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/streakworks/chainrules/internal/application/ports"
	"github.com/streakworks/chainrules/internal/domain/rule"
)

var _ ports.UsageCollectionPort = (*UsageRepository)(nil)

// UsageRepository implements UsageCollectionPort using SQLite.
type UsageRepository struct {
	db *sql.DB
}

// NewUsageRepository creates a new usage record repository.
func NewUsageRepository(db *sql.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// LoadRecords retrieves the full usage record collection.
func (r *UsageRepository) LoadRecords(ctx context.Context) ([]rule.UsageRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, rule_id, chain_id, session_id, used_at,
		       action_type, elapsed_time, remaining_time, rule_scope
		FROM usage_records
		ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage records: %w", err)
	}
	defer rows.Close()

	var result []rule.UsageRecord
	for rows.Next() {
		var (
			id, ruleID, chainID, sessionID sql.NullString
			usedAt, actionType, ruleScope  sql.NullString
			elapsed, remaining             sql.NullInt64
		)
		if err := rows.Scan(&id, &ruleID, &chainID, &sessionID, &usedAt,
			&actionType, &elapsed, &remaining, &ruleScope); err != nil {
			return nil, fmt.Errorf("failed to scan usage record: %w", err)
		}

		record := rule.UsageRecord{
			ID:            id.String,
			RuleID:        ruleID.String,
			ChainID:       chainID.String,
			SessionID:     sessionID.String,
			ActionType:    rule.Type(actionType.String),
			ElapsedTime:   elapsed.Int64,
			RemainingTime: remaining.Int64,
			RuleScope:     rule.Scope(ruleScope.String),
		}
		if usedAt.Valid {
			if t, err := time.Parse(time.RFC3339Nano, usedAt.String); err == nil {
				record.UsedAt = t
			}
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read usage records: %w", err)
	}
	return result, nil
}

// SaveRecords replaces the full usage record collection inside one transaction.
func (r *UsageRepository) SaveRecords(ctx context.Context, records []rule.UsageRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM usage_records"); err != nil {
		return fmt.Errorf("failed to clear usage records: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO usage_records
		(id, rule_id, chain_id, session_id, used_at, action_type, elapsed_time, remaining_time, rule_scope)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		var usedAt string
		if !record.UsedAt.IsZero() {
			usedAt = record.UsedAt.Format(time.RFC3339Nano)
		}

		if _, err := stmt.ExecContext(ctx,
			record.ID,
			record.RuleID,
			record.ChainID,
			record.SessionID,
			usedAt,
			string(record.ActionType),
			record.ElapsedTime,
			record.RemainingTime,
			string(record.RuleScope),
		); err != nil {
			return fmt.Errorf("failed to insert usage record %s: %w", record.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit usage records: %w", err)
	}
	return nil
}
