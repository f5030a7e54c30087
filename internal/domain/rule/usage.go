package rule

import "time"

// UsageRecord captures one use of a rule during a session. The referenced
// rule is expected to exist; this is a soft invariant verified by the
// integrity checker rather than enforced transactionally.
type UsageRecord struct {
	ID            string    `json:"id"`
	RuleID        string    `json:"rule_id"`
	ChainID       string    `json:"chain_id"`
	SessionID     string    `json:"session_id"`
	UsedAt        time.Time `json:"used_at"`
	ActionType    Type      `json:"action_type"`
	ElapsedTime   int64     `json:"elapsed_time_seconds"`
	RemainingTime int64     `json:"remaining_time_seconds"`
	RuleScope     Scope     `json:"rule_scope"`
}
