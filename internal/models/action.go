package models

import "time"

// LedgerActionType names an audited ledger mutation.
type LedgerActionType string

const (
	ActionSubmitDocument  LedgerActionType = "SUBMIT_DOCUMENT"
	ActionBecomeAttester  LedgerActionType = "BECOME_ATTESTER"
	ActionApproveDocument LedgerActionType = "APPROVE_DOCUMENT"
	ActionRejectDocument  LedgerActionType = "REJECT_DOCUMENT"
)

// Action outcomes.
const (
	ActionOutcomeSuccess = "SUCCESS"
	ActionOutcomeFailure = "FAILURE"
)

// LedgerAction records the outcome of a mutation issued through the gateway.
type LedgerAction struct {
	ID        string           `db:"id"`
	Actor     string           `db:"actor"`
	Action    LedgerActionType `db:"action"`
	Target    *string          `db:"target"`
	DocIndex  *string          `db:"doc_index"`
	TxHash    *string          `db:"tx_hash"`
	Outcome   string           `db:"outcome"`
	ErrorCode *string          `db:"error_code"`
	CreatedAt time.Time        `db:"created_at"`
}
