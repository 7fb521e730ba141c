package plans

import (
	"time"

	"github.com/google/uuid"

	"github.com/tallybook/tallybook/internal/ledger/accounts"
	"github.com/tallybook/tallybook/internal/ledger/journals"
)

// PlanStatus enumerates the coordinator lifecycle. CONFIRMED and REJECTED are
// both terminal.
type PlanStatus string

const (
	StatusPending   PlanStatus = "PENDING"
	StatusConfirmed PlanStatus = "CONFIRMED"
	StatusRejected  PlanStatus = "REJECTED"
)

// AccountSpec describes an account the plan will create on confirmation.
type AccountSpec struct {
	Code       string               `json:"code" validate:"required,len=4"`
	Name       string               `json:"name" validate:"required,max=200"`
	Type       accounts.AccountType `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	Currency   string               `json:"currency" validate:"required,len=3"`
	ParentCode *string              `json:"parent_code,omitempty" validate:"omitempty,len=4"`
}

// TransactionSpec is the journal entry the plan will post, referencing both
// existing accounts and the ones listed in AccountsToCreate.
type TransactionSpec struct {
	Description string               `json:"description" validate:"required,max=500"`
	Date        time.Time            `json:"date"`
	Reference   string               `json:"reference,omitempty" validate:"max=100"`
	Currency    string               `json:"currency" validate:"required,len=3"`
	Lines       []journals.LineInput `json:"lines" validate:"dive"`
}

// Plan stages accounts and a transaction for one atomic commit.
type Plan struct {
	ID                    uuid.UUID
	UserID                string
	AccountsToCreate      []AccountSpec
	Transaction           TransactionSpec
	Status                PlanStatus
	CreatedJournalEntryID *uuid.UUID
	CreatedAt             time.Time
	UpdatedAt             time.Time
}
