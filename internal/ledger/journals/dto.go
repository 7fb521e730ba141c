package journals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tallybook/tallybook/internal/ledger/accounts"
)

// LineInput is one proposed line for a new or updated entry. When Pending is
// set the account code does not have to resolve yet; the descriptor travels
// with the entry and is materialised at posting time.
type LineInput struct {
	AccountCode string          `json:"account_code" validate:"required,len=4"`
	Description string          `json:"description,omitempty" validate:"max=500"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Currency    string          `json:"currency,omitempty" validate:"omitempty,len=3"`
	Pending     *PendingAccount `json:"pending_account,omitempty"`
}

// CreateEntryInput groups fields required to create a journal entry.
type CreateEntryInput struct {
	Description string      `json:"description" validate:"required,max=500"`
	Date        time.Time   `json:"date"`
	Reference   string      `json:"reference,omitempty" validate:"max=100"`
	Currency    string      `json:"currency" validate:"required,len=3"`
	Lines       []LineInput `json:"lines" validate:"dive"`
}

// UpdateEntryInput patches a DRAFT entry. Replacing lines re-runs validation
// and recomputes totals.
type UpdateEntryInput struct {
	Description *string      `json:"description,omitempty" validate:"omitempty,max=500"`
	Date        *time.Time   `json:"date,omitempty"`
	Reference   *string      `json:"reference,omitempty" validate:"omitempty,max=100"`
	Lines       *[]LineInput `json:"lines,omitempty" validate:"omitempty,dive"`
}

// ListQuery bounds paginated read queries.
type ListQuery struct {
	Limit  int `json:"limit" validate:"gte=0,lte=500"`
	Offset int `json:"offset" validate:"gte=0"`
}

// DateRangeQuery selects entries between From and To inclusive.
type DateRangeQuery struct {
	From   time.Time `json:"from" validate:"required"`
	To     time.Time `json:"to" validate:"required"`
	Limit  int       `json:"limit" validate:"gte=0,lte=500"`
	Offset int       `json:"offset" validate:"gte=0"`
}

// AccountChange reports how posting or reversal moved one account.
type AccountChange struct {
	AccountID uuid.UUID            `json:"account_id"`
	Code      string               `json:"code"`
	Type      accounts.AccountType `json:"type"`
	Delta     decimal.Decimal      `json:"delta"`
	Balance   decimal.Decimal      `json:"balance"`
}

// PostResult is the success payload of posting an entry.
type PostResult struct {
	Entry            JournalEntry    `json:"entry"`
	AffectedAccounts []AccountChange `json:"affected_accounts"`
}

// ReverseResult is the success payload of reversing an entry.
type ReverseResult struct {
	Original         JournalEntry    `json:"original"`
	Reversal         JournalEntry    `json:"reversal"`
	AffectedAccounts []AccountChange `json:"affected_accounts"`
}
