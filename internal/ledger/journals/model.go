package journals

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tallybook/tallybook/internal/ledger/accounts"
)

// EntryStatus enumerates the journal entry lifecycle. Transitions are strictly
// DRAFT -> POSTED -> REVERSED, each a one-way move.
type EntryStatus string

const (
	StatusDraft    EntryStatus = "DRAFT"
	StatusPosted   EntryStatus = "POSTED"
	StatusReversed EntryStatus = "REVERSED"
)

// JournalEntry is a balanced set of debit/credit lines for one economic event.
type JournalEntry struct {
	ID             uuid.UUID
	DisplayID      string
	UserID         string
	Date           time.Time
	Description    string
	Reference      string
	Status         EntryStatus
	TotalDebit     decimal.Decimal
	TotalCredit    decimal.Decimal
	Currency       string
	Lines          []Line
	ReversedFromID *uuid.UUID
	ReversedByID   *uuid.UUID
	PostedAt       *time.Time
	ReversedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Line is one side of a double entry. AccountID is nil while the line points
// at a pending account that will only be materialised at posting time.
type Line struct {
	AccountID   *uuid.UUID
	AccountCode string
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	LineNumber  int
	Currency    string
	Pending     *PendingAccount

	// BookDebit and BookCredit are the account-currency amounts recorded
	// when the line was applied. Reversal replays them, so the original and
	// its reversal net to zero even if the rate moved in between.
	BookDebit  decimal.Decimal
	BookCredit decimal.Decimal
}

// PendingAccount describes an account that does not exist yet but should be
// created when the entry is posted.
type PendingAccount struct {
	Code       string               `json:"code"`
	Name       string               `json:"name"`
	Type       accounts.AccountType `json:"type"`
	Currency   string               `json:"currency"`
	ParentCode *string              `json:"parent_code,omitempty"`
}

// FormatDisplayID renders the per-owner sequential display id, e.g.
// JE-2026-000042.
func FormatDisplayID(year, seq int) string {
	return fmt.Sprintf("JE-%d-%06d", year, seq)
}

// BalanceDelta computes the signed effect of a line on an account: debit
// increases debit-normal accounts, credit increases credit-normal accounts.
func BalanceDelta(normal accounts.NormalBalance, debit, credit decimal.Decimal) decimal.Decimal {
	if normal == accounts.NormalBalanceDebit {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

// ReverseLines builds the mirror of a line set with debit and credit swapped.
func ReverseLines(lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	for _, line := range lines {
		mirrored := line
		mirrored.Debit = line.Credit
		mirrored.Credit = line.Debit
		mirrored.BookDebit = line.BookCredit
		mirrored.BookCredit = line.BookDebit
		out = append(out, mirrored)
	}
	return out
}
