package accounts

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tallybook/tallybook/internal/ledger/shared"
)

// AccountType enumerates chart-of-accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// NormalBalance is the side on which an account type naturally increases.
type NormalBalance string

const (
	NormalBalanceDebit  NormalBalance = "DEBIT"
	NormalBalanceCredit NormalBalance = "CREDIT"
)

// Account models a chart of accounts node owned by a single user.
type Account struct {
	ID            uuid.UUID
	UserID        string
	Code          string
	Name          string
	Description   string
	Type          AccountType
	NormalBalance NormalBalance
	Balance       decimal.Decimal
	Currency      string
	IsActive      bool
	ParentCode    *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// codeRanges maps the leading digit of a 4-digit code to its account type.
var codeRanges = map[byte]AccountType{
	'1': AccountTypeAsset,
	'2': AccountTypeLiability,
	'3': AccountTypeEquity,
	'4': AccountTypeRevenue,
	'5': AccountTypeExpense,
}

var typePrefixes = map[AccountType]byte{
	AccountTypeAsset:     '1',
	AccountTypeLiability: '2',
	AccountTypeEquity:    '3',
	AccountTypeRevenue:   '4',
	AccountTypeExpense:   '5',
}

// ValidType reports whether t is one of the five account types.
func ValidType(t AccountType) bool {
	_, ok := typePrefixes[t]
	return ok
}

// NormalBalanceFor derives the normal balance from the account type.
// ASSET and EXPENSE accounts increase on the debit side, all others on credit.
func NormalBalanceFor(t AccountType) NormalBalance {
	if t == AccountTypeAsset || t == AccountTypeExpense {
		return NormalBalanceDebit
	}
	return NormalBalanceCredit
}

// IsDebitAccount reports whether the account increases on the debit side.
func IsDebitAccount(a Account) bool {
	return a.NormalBalance == NormalBalanceDebit
}

// ValidateCode checks that code is 4 digits and its leading digit matches the
// range reserved for the account type (1xxx=ASSET .. 5xxx=EXPENSE).
func ValidateCode(code string, t AccountType) error {
	if len(code) != 4 {
		return fmt.Errorf("%w: code %q must be exactly 4 digits", shared.ErrInvalidCodeFormat, code)
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return fmt.Errorf("%w: code %q must be numeric", shared.ErrInvalidCodeFormat, code)
		}
	}
	prefix, ok := typePrefixes[t]
	if !ok {
		return fmt.Errorf("%w: unknown account type %q", shared.ErrInvalidCodeFormat, t)
	}
	if code[0] != prefix {
		return fmt.Errorf("%w: code %q must start with %c for type %s", shared.ErrInvalidCodeFormat, code, prefix, t)
	}
	return nil
}

// TypeForCode returns the account type implied by the code's leading digit.
func TypeForCode(code string) (AccountType, bool) {
	if len(code) == 0 {
		return "", false
	}
	t, ok := codeRanges[code[0]]
	return t, ok
}
