package accounts

import "github.com/shopspring/decimal"

// CreateAccountRequest carries input for opening a new account.
type CreateAccountRequest struct {
	Code        string  `json:"code" validate:"required,len=4"`
	Name        string  `json:"name" validate:"required,max=200"`
	Description string  `json:"description,omitempty" validate:"max=1000"`
	Type        string  `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	Currency    string  `json:"currency" validate:"required,len=3"`
	ParentCode  *string `json:"parent_code,omitempty" validate:"omitempty,len=4"`
}

// UpdateAccountRequest patches mutable attributes. Code and type are immutable.
type UpdateAccountRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1000"`
	Currency    *string `json:"currency,omitempty" validate:"omitempty,len=3"`
}

// TrialBalanceRow is one account's contribution to the trial balance.
type TrialBalanceRow struct {
	Code    string          `json:"code"`
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}

// TrialBalance categorises active accounts per type and verifies that total
// debits equal total credits under the normal-balance convention.
type TrialBalance struct {
	Assets       []TrialBalanceRow `json:"assets"`
	Liabilities  []TrialBalanceRow `json:"liabilities"`
	Equity       []TrialBalanceRow `json:"equity"`
	Revenue      []TrialBalanceRow `json:"revenue"`
	Expenses     []TrialBalanceRow `json:"expenses"`
	TotalDebits  decimal.Decimal   `json:"total_debits"`
	TotalCredits decimal.Decimal   `json:"total_credits"`
	IsBalanced   bool              `json:"is_balanced"`
}
