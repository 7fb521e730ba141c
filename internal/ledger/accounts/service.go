package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallybook/tallybook/internal/ledger/shared"
	internalShared "github.com/tallybook/tallybook/internal/shared"
)

// balanceTolerance is the rounding slack allowed before a trial balance is
// reported as out of balance.
var balanceTolerance = decimal.NewFromFloat(0.01)

type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create validates the code against the type range and persists a new account
// with a zero opening balance.
func (s *Service) Create(ctx context.Context, userID string, req CreateAccountRequest) (Account, error) {
	accountType := AccountType(req.Type)
	if !ValidType(accountType) {
		return Account{}, fmt.Errorf("%w: unknown account type %q", shared.ErrInvalidCodeFormat, req.Type)
	}
	if err := ValidateCode(req.Code, accountType); err != nil {
		return Account{}, err
	}
	account := Account{
		UserID:        userID,
		Code:          req.Code,
		Name:          req.Name,
		Description:   req.Description,
		Type:          accountType,
		NormalBalance: NormalBalanceFor(accountType),
		Balance:       decimal.Zero,
		Currency:      req.Currency,
		IsActive:      true,
		ParentCode:    req.ParentCode,
	}
	return s.repo.Create(ctx, account)
}

func (s *Service) Get(ctx context.Context, userID, code string) (Account, error) {
	return s.repo.GetByCode(ctx, userID, code)
}

// List returns the user's active accounts ordered by code.
func (s *Service) List(ctx context.Context, userID string) ([]Account, error) {
	return s.repo.ListActive(ctx, userID)
}

func (s *Service) ListByType(ctx context.Context, userID string, t AccountType) ([]Account, error) {
	return s.repo.ListByType(ctx, userID, t)
}

// Update patches name, description and currency. Code and type are immutable
// once an account exists.
func (s *Service) Update(ctx context.Context, userID, code string, req UpdateAccountRequest) (Account, error) {
	current, err := s.repo.GetByCode(ctx, userID, code)
	if err != nil {
		return Account{}, err
	}
	if req.Name != nil {
		current.Name = *req.Name
	}
	if req.Description != nil {
		current.Description = *req.Description
	}
	if req.Currency != nil {
		current.Currency = *req.Currency
	}
	return s.repo.Update(ctx, current)
}

// Deactivate retires an account. Accounts carrying a balance cannot be
// deactivated; they are never hard-deleted either.
func (s *Service) Deactivate(ctx context.Context, userID, code string) error {
	account, err := s.repo.GetByCode(ctx, userID, code)
	if err != nil {
		return err
	}
	if !account.Balance.IsZero() {
		return fmt.Errorf("%w: account %s has balance %s", shared.ErrNonZeroBalance, code, account.Balance.String())
	}
	if err := s.repo.SetActive(ctx, userID, code, false); err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, internalShared.AuditLog{
			Actor:    userID,
			Action:   "account.deactivate",
			Entity:   "account",
			EntityID: code,
			At:       s.now(),
		})
	}
	return nil
}

// TrialBalance sums active accounts by normal-balance convention: assets and
// expenses contribute to total debits, everything else to total credits.
func (s *Service) TrialBalance(ctx context.Context, userID string) (TrialBalance, error) {
	active, err := s.repo.ListActive(ctx, userID)
	if err != nil {
		return TrialBalance{}, err
	}
	tb := TrialBalance{
		Assets:       []TrialBalanceRow{},
		Liabilities:  []TrialBalanceRow{},
		Equity:       []TrialBalanceRow{},
		Revenue:      []TrialBalanceRow{},
		Expenses:     []TrialBalanceRow{},
		TotalDebits:  decimal.Zero,
		TotalCredits: decimal.Zero,
	}
	for _, a := range active {
		row := TrialBalanceRow{Code: a.Code, Name: a.Name, Balance: a.Balance}
		switch a.Type {
		case AccountTypeAsset:
			tb.Assets = append(tb.Assets, row)
		case AccountTypeExpense:
			tb.Expenses = append(tb.Expenses, row)
		case AccountTypeLiability:
			tb.Liabilities = append(tb.Liabilities, row)
		case AccountTypeEquity:
			tb.Equity = append(tb.Equity, row)
		case AccountTypeRevenue:
			tb.Revenue = append(tb.Revenue, row)
		}
		if IsDebitAccount(a) {
			tb.TotalDebits = tb.TotalDebits.Add(a.Balance)
		} else {
			tb.TotalCredits = tb.TotalCredits.Add(a.Balance)
		}
	}
	tb.IsBalanced = tb.TotalDebits.Sub(tb.TotalCredits).Abs().LessThan(balanceTolerance)
	return tb, nil
}
