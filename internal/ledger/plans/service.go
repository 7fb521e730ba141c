package plans

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tallybook/tallybook/internal/ledger/accounts"
	"github.com/tallybook/tallybook/internal/ledger/fx"
	"github.com/tallybook/tallybook/internal/ledger/journals"
	"github.com/tallybook/tallybook/internal/ledger/shared"
	internalShared "github.com/tallybook/tallybook/internal/shared"
)

type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

type MetricsPort interface {
	PlanConfirmed()
}

type Service struct {
	repo    Repository
	rates   fx.RateProvider
	audit   AuditPort
	metrics MetricsPort
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(repo Repository, rates fx.RateProvider, audit AuditPort, metrics MetricsPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, rates: rates, audit: audit, metrics: metrics, logger: logger, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create stages a plan in PENDING state. Account codes are checked against
// their type ranges up front so an unconfirmable plan is rejected early.
func (s *Service) Create(ctx context.Context, userID string, accountsToCreate []AccountSpec, transaction TransactionSpec) (Plan, error) {
	for _, spec := range accountsToCreate {
		if err := accounts.ValidateCode(spec.Code, spec.Type); err != nil {
			return Plan{}, err
		}
	}
	if transaction.Date.IsZero() {
		transaction.Date = s.now()
	}
	return s.repo.Create(ctx, Plan{
		UserID:           userID,
		AccountsToCreate: accountsToCreate,
		Transaction:      transaction,
		Status:           StatusPending,
	})
}

func (s *Service) Get(ctx context.Context, userID string, id uuid.UUID) (Plan, error) {
	return s.repo.GetByID(ctx, userID, id)
}

func (s *Service) ListPending(ctx context.Context, userID string) ([]Plan, error) {
	return s.repo.ListPending(ctx, userID)
}

// Confirm executes the plan in one atomic commit: every listed account is
// created, the transaction is posted as a journal entry, and the plan is
// marked CONFIRMED. If any step fails nothing persists and the plan remains
// PENDING.
func (s *Service) Confirm(ctx context.Context, userID string, id uuid.UUID) (journals.JournalEntry, error) {
	var entry journals.JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		plan, err := tx.GetPlanForUpdate(ctx, userID, id)
		if err != nil {
			return err
		}
		if plan.Status != StatusPending {
			return fmt.Errorf("%w: plan %s is %s, requires %s", shared.ErrInvalidStatus, plan.ID, plan.Status, StatusPending)
		}

		for _, spec := range plan.AccountsToCreate {
			if err := accounts.ValidateCode(spec.Code, spec.Type); err != nil {
				return err
			}
			if _, err := tx.InsertAccount(ctx, accounts.Account{
				UserID:        userID,
				Code:          spec.Code,
				Name:          spec.Name,
				Type:          spec.Type,
				NormalBalance: accounts.NormalBalanceFor(spec.Type),
				Balance:       decimal.Zero,
				Currency:      spec.Currency,
				IsActive:      true,
				ParentCode:    spec.ParentCode,
			}); err != nil {
				return err
			}
		}

		lines, totalDebit, totalCredit, err := buildLines(plan.Transaction)
		if err != nil {
			return err
		}
		now := s.now()
		date := plan.Transaction.Date
		if date.IsZero() {
			date = now
		}
		seq, err := tx.NextSequence(ctx, userID, date.Year())
		if err != nil {
			return err
		}
		inserted, err := tx.InsertEntry(ctx, journals.JournalEntry{
			DisplayID:   journals.FormatDisplayID(date.Year(), seq),
			UserID:      userID,
			Date:        date,
			Description: plan.Transaction.Description,
			Reference:   plan.Transaction.Reference,
			Status:      journals.StatusPosted,
			TotalDebit:  totalDebit,
			TotalCredit: totalCredit,
			Currency:    plan.Transaction.Currency,
			PostedAt:    &now,
		})
		if err != nil {
			return err
		}
		applied, _, err := journals.ApplyLines(ctx, tx, s.rates, userID, lines)
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, inserted.ID, applied); err != nil {
			return err
		}
		if err := tx.SetPlanStatus(ctx, plan.ID, StatusConfirmed, &inserted.ID); err != nil {
			return err
		}
		inserted.Lines = applied
		entry = inserted
		return nil
	})
	if err != nil {
		return journals.JournalEntry{}, err
	}
	if s.metrics != nil {
		s.metrics.PlanConfirmed()
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, internalShared.AuditLog{
			Actor:    userID,
			Action:   "plan.confirm",
			Entity:   "pending_account_plan",
			EntityID: id.String(),
			Meta:     map[string]any{"journal_entry": entry.DisplayID},
			At:       s.now(),
		})
	}
	return entry, nil
}

// Reject moves a PENDING plan to its terminal REJECTED state. No accounts or
// entries are touched.
func (s *Service) Reject(ctx context.Context, userID string, id uuid.UUID) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		plan, err := tx.GetPlanForUpdate(ctx, userID, id)
		if err != nil {
			return err
		}
		if plan.Status != StatusPending {
			return fmt.Errorf("%w: plan %s is %s, requires %s", shared.ErrInvalidStatus, plan.ID, plan.Status, StatusPending)
		}
		return tx.SetPlanStatus(ctx, plan.ID, StatusRejected, nil)
	})
}

// buildLines performs the structural checks and line numbering for the staged
// transaction. Account resolution happens later inside ApplyLines, once the
// new accounts exist.
func buildLines(spec TransactionSpec) ([]journals.Line, decimal.Decimal, decimal.Decimal, error) {
	if len(spec.Lines) < 2 {
		return nil, decimal.Zero, decimal.Zero, &shared.ValidationFailedError{Errors: []string{"journal entry must have at least 2 lines"}}
	}
	var errs []string
	totalDebit := decimal.Zero
	totalCredit := decimal.Zero
	lines := make([]journals.Line, 0, len(spec.Lines))
	for idx, in := range spec.Lines {
		n := idx + 1
		if in.Debit.IsNegative() || in.Credit.IsNegative() {
			errs = append(errs, fmt.Sprintf("line %d: negative amounts are not allowed", n))
			continue
		}
		hasDebit := in.Debit.IsPositive()
		hasCredit := in.Credit.IsPositive()
		if hasDebit && hasCredit {
			errs = append(errs, fmt.Sprintf("line %d: cannot have both a debit and a credit amount", n))
		}
		if !hasDebit && !hasCredit {
			errs = append(errs, fmt.Sprintf("line %d: must have either a debit or a credit amount", n))
		}
		currency := in.Currency
		if currency == "" {
			currency = spec.Currency
		}
		totalDebit = totalDebit.Add(in.Debit)
		totalCredit = totalCredit.Add(in.Credit)
		lines = append(lines, journals.Line{
			AccountCode: in.AccountCode,
			Description: in.Description,
			Debit:       in.Debit,
			Credit:      in.Credit,
			LineNumber:  n,
			Currency:    currency,
			Pending:     in.Pending,
		})
	}
	if !totalDebit.Equal(totalCredit) && totalDebit.Sub(totalCredit).Abs().GreaterThan(decimal.NewFromFloat(0.01)) {
		errs = append(errs, fmt.Sprintf("journal entry is not balanced: Debit=%s, Credit=%s", totalDebit.String(), totalCredit.String()))
	}
	if len(errs) > 0 {
		return nil, decimal.Zero, decimal.Zero, &shared.ValidationFailedError{Errors: errs}
	}
	return lines, totalDebit, totalCredit, nil
}
