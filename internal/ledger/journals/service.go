package journals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tallybook/tallybook/internal/ledger/accounts"
	"github.com/tallybook/tallybook/internal/ledger/fx"
	"github.com/tallybook/tallybook/internal/ledger/shared"
	internalShared "github.com/tallybook/tallybook/internal/shared"
)

type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// MetricsPort counts engine events. Implementations must be cheap; the
// service calls it after the commit succeeds.
type MetricsPort interface {
	EntryPosted()
	EntryReversed()
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

// Validate runs the pure validation pass and returns the full error and
// warning lists as data.
func (s *Service) Validate(ctx context.Context, userID string, in CreateEntryInput) ValidationResult {
	return Validate(ctx, userID, in, s.repo, s.repo, s.logger)
}

// Create validates and persists a new DRAFT entry. Lines referencing pending
// accounts keep their descriptor; everything else resolves to a stored
// account id. The display id comes from an atomic per (owner, year) counter.
func (s *Service) Create(ctx context.Context, userID string, in CreateEntryInput) (JournalEntry, error) {
	if in.Date.IsZero() {
		in.Date = s.now()
	}
	result := Validate(ctx, userID, in, s.repo, s.repo, s.logger)
	if !result.IsValid {
		return JournalEntry{}, &shared.ValidationFailedError{Errors: result.Errors}
	}

	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lines, totalDebit, totalCredit, err := buildLines(ctx, tx, userID, in.Currency, in.Lines)
		if err != nil {
			return err
		}
		seq, err := tx.NextSequence(ctx, userID, in.Date.Year())
		if err != nil {
			return err
		}
		inserted, err := tx.InsertEntry(ctx, JournalEntry{
			DisplayID:   FormatDisplayID(in.Date.Year(), seq),
			UserID:      userID,
			Date:        in.Date,
			Description: in.Description,
			Reference:   in.Reference,
			Status:      StatusDraft,
			TotalDebit:  totalDebit,
			TotalCredit: totalCredit,
			Currency:    in.Currency,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, inserted.ID, lines); err != nil {
			return err
		}
		inserted.Lines = lines
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// Update patches a DRAFT entry. Non-DRAFT entries are immutable.
func (s *Service) Update(ctx context.Context, userID string, id uuid.UUID, in UpdateEntryInput) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, userID, id)
		if err != nil {
			return err
		}
		if current.Status != StatusDraft {
			return fmt.Errorf("%w: entry %s is %s, requires %s", shared.ErrInvalidStatus, current.DisplayID, current.Status, StatusDraft)
		}
		if in.Description != nil {
			current.Description = *in.Description
		}
		if in.Date != nil {
			current.Date = *in.Date
		}
		if in.Reference != nil {
			current.Reference = *in.Reference
		}
		if in.Lines != nil {
			proposed := CreateEntryInput{
				Description: current.Description,
				Date:        current.Date,
				Currency:    current.Currency,
				Lines:       *in.Lines,
			}
			result := Validate(ctx, userID, proposed, s.repo, nil, s.logger)
			if !result.IsValid {
				return &shared.ValidationFailedError{Errors: result.Errors}
			}
			lines, totalDebit, totalCredit, err := buildLines(ctx, tx, userID, current.Currency, *in.Lines)
			if err != nil {
				return err
			}
			if err := tx.ReplaceLines(ctx, current.ID, lines); err != nil {
				return err
			}
			current.Lines = lines
			current.TotalDebit = totalDebit
			current.TotalCredit = totalCredit
		}
		if err := tx.UpdateEntryHeader(ctx, current); err != nil {
			return err
		}
		entry = current
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (s *Service) Get(ctx context.Context, userID string, id uuid.UUID) (JournalEntry, error) {
	return s.repo.GetByID(ctx, userID, id)
}

func (s *Service) List(ctx context.Context, userID string, q ListQuery) ([]JournalEntry, error) {
	return s.repo.ListByUser(ctx, userID, q)
}

// AccountActivity lists entries touching the given account code.
func (s *Service) AccountActivity(ctx context.Context, userID, code string, q ListQuery) ([]JournalEntry, error) {
	return s.repo.ListByAccountCode(ctx, userID, code, q)
}

func (s *Service) ListByReference(ctx context.Context, userID, reference string, q ListQuery) ([]JournalEntry, error) {
	return s.repo.ListByReference(ctx, userID, reference, q)
}

func (s *Service) ListInDateRange(ctx context.Context, userID string, q DateRangeQuery) ([]JournalEntry, error) {
	return s.repo.ListInDateRange(ctx, userID, q)
}

// Post applies the entry's economic effect to account balances and moves it
// DRAFT -> POSTED. The whole operation commits atomically: if any line fails,
// no balance change from this call persists.
func (s *Service) Post(ctx context.Context, userID string, id uuid.UUID) (PostResult, error) {
	var result PostResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetEntryForUpdate(ctx, userID, id)
		if err != nil {
			return err
		}
		switch entry.Status {
		case StatusDraft:
		case StatusPosted:
			return fmt.Errorf("%w: entry %s is already %s", shared.ErrInvalidStatus, entry.DisplayID, StatusPosted)
		default:
			return fmt.Errorf("%w: entry %s is %s, requires %s", shared.ErrInvalidStatus, entry.DisplayID, entry.Status, StatusDraft)
		}
		if errs := revalidate(entry); len(errs) > 0 {
			return &shared.ValidationFailedError{Errors: errs}
		}
		lines, changes, err := ApplyLines(ctx, tx, s.rates, userID, entry.Lines)
		if err != nil {
			return err
		}
		if err := tx.ReplaceLines(ctx, entry.ID, lines); err != nil {
			return err
		}
		postedAt := s.now()
		if err := tx.MarkPosted(ctx, entry.ID, postedAt); err != nil {
			return err
		}
		entry.Lines = lines
		entry.Status = StatusPosted
		entry.PostedAt = &postedAt
		result = PostResult{Entry: entry, AffectedAccounts: changes}
		return nil
	})
	if err != nil {
		return PostResult{}, err
	}
	if s.metrics != nil {
		s.metrics.EntryPosted()
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, internalShared.AuditLog{
			Actor:    userID,
			Action:   "journal.post",
			Entity:   "journal_entry",
			EntityID: result.Entry.DisplayID,
			At:       s.now(),
		})
	}
	return result, nil
}

// Reverse creates the mirror entry for a POSTED original, applies its balance
// effect and marks the original REVERSED. The net effect across original plus
// reversal is zero for every touched account.
func (s *Service) Reverse(ctx context.Context, userID string, id uuid.UUID, reason string) (ReverseResult, error) {
	var result ReverseResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntryForUpdate(ctx, userID, id)
		if err != nil {
			return err
		}
		switch original.Status {
		case StatusPosted:
		case StatusReversed:
			return fmt.Errorf("%w: entry %s is already %s", shared.ErrInvalidStatus, original.DisplayID, StatusReversed)
		default:
			return fmt.Errorf("%w: entry %s is not %s", shared.ErrInvalidStatus, original.DisplayID, StatusPosted)
		}

		now := s.now()
		seq, err := tx.NextSequence(ctx, userID, now.Year())
		if err != nil {
			return err
		}
		mirror := ReverseLines(original.Lines)
		reversal, err := tx.InsertEntry(ctx, JournalEntry{
			DisplayID:      FormatDisplayID(now.Year(), seq),
			UserID:         userID,
			Date:           now,
			Description:    reversalDescription(original.Description, reason),
			Reference:      original.Reference,
			Status:         StatusPosted,
			TotalDebit:     original.TotalCredit,
			TotalCredit:    original.TotalDebit,
			Currency:       original.Currency,
			ReversedFromID: &original.ID,
			PostedAt:       &now,
		})
		if err != nil {
			return err
		}
		lines, changes, err := applyBookLines(ctx, tx, userID, mirror)
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, reversal.ID, lines); err != nil {
			return err
		}
		if err := tx.MarkReversed(ctx, original.ID, now, reversal.ID); err != nil {
			return err
		}
		reversal.Lines = lines
		original.Status = StatusReversed
		original.ReversedAt = &now
		original.ReversedByID = &reversal.ID
		result = ReverseResult{Original: original, Reversal: reversal, AffectedAccounts: changes}
		return nil
	})
	if err != nil {
		return ReverseResult{}, err
	}
	if s.metrics != nil {
		s.metrics.EntryReversed()
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, internalShared.AuditLog{
			Actor:    userID,
			Action:   "journal.reverse",
			Entity:   "journal_entry",
			EntityID: result.Original.DisplayID,
			Meta:     map[string]any{"reversal": result.Reversal.DisplayID, "reason": reason},
			At:       s.now(),
		})
	}
	return result, nil
}

// AccountTx is the slice of TxRepository that balance application needs. The
// plans transaction repository satisfies it too.
type AccountTx interface {
	GetAccountByCode(ctx context.Context, userID, code string) (accounts.Account, error)
	InsertAccount(ctx context.Context, a accounts.Account) (accounts.Account, error)
	AdjustBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error)
}

// ApplyLines materialises pending accounts, converts mixed-currency amounts
// and applies each line's signed balance effect. The converted amounts are
// recorded on the line as BookDebit/BookCredit. It must run inside the
// caller's transaction so a failure rolls every increment back.
func ApplyLines(ctx context.Context, tx AccountTx, rates fx.RateProvider, userID string, lines []Line) ([]Line, []AccountChange, error) {
	applied := make([]Line, 0, len(lines))
	cs := newChangeSet(len(lines))

	for _, line := range lines {
		account, err := resolveLineAccount(ctx, tx, userID, line)
		if err != nil {
			return nil, nil, err
		}
		line.AccountID = &account.ID
		line.Pending = nil

		debit, credit := line.Debit, line.Credit
		if line.Currency != "" && line.Currency != account.Currency {
			if rates == nil {
				return nil, nil, fmt.Errorf("%w: no provider for %s/%s", shared.ErrRateUnavailable, line.Currency, account.Currency)
			}
			rate, err := rates.Rate(ctx, line.Currency, account.Currency)
			if err != nil {
				return nil, nil, err
			}
			debit = debit.Mul(rate).Round(2)
			credit = credit.Mul(rate).Round(2)
		}
		line.BookDebit = debit
		line.BookCredit = credit

		delta := BalanceDelta(account.NormalBalance, debit, credit)
		balance, err := tx.AdjustBalance(ctx, account.ID, delta)
		if err != nil {
			return nil, nil, err
		}
		cs.add(account, delta, balance)
		applied = append(applied, line)
	}
	return applied, cs.changes, nil
}

// applyBookLines replays the book-currency amounts recorded when the lines
// were first applied. Reverse uses it instead of the rate provider, so the
// cancellation is exact regardless of rate movement since posting.
func applyBookLines(ctx context.Context, tx AccountTx, userID string, lines []Line) ([]Line, []AccountChange, error) {
	applied := make([]Line, 0, len(lines))
	cs := newChangeSet(len(lines))

	for _, line := range lines {
		account, err := tx.GetAccountByCode(ctx, userID, line.AccountCode)
		if err != nil {
			return nil, nil, err
		}
		line.AccountID = &account.ID
		line.Pending = nil

		delta := BalanceDelta(account.NormalBalance, line.BookDebit, line.BookCredit)
		balance, err := tx.AdjustBalance(ctx, account.ID, delta)
		if err != nil {
			return nil, nil, err
		}
		cs.add(account, delta, balance)
		applied = append(applied, line)
	}
	return applied, cs.changes, nil
}

// changeSet aggregates per-account deltas when an entry touches the same
// account on multiple lines.
type changeSet struct {
	changes []AccountChange
	idx     map[uuid.UUID]int
}

func newChangeSet(capacity int) *changeSet {
	return &changeSet{changes: make([]AccountChange, 0, capacity), idx: make(map[uuid.UUID]int)}
}

func (c *changeSet) add(account accounts.Account, delta, balance decimal.Decimal) {
	if i, seen := c.idx[account.ID]; seen {
		c.changes[i].Delta = c.changes[i].Delta.Add(delta)
		c.changes[i].Balance = balance
		return
	}
	c.idx[account.ID] = len(c.changes)
	c.changes = append(c.changes, AccountChange{
		AccountID: account.ID,
		Code:      account.Code,
		Type:      account.Type,
		Delta:     delta,
		Balance:   balance,
	})
}

func resolveLineAccount(ctx context.Context, tx AccountTx, userID string, line Line) (accounts.Account, error) {
	account, err := tx.GetAccountByCode(ctx, userID, line.AccountCode)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, shared.ErrAccountNotFound) || line.Pending == nil {
		return accounts.Account{}, err
	}
	pending := line.Pending
	if err := accounts.ValidateCode(pending.Code, pending.Type); err != nil {
		return accounts.Account{}, err
	}
	return tx.InsertAccount(ctx, accounts.Account{
		UserID:        userID,
		Code:          pending.Code,
		Name:          pending.Name,
		Type:          pending.Type,
		NormalBalance: accounts.NormalBalanceFor(pending.Type),
		Balance:       decimal.Zero,
		Currency:      pending.Currency,
		IsActive:      true,
		ParentCode:    pending.ParentCode,
	})
}

// buildLines resolves account references, fills currencies, assigns 1-based
// line numbers and computes totals for a new or replaced line set.
func buildLines(ctx context.Context, tx TxRepository, userID, entryCurrency string, inputs []LineInput) ([]Line, decimal.Decimal, decimal.Decimal, error) {
	lines := make([]Line, 0, len(inputs))
	totalDebit := decimal.Zero
	totalCredit := decimal.Zero
	for idx, in := range inputs {
		currency := in.Currency
		if currency == "" {
			currency = entryCurrency
		}
		line := Line{
			AccountCode: in.AccountCode,
			Description: in.Description,
			Debit:       in.Debit,
			Credit:      in.Credit,
			LineNumber:  idx + 1,
			Currency:    currency,
			Pending:     in.Pending,
		}
		if in.Pending == nil {
			account, err := tx.GetAccountByCode(ctx, userID, in.AccountCode)
			if err != nil {
				return nil, decimal.Zero, decimal.Zero, err
			}
			line.AccountID = &account.ID
		}
		totalDebit = totalDebit.Add(in.Debit)
		totalCredit = totalCredit.Add(in.Credit)
		lines = append(lines, line)
	}
	return lines, totalDebit, totalCredit, nil
}

// revalidate re-runs the structural checks on stored lines before posting.
// Account existence is settled during ApplyLines inside the same transaction.
func revalidate(entry JournalEntry) []string {
	var errs []string
	if len(entry.Lines) < 2 {
		errs = append(errs, "journal entry must have at least 2 lines")
	}
	totalDebit := decimal.Zero
	totalCredit := decimal.Zero
	for _, line := range entry.Lines {
		n := line.LineNumber
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			errs = append(errs, fmt.Sprintf("line %d: negative amounts are not allowed", n))
			continue
		}
		hasDebit := line.Debit.IsPositive()
		hasCredit := line.Credit.IsPositive()
		if hasDebit && hasCredit {
			errs = append(errs, fmt.Sprintf("line %d: cannot have both a debit and a credit amount", n))
		}
		if !hasDebit && !hasCredit {
			errs = append(errs, fmt.Sprintf("line %d: must have either a debit or a credit amount", n))
		}
		totalDebit = totalDebit.Add(line.Debit)
		totalCredit = totalCredit.Add(line.Credit)
	}
	if totalDebit.Sub(totalCredit).Abs().GreaterThanOrEqual(balanceTolerance) {
		errs = append(errs, fmt.Sprintf("journal entry is not balanced: Debit=%s, Credit=%s", totalDebit.String(), totalCredit.String()))
	}
	return errs
}

func reversalDescription(original, reason string) string {
	desc := "REVERSAL: " + original
	if reason != "" {
		desc += " (" + reason + ")"
	}
	return desc
}
