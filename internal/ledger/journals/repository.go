package journals

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tallybook/tallybook/internal/ledger/accounts"
	"github.com/tallybook/tallybook/internal/ledger/shared"
	"github.com/tallybook/tallybook/internal/platform/db"
	internalShared "github.com/tallybook/tallybook/internal/shared"
)

// Repository encapsulates DB operations for journal entries. Mutations that
// must be atomic run through WithTx.
type Repository interface {
	GetByID(ctx context.Context, userID string, id uuid.UUID) (JournalEntry, error)
	ListByUser(ctx context.Context, userID string, q ListQuery) ([]JournalEntry, error)
	ListByAccountCode(ctx context.Context, userID, code string, q ListQuery) ([]JournalEntry, error)
	ListByReference(ctx context.Context, userID, reference string, q ListQuery) ([]JournalEntry, error)
	ListInDateRange(ctx context.Context, userID string, q DateRangeQuery) ([]JournalEntry, error)
	AccountExists(ctx context.Context, userID, code string) (bool, error)
	EntryByReference(ctx context.Context, userID, reference string) (string, bool, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the operations available within one atomic commit.
// Account access is duplicated from the accounts repository because posting
// needs it inside the same transaction.
type TxRepository interface {
	NextSequence(ctx context.Context, userID string, year int) (int, error)
	InsertEntry(ctx context.Context, e JournalEntry) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID uuid.UUID, lines []Line) error
	ReplaceLines(ctx context.Context, entryID uuid.UUID, lines []Line) error
	GetEntryForUpdate(ctx context.Context, userID string, id uuid.UUID) (JournalEntry, error)
	UpdateEntryHeader(ctx context.Context, e JournalEntry) error
	MarkPosted(ctx context.Context, id uuid.UUID, postedAt time.Time) error
	MarkReversed(ctx context.Context, id uuid.UUID, reversedAt time.Time, reversedBy uuid.UUID) error

	GetAccountByCode(ctx context.Context, userID, code string) (accounts.Account, error)
	InsertAccount(ctx context.Context, a accounts.Account) (accounts.Account, error)
	AdjustBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `id, display_id, user_id, date, description, reference, status, total_debit::text, total_credit::text, currency, reversed_from_id, reversed_by_id, posted_at, reversed_at, created_at, updated_at`

const entryColumnsAliased = `e.id, e.display_id, e.user_id, e.date, e.description, e.reference, e.status, e.total_debit::text, e.total_credit::text, e.currency, e.reversed_from_id, e.reversed_by_id, e.posted_at, e.reversed_at, e.created_at, e.updated_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	var totalDebit, totalCredit string
	err := row.Scan(&e.ID, &e.DisplayID, &e.UserID, &e.Date, &e.Description, &e.Reference, &e.Status,
		&totalDebit, &totalCredit, &e.Currency, &e.ReversedFromID, &e.ReversedByID,
		&e.PostedAt, &e.ReversedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return JournalEntry{}, err
	}
	if e.TotalDebit, err = decimal.NewFromString(totalDebit); err != nil {
		return JournalEntry{}, err
	}
	if e.TotalCredit, err = decimal.NewFromString(totalCredit); err != nil {
		return JournalEntry{}, err
	}
	return e, nil
}

func (r *repository) GetByID(ctx context.Context, userID string, id uuid.UUID) (JournalEntry, error) {
	entry, err := scanEntry(r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE user_id=$1 AND id=$2`, userID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	entry.Lines, err = loadLines(ctx, r.db, entry.ID)
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *repository) ListByUser(ctx context.Context, userID string, q ListQuery) ([]JournalEntry, error) {
	p := internalShared.NewPage(q.Limit, q.Offset)
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE user_id=$1 ORDER BY date DESC, display_id DESC LIMIT $2 OFFSET $3`,
		userID, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collectWithLines(ctx, rows)
}

func (r *repository) ListByAccountCode(ctx context.Context, userID, code string, q ListQuery) ([]JournalEntry, error) {
	p := internalShared.NewPage(q.Limit, q.Offset)
	rows, err := r.db.Query(ctx, `SELECT DISTINCT `+entryColumnsAliased+` FROM journal_entries e
JOIN journal_lines l ON l.entry_id = e.id
WHERE e.user_id=$1 AND l.account_code=$2
ORDER BY e.date DESC, e.display_id DESC LIMIT $3 OFFSET $4`, userID, code, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collectWithLines(ctx, rows)
}

func (r *repository) ListByReference(ctx context.Context, userID, reference string, q ListQuery) ([]JournalEntry, error) {
	p := internalShared.NewPage(q.Limit, q.Offset)
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE user_id=$1 AND reference=$2 ORDER BY date DESC, display_id DESC LIMIT $3 OFFSET $4`,
		userID, reference, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collectWithLines(ctx, rows)
}

func (r *repository) ListInDateRange(ctx context.Context, userID string, q DateRangeQuery) ([]JournalEntry, error) {
	p := internalShared.NewPage(q.Limit, q.Offset)
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE user_id=$1 AND date >= $2 AND date <= $3 ORDER BY date DESC, display_id DESC LIMIT $4 OFFSET $5`,
		userID, q.From, q.To, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collectWithLines(ctx, rows)
}

func (r *repository) AccountExists(ctx context.Context, userID, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE user_id=$1 AND code=$2 AND is_active)`, userID, code).Scan(&exists)
	return exists, err
}

func (r *repository) EntryByReference(ctx context.Context, userID, reference string) (string, bool, error) {
	var displayID string
	err := r.db.QueryRow(ctx, `SELECT display_id FROM journal_entries WHERE user_id=$1 AND reference=$2 ORDER BY created_at ASC LIMIT 1`, userID, reference).Scan(&displayID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return displayID, true, nil
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) collectWithLines(ctx context.Context, rows pgx.Rows) ([]JournalEntry, error) {
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range entries {
		lines, err := loadLines(ctx, r.db, entries[i].ID)
		if err != nil {
			return nil, err
		}
		entries[i].Lines = lines
	}
	return entries, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadLines(ctx context.Context, q querier, entryID uuid.UUID) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT account_id, account_code, description, debit::text, credit::text, book_debit::text, book_credit::text, line_number, currency, pending
FROM journal_lines WHERE entry_id=$1 ORDER BY line_number ASC`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		var debit, credit, bookDebit, bookCredit string
		var pending []byte
		if err := rows.Scan(&line.AccountID, &line.AccountCode, &line.Description, &debit, &credit, &bookDebit, &bookCredit, &line.LineNumber, &line.Currency, &pending); err != nil {
			return nil, err
		}
		if line.Debit, err = decimal.NewFromString(debit); err != nil {
			return nil, err
		}
		if line.Credit, err = decimal.NewFromString(credit); err != nil {
			return nil, err
		}
		if line.BookDebit, err = decimal.NewFromString(bookDebit); err != nil {
			return nil, err
		}
		if line.BookCredit, err = decimal.NewFromString(bookCredit); err != nil {
			return nil, err
		}
		if len(pending) > 0 {
			var p PendingAccount
			if err := json.Unmarshal(pending, &p); err != nil {
				return nil, err
			}
			line.Pending = &p
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

// NewTx wraps an already-open transaction in a TxRepository. The plans
// package uses it to fold journal writes into its own atomic commit.
func NewTx(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// NextSequence allocates the next display-id number for (owner, year) with a
// single upsert, so concurrent creations can never read the same value.
func (r *txRepository) NextSequence(ctx context.Context, userID string, year int) (int, error) {
	var seq int
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_sequences (user_id, year, value) VALUES ($1,$2,1)
ON CONFLICT (user_id, year) DO UPDATE SET value = journal_sequences.value + 1
RETURNING value`, userID, year).Scan(&seq)
	return seq, err
}

func (r *txRepository) InsertEntry(ctx context.Context, e JournalEntry) (JournalEntry, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (id, display_id, user_id, date, description, reference, status, total_debit, total_credit, currency, reversed_from_id, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING created_at, updated_at`,
		e.ID, e.DisplayID, e.UserID, e.Date, e.Description, e.Reference, e.Status,
		e.TotalDebit.String(), e.TotalCredit.String(), e.Currency, e.ReversedFromID, e.PostedAt)
	if err := row.Scan(&e.CreatedAt, &e.UpdatedAt); err != nil {
		return JournalEntry{}, err
	}
	return e, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID uuid.UUID, lines []Line) error {
	for _, line := range lines {
		var pending []byte
		if line.Pending != nil {
			var err error
			if pending, err = json.Marshal(line.Pending); err != nil {
				return err
			}
		}
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (entry_id, account_id, account_code, description, debit, credit, book_debit, book_credit, line_number, currency, pending)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			entryID, line.AccountID, line.AccountCode, line.Description,
			line.Debit.String(), line.Credit.String(), line.BookDebit.String(), line.BookCredit.String(),
			line.LineNumber, line.Currency, pending); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) ReplaceLines(ctx context.Context, entryID uuid.UUID, lines []Line) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id=$1`, entryID); err != nil {
		return err
	}
	return r.InsertLines(ctx, entryID, lines)
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, userID string, id uuid.UUID) (JournalEntry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE user_id=$1 AND id=$2 FOR UPDATE`, userID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	entry.Lines, err = loadLines(ctx, r.tx, entry.ID)
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) UpdateEntryHeader(ctx context.Context, e JournalEntry) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET date=$2, description=$3, reference=$4, total_debit=$5, total_credit=$6, updated_at=NOW() WHERE id=$1`,
		e.ID, e.Date, e.Description, e.Reference, e.TotalDebit.String(), e.TotalCredit.String())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) MarkPosted(ctx context.Context, id uuid.UUID, postedAt time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$2, posted_at=$3, updated_at=NOW() WHERE id=$1`, id, StatusPosted, postedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) MarkReversed(ctx context.Context, id uuid.UUID, reversedAt time.Time, reversedBy uuid.UUID) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$2, reversed_at=$3, reversed_by_id=$4, updated_at=NOW() WHERE id=$1`,
		id, StatusReversed, reversedAt, reversedBy)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrEntryNotFound
	}
	return nil
}

// GetAccountByCode duplicates the accounts repository lookup because posting
// must read the account inside its own transaction.
func (r *txRepository) GetAccountByCode(ctx context.Context, userID, code string) (accounts.Account, error) {
	var a accounts.Account
	var balance string
	err := r.tx.QueryRow(ctx, `SELECT id, user_id, code, name, description, type, normal_balance, balance::text, currency, is_active, parent_code, created_at, updated_at
FROM accounts WHERE user_id=$1 AND code=$2 FOR UPDATE`, userID, code).
		Scan(&a.ID, &a.UserID, &a.Code, &a.Name, &a.Description, &a.Type, &a.NormalBalance, &balance, &a.Currency, &a.IsActive, &a.ParentCode, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return accounts.Account{}, shared.ErrAccountNotFound
		}
		return accounts.Account{}, err
	}
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return accounts.Account{}, err
	}
	return a, nil
}

func (r *txRepository) InsertAccount(ctx context.Context, a accounts.Account) (accounts.Account, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO accounts (id, user_id, code, name, description, type, normal_balance, balance, currency, is_active, parent_code)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING created_at, updated_at`,
		a.ID, a.UserID, a.Code, a.Name, a.Description, a.Type, a.NormalBalance, a.Balance.String(), a.Currency, a.IsActive, a.ParentCode).
		Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return accounts.Account{}, shared.ErrDuplicateAccount
		}
		return accounts.Account{}, err
	}
	return a, nil
}

// AdjustBalance applies a single atomic increment. Never read-modify-write:
// two concurrent postings on the same account must both land.
func (r *txRepository) AdjustBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance string
	err := r.tx.QueryRow(ctx, `UPDATE accounts SET balance = balance + $2, updated_at=NOW() WHERE id=$1 RETURNING balance::text`,
		accountID, delta.String()).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, shared.ErrAccountNotFound
		}
		return decimal.Zero, err
	}
	return decimal.NewFromString(balance)
}
