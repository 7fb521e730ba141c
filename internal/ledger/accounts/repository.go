package accounts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tallybook/tallybook/internal/ledger/shared"
)

// Repository encapsulates DB operations for the account registry.
// Balance mutation is deliberately absent: balances change only through the
// posting transaction repositories in the journals and plans packages.
type Repository interface {
	Create(ctx context.Context, a Account) (Account, error)
	GetByCode(ctx context.Context, userID, code string) (Account, error)
	ListActive(ctx context.Context, userID string) ([]Account, error)
	ListByType(ctx context.Context, userID string, t AccountType) ([]Account, error)
	Update(ctx context.Context, a Account) (Account, error)
	SetActive(ctx context.Context, userID, code string, active bool) error
	DistinctUserIDs(ctx context.Context) ([]string, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, user_id, code, name, description, type, normal_balance, balance::text, currency, is_active, parent_code, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	var balance string
	err := row.Scan(&a.ID, &a.UserID, &a.Code, &a.Name, &a.Description, &a.Type, &a.NormalBalance, &balance, &a.Currency, &a.IsActive, &a.ParentCode, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Account{}, err
	}
	a.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return Account{}, err
	}
	return a, nil
}

func (r *repository) Create(ctx context.Context, a Account) (Account, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	row := r.db.QueryRow(ctx, `INSERT INTO accounts (id, user_id, code, name, description, type, normal_balance, balance, currency, is_active, parent_code)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING `+accountColumns, a.ID, a.UserID, a.Code, a.Name, a.Description, a.Type, a.NormalBalance, a.Balance.String(), a.Currency, a.IsActive, a.ParentCode)
	created, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, shared.ErrDuplicateAccount
		}
		return Account{}, err
	}
	return created, nil
}

func (r *repository) GetByCode(ctx context.Context, userID, code string) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id=$1 AND code=$2`, userID, code)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *repository) ListActive(ctx context.Context, userID string) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id=$1 AND is_active ORDER BY code`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func (r *repository) ListByType(ctx context.Context, userID string, t AccountType) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id=$1 AND type=$2 AND is_active ORDER BY code`, userID, t)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func (r *repository) Update(ctx context.Context, a Account) (Account, error) {
	row := r.db.QueryRow(ctx, `UPDATE accounts SET name=$3, description=$4, currency=$5, updated_at=NOW()
WHERE user_id=$1 AND code=$2
RETURNING `+accountColumns, a.UserID, a.Code, a.Name, a.Description, a.Currency)
	updated, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrAccountNotFound
		}
		return Account{}, err
	}
	return updated, nil
}

func (r *repository) SetActive(ctx context.Context, userID, code string, active bool) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET is_active=$3, updated_at=NOW() WHERE user_id=$1 AND code=$2`, userID, code, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

func (r *repository) DistinctUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT user_id FROM accounts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func collectAccounts(rows pgx.Rows) ([]Account, error) {
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
