package plans

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tallybook/tallybook/internal/ledger/journals"
	"github.com/tallybook/tallybook/internal/ledger/shared"
	"github.com/tallybook/tallybook/internal/platform/db"
)

// Repository encapsulates DB operations for pending account plans.
type Repository interface {
	Create(ctx context.Context, p Plan) (Plan, error)
	GetByID(ctx context.Context, userID string, id uuid.UUID) (Plan, error)
	ListPending(ctx context.Context, userID string) ([]Plan, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository extends the journals transaction surface with plan state, so
// confirmation commits accounts, entry and plan in one unit.
type TxRepository interface {
	journals.TxRepository
	GetPlanForUpdate(ctx context.Context, userID string, id uuid.UUID) (Plan, error)
	SetPlanStatus(ctx context.Context, id uuid.UUID, status PlanStatus, entryID *uuid.UUID) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, p Plan) (Plan, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	accountsJSON, err := json.Marshal(p.AccountsToCreate)
	if err != nil {
		return Plan{}, err
	}
	txJSON, err := json.Marshal(p.Transaction)
	if err != nil {
		return Plan{}, err
	}
	err = r.db.QueryRow(ctx, `INSERT INTO pending_account_plans (id, user_id, accounts_to_create, transaction_to_create, status)
VALUES ($1,$2,$3,$4,$5) RETURNING created_at, updated_at`,
		p.ID, p.UserID, accountsJSON, txJSON, p.Status).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Plan{}, err
	}
	return p, nil
}

func (r *repository) GetByID(ctx context.Context, userID string, id uuid.UUID) (Plan, error) {
	return scanPlan(r.db.QueryRow(ctx, planSelect+` WHERE user_id=$1 AND id=$2`, userID, id))
}

func (r *repository) ListPending(ctx context.Context, userID string) ([]Plan, error) {
	rows, err := r.db.Query(ctx, planSelect+` WHERE user_id=$1 AND status=$2 ORDER BY created_at DESC`, userID, StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxRepository: journals.NewTx(tx), tx: tx})
	})
}

const planSelect = `SELECT id, user_id, accounts_to_create, transaction_to_create, status, created_journal_entry_id, created_at, updated_at FROM pending_account_plans`

func scanPlan(row pgx.Row) (Plan, error) {
	var p Plan
	var accountsJSON, txJSON []byte
	err := row.Scan(&p.ID, &p.UserID, &accountsJSON, &txJSON, &p.Status, &p.CreatedJournalEntryID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Plan{}, shared.ErrPlanNotFound
		}
		return Plan{}, err
	}
	if err := json.Unmarshal(accountsJSON, &p.AccountsToCreate); err != nil {
		return Plan{}, err
	}
	if err := json.Unmarshal(txJSON, &p.Transaction); err != nil {
		return Plan{}, err
	}
	return p, nil
}

type txRepository struct {
	journals.TxRepository
	tx pgx.Tx
}

func (r *txRepository) GetPlanForUpdate(ctx context.Context, userID string, id uuid.UUID) (Plan, error) {
	return scanPlan(r.tx.QueryRow(ctx, planSelect+` WHERE user_id=$1 AND id=$2 FOR UPDATE`, userID, id))
}

func (r *txRepository) SetPlanStatus(ctx context.Context, id uuid.UUID, status PlanStatus, entryID *uuid.UUID) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE pending_account_plans SET status=$2, created_journal_entry_id=$3, updated_at=NOW() WHERE id=$1`,
		id, status, entryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrPlanNotFound
	}
	return nil
}
