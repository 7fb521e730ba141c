package plans

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tallybook/tallybook/internal/ledger/accounts"
	"github.com/tallybook/tallybook/internal/ledger/fx"
	"github.com/tallybook/tallybook/internal/ledger/journals"
	"github.com/tallybook/tallybook/internal/ledger/shared"
)

// memRepo is an in-memory Repository. WithTx snapshots state and restores it
// on error, matching the real rollback semantics the coordinator relies on.
type memRepo struct {
	plans    map[uuid.UUID]Plan
	accounts map[string]accounts.Account
	entries  map[uuid.UUID]journals.JournalEntry
	lines    map[uuid.UUID][]journals.Line
	seqs     map[string]int

	// failOnAdjust aborts the transaction when this account code's balance
	// moves, simulating a mid-commit failure.
	failOnAdjust string
}

func newMemRepo() *memRepo {
	return &memRepo{
		plans:    map[uuid.UUID]Plan{},
		accounts: map[string]accounts.Account{},
		entries:  map[uuid.UUID]journals.JournalEntry{},
		lines:    map[uuid.UUID][]journals.Line{},
		seqs:     map[string]int{},
	}
}

func acctKey(userID, code string) string { return userID + "/" + code }

func (m *memRepo) addAccount(userID, code, name string, t accounts.AccountType, currency string) {
	m.accounts[acctKey(userID, code)] = accounts.Account{
		ID:            uuid.New(),
		UserID:        userID,
		Code:          code,
		Name:          name,
		Type:          t,
		NormalBalance: accounts.NormalBalanceFor(t),
		Balance:       decimal.Zero,
		Currency:      currency,
		IsActive:      true,
	}
}

func (m *memRepo) Create(ctx context.Context, p Plan) (Plan, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.plans[p.ID] = p
	return p, nil
}

func (m *memRepo) GetByID(ctx context.Context, userID string, id uuid.UUID) (Plan, error) {
	p, ok := m.plans[id]
	if !ok || p.UserID != userID {
		return Plan{}, shared.ErrPlanNotFound
	}
	return p, nil
}

func (m *memRepo) ListPending(ctx context.Context, userID string) ([]Plan, error) {
	var out []Plan
	for _, p := range m.plans {
		if p.UserID == userID && p.Status == StatusPending {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	saved := m.snapshot()
	if err := fn(ctx, &memTx{store: m}); err != nil {
		m.restore(saved)
		return err
	}
	return nil
}

func (m *memRepo) snapshot() *memRepo {
	c := newMemRepo()
	for k, v := range m.plans {
		c.plans[k] = v
	}
	for k, v := range m.accounts {
		c.accounts[k] = v
	}
	for k, v := range m.entries {
		c.entries[k] = v
	}
	for k, v := range m.lines {
		c.lines[k] = append([]journals.Line(nil), v...)
	}
	for k, v := range m.seqs {
		c.seqs[k] = v
	}
	return c
}

func (m *memRepo) restore(s *memRepo) {
	m.plans = s.plans
	m.accounts = s.accounts
	m.entries = s.entries
	m.lines = s.lines
	m.seqs = s.seqs
}

type memTx struct {
	store *memRepo
}

func (t *memTx) NextSequence(ctx context.Context, userID string, year int) (int, error) {
	key := fmt.Sprintf("%s/%d", userID, year)
	t.store.seqs[key]++
	return t.store.seqs[key], nil
}

func (t *memTx) InsertEntry(ctx context.Context, e journals.JournalEntry) (journals.JournalEntry, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	t.store.entries[e.ID] = e
	return e, nil
}

func (t *memTx) InsertLines(ctx context.Context, entryID uuid.UUID, lines []journals.Line) error {
	t.store.lines[entryID] = append(t.store.lines[entryID], lines...)
	return nil
}

func (t *memTx) ReplaceLines(ctx context.Context, entryID uuid.UUID, lines []journals.Line) error {
	t.store.lines[entryID] = append([]journals.Line(nil), lines...)
	return nil
}

func (t *memTx) GetEntryForUpdate(ctx context.Context, userID string, id uuid.UUID) (journals.JournalEntry, error) {
	e, ok := t.store.entries[id]
	if !ok || e.UserID != userID {
		return journals.JournalEntry{}, shared.ErrEntryNotFound
	}
	return e, nil
}

func (t *memTx) UpdateEntryHeader(ctx context.Context, e journals.JournalEntry) error {
	t.store.entries[e.ID] = e
	return nil
}

func (t *memTx) MarkPosted(ctx context.Context, id uuid.UUID, postedAt time.Time) error {
	e := t.store.entries[id]
	e.Status = journals.StatusPosted
	e.PostedAt = &postedAt
	t.store.entries[id] = e
	return nil
}

func (t *memTx) MarkReversed(ctx context.Context, id uuid.UUID, reversedAt time.Time, reversedBy uuid.UUID) error {
	e := t.store.entries[id]
	e.Status = journals.StatusReversed
	e.ReversedAt = &reversedAt
	e.ReversedByID = &reversedBy
	t.store.entries[id] = e
	return nil
}

func (t *memTx) GetAccountByCode(ctx context.Context, userID, code string) (accounts.Account, error) {
	a, ok := t.store.accounts[acctKey(userID, code)]
	if !ok {
		return accounts.Account{}, shared.ErrAccountNotFound
	}
	return a, nil
}

func (t *memTx) InsertAccount(ctx context.Context, a accounts.Account) (accounts.Account, error) {
	key := acctKey(a.UserID, a.Code)
	if _, exists := t.store.accounts[key]; exists {
		return accounts.Account{}, shared.ErrDuplicateAccount
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	t.store.accounts[key] = a
	return a, nil
}

func (t *memTx) AdjustBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	for key, a := range t.store.accounts {
		if a.ID != accountID {
			continue
		}
		if t.store.failOnAdjust != "" && a.Code == t.store.failOnAdjust {
			return decimal.Zero, errors.New("balance update failed")
		}
		a.Balance = a.Balance.Add(delta)
		t.store.accounts[key] = a
		return a.Balance, nil
	}
	return decimal.Zero, shared.ErrAccountNotFound
}

func (t *memTx) GetPlanForUpdate(ctx context.Context, userID string, id uuid.UUID) (Plan, error) {
	p, ok := t.store.plans[id]
	if !ok || p.UserID != userID {
		return Plan{}, shared.ErrPlanNotFound
	}
	return p, nil
}

func (t *memTx) SetPlanStatus(ctx context.Context, id uuid.UUID, status PlanStatus, entryID *uuid.UUID) error {
	p, ok := t.store.plans[id]
	if !ok {
		return shared.ErrPlanNotFound
	}
	p.Status = status
	p.CreatedJournalEntryID = entryID
	t.store.plans[id] = p
	return nil
}

func amount(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

const owner = "user-1"

func newTestService(repo *memRepo) *Service {
	svc := NewService(repo, fx.NewStaticProvider(nil), nil, nil, nil)
	svc.WithNow(func() time.Time { return time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC) })
	return svc
}

// equipmentPlan stages one new expense account plus a transaction moving 500
// from existing cash into it.
func equipmentPlan() ([]AccountSpec, TransactionSpec) {
	specs := []AccountSpec{
		{Code: "5200", Name: "Equipment Expense", Type: accounts.AccountTypeExpense, Currency: "USD"},
	}
	tx := TransactionSpec{
		Description: "Buy workbench",
		Currency:    "USD",
		Lines: []journals.LineInput{
			{AccountCode: "5200", Debit: amount("500")},
			{AccountCode: "1000", Credit: amount("500")},
		},
	}
	return specs, tx
}

func TestCreateValidatesAccountCodes(t *testing.T) {
	svc := newTestService(newMemRepo())

	specs := []AccountSpec{{Code: "1200", Name: "Wrong Range", Type: accounts.AccountTypeExpense, Currency: "USD"}}
	_, err := svc.Create(context.Background(), owner, specs, TransactionSpec{Currency: "USD"})
	if !errors.Is(err, shared.ErrInvalidCodeFormat) {
		t.Fatalf("expected ErrInvalidCodeFormat, got %v", err)
	}
}

func TestCreateStagesPendingPlan(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)

	specs, tx := equipmentPlan()
	plan, err := svc.Create(context.Background(), owner, specs, tx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if plan.Status != StatusPending {
		t.Fatalf("status = %s, want PENDING", plan.Status)
	}
	if len(repo.accounts) != 0 {
		t.Fatal("staging a plan must not create accounts")
	}
	if len(repo.entries) != 0 {
		t.Fatal("staging a plan must not create entries")
	}
}

func TestConfirmCreatesAccountsAndPostsEntry(t *testing.T) {
	repo := newMemRepo()
	repo.addAccount(owner, "1000", "Cash", accounts.AccountTypeAsset, "USD")
	svc := newTestService(repo)

	specs, tx := equipmentPlan()
	plan, err := svc.Create(context.Background(), owner, specs, tx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	entry, err := svc.Confirm(context.Background(), owner, plan.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if entry.Status != journals.StatusPosted {
		t.Fatalf("entry status = %s, want POSTED", entry.Status)
	}
	if entry.DisplayID != "JE-2025-000001" {
		t.Fatalf("display id = %s", entry.DisplayID)
	}
	created, ok := repo.accounts[acctKey(owner, "5200")]
	if !ok {
		t.Fatal("planned account was not created")
	}
	if !created.Balance.Equal(amount("500")) {
		t.Fatalf("new account balance = %s, want 500", created.Balance)
	}
	if got := repo.accounts[acctKey(owner, "1000")].Balance; !got.Equal(amount("-500")) {
		t.Fatalf("cash balance = %s, want -500", got)
	}
	stored := repo.plans[plan.ID]
	if stored.Status != StatusConfirmed {
		t.Fatalf("plan status = %s, want CONFIRMED", stored.Status)
	}
	if stored.CreatedJournalEntryID == nil || *stored.CreatedJournalEntryID != entry.ID {
		t.Fatal("plan must link to the created entry")
	}
}

func TestConfirmIsAtomic(t *testing.T) {
	repo := newMemRepo()
	repo.addAccount(owner, "1000", "Cash", accounts.AccountTypeAsset, "USD")
	repo.failOnAdjust = "1000"
	svc := newTestService(repo)

	specs, tx := equipmentPlan()
	plan, err := svc.Create(context.Background(), owner, specs, tx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Confirm(context.Background(), owner, plan.ID); err == nil {
		t.Fatal("expected confirm to fail")
	}

	if _, ok := repo.accounts[acctKey(owner, "5200")]; ok {
		t.Fatal("account creation must roll back with the failed transaction")
	}
	if len(repo.entries) != 0 {
		t.Fatal("no journal entry may survive a failed confirm")
	}
	if repo.plans[plan.ID].Status != StatusPending {
		t.Fatalf("plan must stay PENDING, got %s", repo.plans[plan.ID].Status)
	}
}

func TestConfirmRejectsNonPendingPlan(t *testing.T) {
	repo := newMemRepo()
	repo.addAccount(owner, "1000", "Cash", accounts.AccountTypeAsset, "USD")
	svc := newTestService(repo)

	specs, tx := equipmentPlan()
	plan, err := svc.Create(context.Background(), owner, specs, tx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Confirm(context.Background(), owner, plan.ID); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if _, err := svc.Confirm(context.Background(), owner, plan.ID); !errors.Is(err, shared.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestConfirmRejectsUnbalancedTransaction(t *testing.T) {
	repo := newMemRepo()
	repo.addAccount(owner, "1000", "Cash", accounts.AccountTypeAsset, "USD")
	svc := newTestService(repo)

	specs, tx := equipmentPlan()
	tx.Lines[1].Credit = amount("400")
	plan, err := svc.Create(context.Background(), owner, specs, tx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = svc.Confirm(context.Background(), owner, plan.ID)
	var vErr *shared.ValidationFailedError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if repo.plans[plan.ID].Status != StatusPending {
		t.Fatal("plan must stay PENDING after a failed confirm")
	}
}

func TestRejectIsTerminal(t *testing.T) {
	repo := newMemRepo()
	repo.addAccount(owner, "1000", "Cash", accounts.AccountTypeAsset, "USD")
	svc := newTestService(repo)

	specs, tx := equipmentPlan()
	plan, err := svc.Create(context.Background(), owner, specs, tx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Reject(context.Background(), owner, plan.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if repo.plans[plan.ID].Status != StatusRejected {
		t.Fatalf("plan status = %s, want REJECTED", repo.plans[plan.ID].Status)
	}
	if len(repo.accounts[acctKey(owner, "5200")].Code) != 0 {
		t.Fatal("reject must not create accounts")
	}
	if _, err := svc.Confirm(context.Background(), owner, plan.ID); !errors.Is(err, shared.ErrInvalidStatus) {
		t.Fatalf("confirm after reject must fail, got %v", err)
	}
	if err := svc.Reject(context.Background(), owner, plan.ID); !errors.Is(err, shared.ErrInvalidStatus) {
		t.Fatalf("second reject must fail, got %v", err)
	}
}
