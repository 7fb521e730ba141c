package accounts

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func newTestRouter(repo *stubRepo) http.Handler {
	handler := NewHandler(slog.Default(), NewService(repo, nil))
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("X-User-ID", owner)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandlerCreateAccount(t *testing.T) {
	repo := newStubRepo()
	router := newTestRouter(repo)

	rr := doJSON(t, router, http.MethodPost, "/accounts",
		`{"code":"1000","name":"Cash","type":"ASSET","currency":"USD"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var account Account
	if err := json.Unmarshal(rr.Body.Bytes(), &account); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if account.NormalBalance != NormalBalanceDebit {
		t.Fatalf("normal balance = %s", account.NormalBalance)
	}
}

func TestHandlerRequiresOwnerHeader(t *testing.T) {
	router := newTestRouter(newStubRepo())

	req := httptest.NewRequest(http.MethodGet, "/accounts", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestHandlerMapsDomainErrors(t *testing.T) {
	repo := newStubRepo()
	router := newTestRouter(repo)

	if rr := doJSON(t, router, http.MethodGet, "/accounts/9999", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("missing account: status = %d, want 404", rr.Code)
	}

	create := `{"code":"1000","name":"Cash","type":"ASSET","currency":"USD"}`
	if rr := doJSON(t, router, http.MethodPost, "/accounts", create); rr.Code != http.StatusCreated {
		t.Fatalf("create: status = %d", rr.Code)
	}
	if rr := doJSON(t, router, http.MethodPost, "/accounts", create); rr.Code != http.StatusConflict {
		t.Fatalf("duplicate: status = %d, want 409", rr.Code)
	}
	badRange := `{"code":"2000","name":"Cash","type":"ASSET","currency":"USD"}`
	if rr := doJSON(t, router, http.MethodPost, "/accounts", badRange); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad code range: status = %d, want 400", rr.Code)
	}
}

func TestHandlerDeactivateWithBalanceConflicts(t *testing.T) {
	repo := newStubRepo()
	repo.seed(Account{UserID: owner, Code: "1000", Name: "Cash", Type: AccountTypeAsset,
		NormalBalance: NormalBalanceDebit, Balance: amount("50"), Currency: "USD", IsActive: true})
	router := newTestRouter(repo)

	rr := doJSON(t, router, http.MethodPost, "/accounts/1000/deactivate", "")
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}
}

func TestHandlerTrialBalance(t *testing.T) {
	repo := newStubRepo()
	repo.seed(Account{UserID: owner, Code: "1000", Name: "Cash", Type: AccountTypeAsset,
		NormalBalance: NormalBalanceDebit, Balance: amount("100"), Currency: "USD", IsActive: true})
	repo.seed(Account{UserID: owner, Code: "3000", Name: "Capital", Type: AccountTypeEquity,
		NormalBalance: NormalBalanceCredit, Balance: amount("100"), Currency: "USD", IsActive: true})
	router := newTestRouter(repo)

	rr := doJSON(t, router, http.MethodGet, "/accounts/trial-balance", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var tb TrialBalance
	if err := json.Unmarshal(rr.Body.Bytes(), &tb); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !tb.IsBalanced {
		t.Fatalf("expected balanced trial balance, got %+v", tb)
	}
}
