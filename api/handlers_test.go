/*
handlers_test.go - HTTP round-trips against the memory-backed service

The tests drive the real router with httptest, asserting status codes,
JSON payloads, and the error-taxonomy-to-status mapping.
*/
package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearbooks/ledger-engine/api"
	"github.com/clearbooks/ledger-engine/ledger"
	"github.com/clearbooks/ledger-engine/temporal/store"
)

type apiFixture struct {
	srv *httptest.Server
	now time.Time
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{now: time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)}
	svc := ledger.NewService(store.NewTxMemory()).WithClock(func() time.Time { return f.now })
	h := api.NewHandler(svc, ledger.FiscalConfig{StartMonth: time.January, Currency: "USD"})
	f.srv = httptest.NewServer(api.NewRouter(h))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *apiFixture) tick() { f.now = f.now.Add(time.Minute) }

func (f *apiFixture) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func (f *apiFixture) createAccount(t *testing.T, code, typ string) string {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/api/accounts", map[string]string{
		"code": code, "name": "Account " + code, "type": typ, "actor": "setup",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var dto struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &dto))
	f.tick()
	return dto.ID
}

func (f *apiFixture) createTransaction(t *testing.T, amount, debit, credit string) string {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/api/transactions", map[string]any{
		"amount":            amount,
		"debit_account_id":  debit,
		"credit_account_id": credit,
		"date":              f.now.Format(time.RFC3339),
		"description":       "entry",
		"actor":             "clerk",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var dto struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &dto))
	f.tick()
	return dto.ID
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func TestAPI_CreateAndGetAccount(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createAccount(t, "1000", "ASSET")

	resp, body := f.do(t, http.MethodGet, "/api/accounts/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var dto struct {
		Code     string `json:"code"`
		Type     string `json:"type"`
		Balance  string `json:"balance"`
		IsActive bool   `json:"is_active"`
	}
	require.NoError(t, json.Unmarshal(body, &dto))
	assert.Equal(t, "1000", dto.Code)
	assert.Equal(t, "ASSET", dto.Type)
	assert.Equal(t, "0", dto.Balance)
	assert.True(t, dto.IsActive)
}

func TestAPI_CreateAccount_ValidationRejectedWith400(t *testing.T) {
	f := newAPIFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/api/accounts", map[string]string{
		"code": "1000", "name": "Cash", "type": "PROFIT", "actor": "setup",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "unknown type fails request validation")

	resp, _ = f.do(t, http.MethodPost, "/api/accounts", map[string]string{
		"name": "Cash", "type": "ASSET", "actor": "setup",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "missing code")
}

func TestAPI_GetUnknownAccount_404(t *testing.T) {
	f := newAPIFixture(t)
	resp, _ := f.do(t, http.MethodGet, "/api/accounts/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_AccountDeleteAndRestore(t *testing.T) {
	f := newAPIFixture(t)
	id := f.createAccount(t, "1000", "ASSET")

	resp, _ := f.do(t, http.MethodDelete, "/api/accounts/"+id+"?actor=admin", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	f.tick()

	resp, _ = f.do(t, http.MethodGet, "/api/accounts/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := f.do(t, http.MethodPost, "/api/accounts/"+id+"/restore?actor=admin", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, _ = f.do(t, http.MethodGet, "/api/accounts/"+id, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// =============================================================================
// TRANSACTIONS AND BALANCES
// =============================================================================

func TestAPI_TransactionLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	cash := f.createAccount(t, "1000", "ASSET")
	donations := f.createAccount(t, "4000", "REVENUE")

	txID := f.createTransaction(t, "500", cash, donations)

	// Balance after posting.
	resp, body := f.do(t, http.MethodGet, "/api/accounts/"+cash+"/balance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var bal struct {
		Balance  string `json:"balance"`
		Currency string `json:"currency"`
	}
	require.NoError(t, json.Unmarshal(body, &bal))
	assert.Equal(t, "500", bal.Balance)
	assert.Equal(t, "USD", bal.Currency)

	// Edit the amount.
	resp, body = f.do(t, http.MethodPut, "/api/transactions/"+txID, map[string]any{
		"amount": "350", "actor": "supervisor",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	f.tick()

	resp, body = f.do(t, http.MethodGet, "/api/accounts/"+cash+"/balance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &bal))
	assert.Equal(t, "350", bal.Balance)

	// Void it.
	resp, body = f.do(t, http.MethodPost, "/api/transactions/"+txID+"/void", map[string]string{
		"reason": "duplicate", "actor": "supervisor",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var voided struct {
		IsVoided   bool   `json:"is_voided"`
		VoidReason string `json:"void_reason"`
	}
	require.NoError(t, json.Unmarshal(body, &voided))
	assert.True(t, voided.IsVoided)
	assert.Equal(t, "duplicate", voided.VoidReason)
	f.tick()

	// A second void is an invalid lifecycle operation.
	resp, _ = f.do(t, http.MethodPost, "/api/transactions/"+txID+"/void", map[string]string{
		"reason": "again", "actor": "supervisor",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// The version chain carries all three versions.
	resp, body = f.do(t, http.MethodGet, "/api/transactions/"+txID+"/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var chain []struct {
		Amount   string `json:"amount"`
		IsVoided bool   `json:"is_voided"`
	}
	require.NoError(t, json.Unmarshal(body, &chain))
	require.Len(t, chain, 3)
	assert.True(t, chain[0].IsVoided)
	assert.Equal(t, "350", chain[1].Amount)
	assert.Equal(t, "500", chain[2].Amount)
}

func TestAPI_BalanceAsOf(t *testing.T) {
	f := newAPIFixture(t)
	cash := f.createAccount(t, "1000", "ASSET")
	donations := f.createAccount(t, "4000", "REVENUE")

	beforePost := f.now
	f.tick()
	f.createTransaction(t, "500", cash, donations)

	path := "/api/accounts/" + cash + "/balance?as_of=" + beforePost.Format(time.RFC3339)
	resp, body := f.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var bal struct {
		Balance string `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(body, &bal))
	assert.Equal(t, "0", bal.Balance, "balance as it stood before the posting")

	resp, _ = f.do(t, http.MethodGet, "/api/accounts/"+cash+"/balance?as_of=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_HierarchicalBalance(t *testing.T) {
	f := newAPIFixture(t)
	parent := f.createAccount(t, "1000", "ASSET")

	resp, body := f.do(t, http.MethodPost, "/api/accounts", map[string]string{
		"code": "1010", "name": "Petty cash", "type": "ASSET",
		"parent_id": parent, "actor": "setup",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var child struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &child))
	f.tick()
	donations := f.createAccount(t, "4000", "REVENUE")

	f.createTransaction(t, "75", child.ID, donations)

	resp, body = f.do(t, http.MethodGet, "/api/accounts/"+parent+"/balance/hierarchical", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var bal struct {
		Balance string `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(body, &bal))
	assert.Equal(t, "75", bal.Balance)
}

// =============================================================================
// VERIFICATION
// =============================================================================

func TestAPI_VerifyIntegrity(t *testing.T) {
	f := newAPIFixture(t)
	cash := f.createAccount(t, "1000", "ASSET")
	donations := f.createAccount(t, "4000", "REVENUE")
	f.createTransaction(t, "500", cash, donations)

	resp, body := f.do(t, http.MethodGet, "/api/verify?full=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report struct {
		IsValid     bool   `json:"is_valid"`
		TotalDebits string `json:"total_debits"`
		Drift       []any  `json:"drift"`
	}
	require.NoError(t, json.Unmarshal(body, &report))
	assert.True(t, report.IsValid)
	assert.Equal(t, "500", report.TotalDebits)
	assert.Empty(t, report.Drift)
}

func TestAPI_VerifyIntegrity_BadWindow400(t *testing.T) {
	f := newAPIFixture(t)
	resp, _ := f.do(t, http.MethodGet, "/api/verify?from=notadate", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
