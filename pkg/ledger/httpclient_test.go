package ledger_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/canopy-network/liquidityx/pkg/amount"
	"github.com/canopy-network/liquidityx/pkg/asset"
	"github.com/canopy-network/liquidityx/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const issuer = "GISSUER"

func TestLoadAccount_Success(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/GPOOL", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{
			"id": "GPOOL",
			"sequence": "4242",
			"balances": [
				{"balance": "50.0000000", "limit": "922337203685.4775807", "asset_type": "credit_alphanum4", "asset_code": "USD", "asset_issuer": "GISSUER"},
				{"balance": "1.0000000", "asset_type": "liquidity_pool_shares"},
				{"balance": "100.0000000", "asset_type": "native"}
			]
		}`))
	})

	info, err := newTestClient(handler).LoadAccount(context.Background(), "GPOOL")
	require.NoError(t, err)

	assert.Equal(t, int64(4242), info.Sequence)
	assert.Len(t, info.Balances, 2)

	usd, ok := info.BalanceOf(asset.Credit("USD", issuer))
	require.True(t, ok)
	assert.True(t, usd.Equal(amount.MustParse("50")))

	xlm, ok := info.BalanceOf(asset.Native())
	require.True(t, ok)
	assert.True(t, xlm.Equal(amount.MustParse("100")))

	assert.False(t, info.CanHold(asset.Credit("EUR", issuer)))
	assert.True(t, info.CanHold(asset.Native()))
}

func TestLoadAccount_NotFound(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status": 404, "title": "Resource Missing"}`))
	})

	_, err := newTestClient(handler).LoadAccount(context.Background(), "GNOPE")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestGetTransfer_JoinsTransactionMemo(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/operations/123", r.URL.Path)
		assert.Equal(t, "transactions", r.URL.Query().Get("join"))
		_, _ = w.Write([]byte(`{
			"id": "123",
			"type": "payment",
			"from": "GUSER",
			"to": "GMANAGER",
			"asset_type": "native",
			"amount": "10.5000000",
			"transaction_hash": "abc",
			"transaction_successful": true,
			"transaction": {"hash": "abc", "memo": "7", "memo_type": "text", "successful": true}
		}`))
	})

	tr, err := newTestClient(handler).GetTransfer(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, "GUSER", tr.From)
	assert.Equal(t, "GMANAGER", tr.To)
	assert.Equal(t, "7", tr.Memo)
	assert.True(t, tr.Asset.IsNative())
	assert.True(t, tr.Amount.Equal(amount.MustParse("10.5")))
	assert.True(t, tr.Successful)
}

func TestGetTransfer_RejectsNonPayment(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "9", "type": "create_account"}`))
	})

	_, err := newTestClient(handler).GetTransfer(context.Background(), "9")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestListOffers(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/GPOOL/offers", r.URL.Path)
		_, _ = w.Write([]byte(`{"_embedded": {"records": [{
			"id": "77",
			"seller": "GPOOL",
			"selling": {"asset_type": "credit_alphanum4", "asset_code": "USD", "asset_issuer": "GISSUER"},
			"buying": {"asset_type": "native"},
			"amount": "1.6502475",
			"price": "2.0200000"
		}]}}`))
	})

	offers, err := newTestClient(handler).ListOffers(context.Background(), "GPOOL")
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, int64(77), offers[0].ID)
	assert.Equal(t, asset.Credit("USD", issuer), offers[0].Selling)
	assert.True(t, offers[0].Buying.IsNative())
	assert.True(t, offers[0].Price.Equal(amount.MustParse("2.02")))
}

func TestRecentTransactions(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "desc", r.URL.Query().Get("order"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"_embedded": {"records": [
			{"hash": "h2", "source_account": "GCH", "source_account_sequence": "11", "memo": "charge:2", "successful": true},
			{"hash": "h1", "source_account": "GCH", "source_account_sequence": "10", "memo": "charge:1", "successful": false}
		]}}`))
	})

	txs, err := newTestClient(handler).RecentTransactions(context.Background(), "GCH", 5)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, int64(11), txs[0].Sequence)
	assert.Equal(t, "charge:1", txs[1].Memo)
	assert.False(t, txs[1].Successful)
}

func TestBuildAndSubmit_Success(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "GCH", req["source_account"])
		assert.Equal(t, "11", req["sequence"])
		assert.Equal(t, "charge:5", req["memo"])
		assert.Equal(t, float64(30), req["timeout_seconds"])
		assert.Equal(t, []any{"GPOOL"}, req["signers"])

		ops := req["operations"].([]any)
		require.Len(t, ops, 1)
		op := ops[0].(map[string]any)
		assert.Equal(t, "payment", op["type"])
		assert.Equal(t, "GPOOL", op["source_account"])
		assert.Equal(t, "2.5000000", op["amount"])

		_, _ = w.Write([]byte(`{"hash": "deadbeef", "ledger": 900}`))
	})

	res, err := newTestClient(handler).BuildAndSubmit(context.Background(), ledger.SubmitOptions{
		Source:   "GCH",
		Sequence: 10,
		Signers:  []string{"GPOOL"},
		Memo:     "charge:5",
		Timeout:  30 * time.Second,
	}, []ledger.Operation{
		ledger.Payment("GUSER", asset.Native(), amount.MustParse("2.5")).WithSource("GPOOL"),
	})
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", res.Hash)
	assert.Equal(t, int64(900), res.Ledger)
	assert.Equal(t, int64(11), res.Sequence)
}

func TestBuildAndSubmit_ClassifiesResultCodes(t *testing.T) {
	cases := map[string]struct {
		body  string
		check func(t *testing.T, err error)
	}{
		"bad sequence": {
			body: `{"status": 400, "extras": {"result_codes": {"transaction": "tx_bad_seq"}}}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ledger.ErrBadSequence)
				assert.True(t, ledger.IsStale(err))
			},
		},
		"too late": {
			body: `{"status": 400, "extras": {"result_codes": {"transaction": "tx_too_late"}}}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ledger.ErrExpired)
				assert.True(t, ledger.IsStale(err))
			},
		},
		"underfunded": {
			body: `{"status": 400, "extras": {"result_codes": {"transaction": "tx_failed", "operations": ["op_underfunded"]}}}`,
			check: func(t *testing.T, err error) {
				var rej *ledger.RejectedError
				require.True(t, errors.As(err, &rej))
				assert.True(t, rej.HasOperationCode("op_underfunded"))
				assert.False(t, ledger.IsStale(err))
				assert.False(t, ledger.IsTransient(err))
			},
		},
		"unstructured": {
			body: `nope`,
			check: func(t *testing.T, err error) {
				assert.True(t, ledger.IsRejected(err))
			},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := newTestClient(handler).BuildAndSubmit(context.Background(),
				ledger.SubmitOptions{Source: "GCH", Sequence: 1},
				[]ledger.Operation{ledger.Payment("GUSER", asset.Native(), amount.One)})
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestBuildAndSubmit_ServerErrorIsTransport(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusGatewayTimeout)
	})

	client := newTestClientWithOpts(handler, ledger.Opts{Endpoints: []string{"http://a", "http://b"}})
	_, err := client.BuildAndSubmit(context.Background(),
		ledger.SubmitOptions{Source: "GCH", Sequence: 1},
		[]ledger.Operation{ledger.Payment("GUSER", asset.Native(), amount.One)})

	assert.ErrorIs(t, err, ledger.ErrTransport)
	assert.True(t, ledger.IsTransient(err))
	assert.Equal(t, int32(2), calls.Load(), "every endpoint is tried once")
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	client := newTestClientWithOpts(handler, ledger.Opts{BreakerFailures: 2, BreakerCooldown: time.Minute})
	for i := 0; i < 3; i++ {
		_, err := client.LoadAccount(context.Background(), "GPOOL")
		assert.ErrorIs(t, err, ledger.ErrTransport)
	}
	assert.Equal(t, int32(2), calls.Load(), "open breaker skips the endpoint")
}

func TestBuildAndSubmit_ValidatesInput(t *testing.T) {
	client := newTestClient(http.NotFoundHandler())

	_, err := client.BuildAndSubmit(context.Background(), ledger.SubmitOptions{}, []ledger.Operation{
		ledger.Payment("GUSER", asset.Native(), amount.One),
	})
	assert.Error(t, err)

	_, err = client.BuildAndSubmit(context.Background(), ledger.SubmitOptions{Source: "GCH"}, nil)
	assert.Error(t, err)
}

func TestOperationWireForm(t *testing.T) {
	usd := asset.Credit("USD", issuer)
	op := ledger.CancelOffer(ledger.Offer{ID: 5, Selling: usd, Buying: asset.Native(), Price: amount.MustParse("2")})

	b, err := json.Marshal(op)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "manage_sell_offer", got["type"])
	assert.Equal(t, "0.0000000", got["amount"])
	assert.Equal(t, "2.0000000", got["price"])
	assert.Equal(t, float64(5), got["offer_id"])
	assert.Equal(t, "USD", got["selling"].(map[string]any)["asset_code"])
	assert.NotContains(t, got, "destination")
}
