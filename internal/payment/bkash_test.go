package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/restaurant-order-engine/internal/model"
)

func newBkashServer(t *testing.T, grants *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token/grant", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(grants, 1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "merchant" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "app-key", body["app_key"])
		_ = json.NewEncoder(w).Encode(map[string]string{"id_token": "tok-1"})
	})
	mux.HandleFunc("/checkout/payment/create", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok-1", r.Header.Get("authorization"))
		assert.Equal(t, "app-key", r.Header.Get("x-app-key"))
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "700.00", body["amount"])
		assert.Equal(t, "BDT", body["currency"])
		assert.Equal(t, "sale", body["intent"])
		assert.Equal(t, "INV0A1B2C3D4E5F", body["merchantInvoiceNumber"])
		assert.Equal(t, "https://shop.example/api/v1/payments/callback", body["callbackURL"])
		_ = json.NewEncoder(w).Encode(map[string]string{"paymentID": "PAY1", "bkashURL": "https://pay.example/PAY1"})
	})
	mux.HandleFunc("/checkout/payment/execute/PAY1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"paymentID": "PAY1", "transactionStatus": "Completed", "trxID": "T1"})
	})
	mux.HandleFunc("/checkout/payment/query/PAY1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "tok-1", r.Header.Get("authorization"))
		assert.Empty(t, r.Header.Get("Content-Type"))
		_ = json.NewEncoder(w).Encode(map[string]string{"paymentID": "PAY1", "transactionStatus": "Initiated"})
	})
	mux.HandleFunc("/checkout/payment/query/EMPTY", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"paymentID": "EMPTY"})
	})
	mux.HandleFunc("/checkout/payment/execute/BROKEN", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testBkash(url string) *Bkash {
	return NewBkash(BkashConfig{
		BaseURL:     url + "/",
		AppKey:      "app-key",
		AppSecret:   "app-secret",
		Username:    "merchant",
		Password:    "secret",
		CallbackURL: "https://shop.example/api/v1/payments/callback",
	})
}

func TestBkashFlow(t *testing.T) {
	var grants int32
	srv := newBkashServer(t, &grants)
	b := testBkash(srv.URL)
	ctx := context.Background()

	token, err := b.GrantToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	created, err := b.CreatePayment(ctx, token, decimal.RequireFromString("700"), "BDT", "INV0A1B2C3D4E5F")
	require.NoError(t, err)
	assert.Equal(t, "PAY1", created.PaymentID)
	assert.Equal(t, "https://pay.example/PAY1", created.RedirectURL)

	status, err := b.ExecutePayment(ctx, token, "PAY1")
	require.NoError(t, err)
	assert.Equal(t, TransactionCompleted, status)

	_, err = b.GrantToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&grants), "token is cached")
}

func TestBkashErrorsAreProviderErrors(t *testing.T) {
	var grants int32
	srv := newBkashServer(t, &grants)
	ctx := context.Background()

	_, err := testBkash(srv.URL).ExecutePayment(ctx, "tok-1", "BROKEN")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrPaymentProvider))
	var pe *model.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "execute_payment", pe.Op)

	bad := testBkash(srv.URL)
	bad.cfg.Password = "wrong"
	_, err = bad.GrantToken(ctx)
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "grant_token", pe.Op)

	_, err = NewBkash(BkashConfig{}).GrantToken(ctx)
	assert.ErrorIs(t, err, model.ErrPaymentProvider)
}

func TestBkashQueryPayment(t *testing.T) {
	var grants int32
	srv := newBkashServer(t, &grants)
	b := testBkash(srv.URL)
	ctx := context.Background()

	status, err := b.QueryPayment(ctx, "tok-1", "PAY1")
	require.NoError(t, err)
	assert.Equal(t, TransactionInitiated, status)

	_, err = b.QueryPayment(ctx, "tok-1", "EMPTY")
	var pe *model.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "query_payment", pe.Op)
}
