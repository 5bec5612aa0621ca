package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// BkashConfig holds the merchant credentials of a bKash checkout account.
type BkashConfig struct {
	BaseURL     string
	AppKey      string
	AppSecret   string
	Username    string
	Password    string
	CallbackURL string
	Timeout     time.Duration
}

// Bkash talks to the bKash tokenized checkout API.  The id_token is cached
// until shortly before it expires.
type Bkash struct {
	cfg  BkashConfig
	http *http.Client

	mu       sync.Mutex
	token    string
	tokenExp time.Time
	now      func() time.Time
}

const tokenLifetime = 55 * time.Minute

func NewBkash(cfg BkashConfig) *Bkash {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Bkash{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, now: time.Now}
}

func (b *Bkash) Name() string { return "bkash" }

type grantResponse struct {
	IDToken       string `json:"id_token"`
	StatusMessage string `json:"statusMessage"`
}

func (b *Bkash) GrantToken(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.token != "" && b.now().Before(b.tokenExp) {
		return b.token, nil
	}
	body := map[string]string{"app_key": b.cfg.AppKey, "app_secret": b.cfg.AppSecret}
	var out grantResponse
	err := b.post(ctx, "/token/grant", "", body, &out, func(r *http.Request) {
		r.SetBasicAuth(b.cfg.Username, b.cfg.Password)
	})
	if err != nil {
		return "", providerErr("grant_token", err)
	}
	if out.IDToken == "" {
		return "", providerErr("grant_token", fmt.Errorf("no id_token in response: %s", out.StatusMessage))
	}
	b.token, b.tokenExp = out.IDToken, b.now().Add(tokenLifetime)
	return b.token, nil
}

type createResponse struct {
	PaymentID     string `json:"paymentID"`
	BkashURL      string `json:"bkashURL"`
	StatusMessage string `json:"statusMessage"`
}

func (b *Bkash) CreatePayment(ctx context.Context, token string, amount decimal.Decimal, currency, reference string) (Created, error) {
	body := map[string]string{
		"amount":                amount.StringFixed(2),
		"currency":              currency,
		"intent":                "sale",
		"merchantInvoiceNumber": reference,
	}
	if b.cfg.CallbackURL != "" {
		body["callbackURL"] = b.cfg.CallbackURL
	}
	var out createResponse
	if err := b.post(ctx, "/checkout/payment/create", token, body, &out, nil); err != nil {
		return Created{}, providerErr("create_payment", err)
	}
	if out.PaymentID == "" || out.BkashURL == "" {
		return Created{}, providerErr("create_payment", fmt.Errorf("incomplete response: %s", out.StatusMessage))
	}
	return Created{PaymentID: out.PaymentID, RedirectURL: out.BkashURL}, nil
}

type executeResponse struct {
	PaymentID         string `json:"paymentID"`
	TransactionStatus string `json:"transactionStatus"`
	TrxID             string `json:"trxID"`
}

func (b *Bkash) ExecutePayment(ctx context.Context, token, paymentID string) (string, error) {
	var out executeResponse
	if err := b.post(ctx, "/checkout/payment/execute/"+paymentID, token, struct{}{}, &out, nil); err != nil {
		return "", providerErr("execute_payment", err)
	}
	return out.TransactionStatus, nil
}

type queryResponse struct {
	PaymentID         string `json:"paymentID"`
	TransactionStatus string `json:"transactionStatus"`
}

func (b *Bkash) QueryPayment(ctx context.Context, token, paymentID string) (string, error) {
	var out queryResponse
	if err := b.do(ctx, http.MethodGet, "/checkout/payment/query/"+paymentID, token, nil, &out, nil); err != nil {
		return "", providerErr("query_payment", err)
	}
	if out.TransactionStatus == "" {
		return "", providerErr("query_payment", errors.New("no transactionStatus in response"))
	}
	return out.TransactionStatus, nil
}

// post sends a JSON request and decodes a JSON response into out.
func (b *Bkash) post(ctx context.Context, path, token string, in, out any, decorate func(*http.Request)) error {
	return b.do(ctx, http.MethodPost, path, token, in, out, decorate)
}

// do sends a request with an optional JSON body and decodes the JSON
// response into out.
func (b *Bkash) do(ctx context.Context, method, path, token string, in, out any, decorate func(*http.Request)) error {
	if b.cfg.BaseURL == "" {
		return errors.New("payment base url not configured")
	}
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.cfg.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("authorization", token)
		req.Header.Set("x-app-key", b.cfg.AppKey)
	}
	if decorate != nil {
		decorate(req)
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s: http %d", path, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", path, err)
	}
	return nil
}
