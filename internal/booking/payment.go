package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/csfest/vendor-booking/internal/fault"
)

// PaymentProvider is the first phase of the payment handshake: given
// an amount in minor units (cents) and the payer identity, it obtains
// an opaque client secret that the payment-entry surface binds to.
// The terminal success or error signal arrives out of band and is fed
// back through Flow.CompletePayment.
type PaymentProvider interface {
	CreateIntent(ctx context.Context, amountMinor int64, name, email string) (clientSecret string, err error)
}

// IntentClient calls the payment backend's create-payment-intent
// endpoint over HTTP. The endpoint contract is the deployed one:
// POST {amount, name, email} -> {clientSecret} or {error}.
type IntentClient struct {
	URL    string
	Client *http.Client
}

// NewIntentClient builds a client with a bounded request timeout.
func NewIntentClient(url string) *IntentClient {
	return &IntentClient{URL: url, Client: &http.Client{Timeout: 15 * time.Second}}
}

// CreateIntent requests a payment intent. Failures are transport
// faults; the flow surfaces them and leaves the form editable.
func (c *IntentClient) CreateIntent(ctx context.Context, amountMinor int64, name, email string) (string, error) {
	if amountMinor <= 0 {
		return "", fault.Wrap(fault.ErrValidation, "amount required")
	}
	body, err := json.Marshal(map[string]interface{}{
		"amount": amountMinor,
		"name":   name,
		"email":  email,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return "", fault.Wrap(fault.ErrTransport, "build intent request")
	}
	req.Header.Set("Content-Type", "application/json")
	// Idempotency key so a retried request cannot double-charge.
	req.Header.Set("Idempotency-Key", uuid.NewString())
	resp, err := c.Client.Do(req)
	if err != nil {
		return "", fault.Wrap(fault.ErrTransport, "create intent: %v", err)
	}
	defer resp.Body.Close()
	var out struct {
		ClientSecret string `json:"clientSecret"`
		Error        string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fault.Wrap(fault.ErrTransport, "decode intent response: %v", err)
	}
	if resp.StatusCode != http.StatusOK || out.ClientSecret == "" {
		return "", fault.Wrap(fault.ErrTransport, "create intent: %s", out.Error)
	}
	return out.ClientSecret, nil
}

// StubProvider issues local client secrets without contacting any
// payment backend. It backs development setups and tests, and is the
// provider of record when no payment URL is configured.
type StubProvider struct{}

// CreateIntent returns a fresh opaque secret.
func (StubProvider) CreateIntent(_ context.Context, amountMinor int64, _, _ string) (string, error) {
	if amountMinor <= 0 {
		return "", fault.Wrap(fault.ErrValidation, "amount required")
	}
	return "cs_test_" + uuid.NewString(), nil
}

// NewTransactionID mints the reference recorded on a reservation when
// a payment succeeds or an admin forces one through.
func NewTransactionID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
