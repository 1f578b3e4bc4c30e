package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"tripbot/models"

	"go.uber.org/zap"
)

// Gateway is one mobile-money processor. An empty API URL puts the
// gateway in mock mode, where initiations succeed immediately and
// status checks report completion, so payment flows run end to end
// without gateway credentials.
type Gateway interface {
	// Name returns the payment method this gateway serves.
	Name() string
	// Initiate opens a payment for the booking reference.
	Initiate(ctx context.Context, amount float64, userID int64, bookingRef, phone string) (*models.PaymentInit, error)
	// Status asks the gateway for the transaction state, normalized to
	// an intent status (pending, succeeded or failed).
	Status(ctx context.Context, gatewayRef string) (string, error)
	// VerifyCallback checks a webhook payload's signature.
	VerifyCallback(payload map[string]string, signature string) bool
}

// HTTPGateway implements Gateway against the processors' HTTP APIs.
// TeleBirr and CBE Birr share the request shape; they differ in the
// initiate path, the ref prefix and what the user is told to do next.
type HTTPGateway struct {
	method       string
	refPrefix    string
	initiatePath string
	mockPayURL   string
	mockMessage  string
	mockExtra    map[string]string

	BaseURL    string
	APIKey     string
	Secret     string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// NewTeleBirrGateway builds the TeleBirr gateway.
func NewTeleBirrGateway(baseURL, apiKey, secret string, logger *zap.Logger) *HTTPGateway {
	return &HTTPGateway{
		method:       models.MethodTeleBirr,
		refPrefix:    "TB_",
		initiatePath: "payment/initiate",
		mockPayURL:   "https://telebirr.com/pay?ref=",
		mockMessage:  "Please complete payment via TeleBirr app",
		mockExtra:    map[string]string{"qr_code": "mock_qr_code_data"},
		BaseURL:      strings.TrimRight(baseURL, "/"),
		APIKey:       apiKey,
		Secret:       secret,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		Logger:       logger,
	}
}

// NewCBEBirrGateway builds the CBE Birr gateway.
func NewCBEBirrGateway(baseURL, apiKey, secret string, logger *zap.Logger) *HTTPGateway {
	return &HTTPGateway{
		method:       models.MethodCBEBirr,
		refPrefix:    "CBE_",
		initiatePath: "payment/create",
		mockPayURL:   "https://cbebirr.et/pay?ref=",
		mockMessage:  "Please transfer to account 1000123456789",
		BaseURL:      strings.TrimRight(baseURL, "/"),
		APIKey:       apiKey,
		Secret:       secret,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		Logger:       logger,
	}
}

// Name returns the payment method this gateway serves.
func (g *HTTPGateway) Name() string {
	return g.method
}

func (g *HTTPGateway) mockMode() bool {
	return g.BaseURL == ""
}

type initiateResponse struct {
	Success       bool   `json:"success"`
	Error         string `json:"error"`
	TransactionID string `json:"transaction_id"`
	PaymentURL    string `json:"payment_url"`
	Message       string `json:"message"`
}

type statusResponse struct {
	Success       bool   `json:"success"`
	Error         string `json:"error"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

// Initiate opens a payment for the booking reference.
func (g *HTTPGateway) Initiate(ctx context.Context, amount float64, userID int64, bookingRef, phone string) (*models.PaymentInit, error) {
	if g.mockMode() {
		return &models.PaymentInit{
			GatewayRef:   g.refPrefix + bookingRef,
			PaymentURL:   g.mockPayURL + bookingRef,
			Instructions: g.mockMessage,
		}, nil
	}

	payload := map[string]string{
		"api_key":   g.APIKey,
		"amount":    strconv.FormatFloat(amount, 'f', 2, 64),
		"currency":  "ETB",
		"reference": bookingRef,
		"user_id":   strconv.FormatInt(userID, 10),
	}
	if g.method == models.MethodTeleBirr {
		payload["phone"] = phone
	}
	payload["signature"] = g.Sign(payload)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &GatewayError{Gateway: g.method, Op: "initiate", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/"+g.initiatePath, bytes.NewReader(body))
	if err != nil {
		return nil, &GatewayError{Gateway: g.method, Op: "initiate", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	var out initiateResponse
	if err := g.do(req, "initiate", &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, &GatewayError{Gateway: g.method, Op: "initiate", Err: fmt.Errorf("gateway rejected payment: %s", out.Error)}
	}

	return &models.PaymentInit{
		GatewayRef:   out.TransactionID,
		PaymentURL:   out.PaymentURL,
		Instructions: out.Message,
	}, nil
}

// Status asks the gateway for the transaction state.
func (g *HTTPGateway) Status(ctx context.Context, gatewayRef string) (string, error) {
	if g.mockMode() {
		return models.IntentSucceeded, nil
	}

	url := fmt.Sprintf("%s/payment/status/%s", g.BaseURL, gatewayRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &GatewayError{Gateway: g.method, Op: "status", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+g.APIKey)

	var out statusResponse
	if err := g.do(req, "status", &out); err != nil {
		return "", err
	}
	if !out.Success {
		return "", &GatewayError{Gateway: g.method, Op: "status", Err: fmt.Errorf("gateway error: %s", out.Error)}
	}
	return NormalizeStatus(out.Status), nil
}

func (g *HTTPGateway) do(req *http.Request, op string, out any) error {
	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return &GatewayError{Gateway: g.method, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &GatewayError{Gateway: g.method, Op: op, Err: fmt.Errorf("gateway returned status %d", resp.StatusCode)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &GatewayError{Gateway: g.method, Op: op, Err: fmt.Errorf("decoding response failed: %w", err)}
	}
	return nil
}

// Sign hashes the payload values sorted by key, wrapped in the secret.
// The gateways sign their callbacks the same way.
func (g *HTTPGateway) Sign(payload map[string]string) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		if k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(g.Secret)
	for _, k := range keys {
		b.WriteString(payload[k])
	}
	b.WriteString(g.Secret)

	sum := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", sum)
}

// VerifyCallback checks a webhook payload's signature.
func (g *HTTPGateway) VerifyCallback(payload map[string]string, signature string) bool {
	expected := g.Sign(payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// NormalizeStatus maps a gateway status string to an intent status.
func NormalizeStatus(s string) string {
	switch strings.ToLower(s) {
	case "completed", "succeeded", "success":
		return models.IntentSucceeded
	case "failed", "cancelled", "declined":
		return models.IntentFailed
	default:
		return models.IntentPending
	}
}
