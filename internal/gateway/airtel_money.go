package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ugacribs/rentpay/internal/config"
	"github.com/ugacribs/rentpay/internal/models"
)

// airtelMoneyGateway adapts the Airtel Money collections API. Airtel keys
// transactions by our correlation ID (their transaction.id).
type airtelMoneyGateway struct {
	baseURL      string
	clientID     string
	clientSecret string
	client       *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewAirtelMoneyGateway creates an Airtel Money adapter from config.
func NewAirtelMoneyGateway(cfg *config.Config) IGateway {
	return &airtelMoneyGateway{
		baseURL:      cfg.AirtelBaseURL,
		clientID:     cfg.AirtelClientID,
		clientSecret: cfg.AirtelClientSecret,
		client:       &http.Client{Timeout: cfg.GatewayTimeout},
	}
}

func (g *airtelMoneyGateway) Name() models.PaymentGatewayName {
	return models.GatewayAirtelMoney
}

func (g *airtelMoneyGateway) token(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.accessToken != "" && time.Now().Before(g.tokenExpiry.Add(-time.Minute)) {
		return g.accessToken, nil
	}

	payload := map[string]string{
		"client_id":     g.clientID,
		"client_secret": g.clientSecret,
		"grant_type":    "client_credentials",
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/auth/oauth2/token", bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("Airtel token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Airtel token request returned status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode Airtel token response: %w", err)
	}

	g.accessToken = body.AccessToken
	g.tokenExpiry = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	return g.accessToken, nil
}

func (g *airtelMoneyGateway) Initiate(ctx context.Context, r InitiateRequest) (*InitiateResult, error) {
	tok, err := g.token(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"reference": r.Description,
		"subscriber": map[string]string{
			"country":  "UG",
			"currency": r.CurrencyCode,
			"msisdn":   r.PayerHandle,
		},
		"transaction": map[string]interface{}{
			"amount":   r.Amount,
			"country":  "UG",
			"currency": r.CurrencyCode,
			"id":       r.CorrelationID,
		},
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/merchant/v1/payments/", bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("X-Country", "UG")
	req.Header.Set("X-Currency", r.CurrencyCode)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Airtel payment request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Airtel payment request returned status %d", resp.StatusCode)
	}

	var body struct {
		Data struct {
			Transaction struct {
				ID string `json:"id"`
			} `json:"transaction"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode Airtel payment response: %w", err)
	}

	return &InitiateResult{GatewayRef: body.Data.Transaction.ID}, nil
}

// mapAirtelStatus translates Airtel's transaction status codes: TS is
// success, TF is failure, TIP (transaction in progress) and the ambiguous
// codes stay pending.
func mapAirtelStatus(s string) Status {
	switch s {
	case "TS":
		return StatusCompleted
	case "TF":
		return StatusFailed
	default:
		return StatusPending
	}
}

// ParseCallback decodes Airtel's payment webhook.
func (g *airtelMoneyGateway) ParseCallback(body []byte) (string, *StatusResult, error) {
	var cb struct {
		Transaction struct {
			ID            string `json:"id"`
			AirtelMoneyID string `json:"airtel_money_id"`
			StatusCode    string `json:"status_code"`
			Message       string `json:"message"`
		} `json:"transaction"`
	}
	if err := json.Unmarshal(body, &cb); err != nil {
		return "", nil, fmt.Errorf("invalid Airtel callback body: %w", err)
	}
	if cb.Transaction.ID == "" || cb.Transaction.StatusCode == "" {
		return "", nil, fmt.Errorf("Airtel callback missing transaction id or status code")
	}
	result := &StatusResult{
		Status:     mapAirtelStatus(cb.Transaction.StatusCode),
		GatewayRef: cb.Transaction.AirtelMoneyID,
	}
	if result.Status == StatusFailed {
		result.FailureReason = cb.Transaction.Message
	}
	return cb.Transaction.ID, result, nil
}

func (g *airtelMoneyGateway) QueryStatus(ctx context.Context, correlationID string) (*StatusResult, error) {
	tok, err := g.token(ctx)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/standard/v1/payments/%s", g.baseURL, correlationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("X-Country", "UG")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Airtel status query failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Airtel status query returned status %d", resp.StatusCode)
	}

	var body struct {
		Data struct {
			Transaction struct {
				ID            string `json:"id"`
				AirtelMoneyID string `json:"airtel_money_id"`
				Status        string `json:"status"`
				Message       string `json:"message"`
			} `json:"transaction"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode Airtel status response: %w", err)
	}

	txn := body.Data.Transaction
	result := &StatusResult{
		Status:     mapAirtelStatus(txn.Status),
		GatewayRef: txn.AirtelMoneyID,
	}
	if result.Status == StatusFailed {
		result.FailureReason = txn.Message
	}
	return result, nil
}
