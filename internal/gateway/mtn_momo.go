package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ugacribs/rentpay/internal/config"
	"github.com/ugacribs/rentpay/internal/models"
)

// mtnMomoGateway adapts the MTN MoMo Collections API. Collection requests are
// keyed by our correlation ID (MTN's X-Reference-Id), so replaying an
// initiate is rejected by MTN rather than double-debiting the payer.
type mtnMomoGateway struct {
	baseURL         string
	subscriptionKey string
	apiUser         string
	apiKey          string
	targetEnv       string
	client          *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewMTNMoMoGateway creates an MTN MoMo adapter from config.
func NewMTNMoMoGateway(cfg *config.Config) IGateway {
	return &mtnMomoGateway{
		baseURL:         cfg.MtnMomoBaseURL,
		subscriptionKey: cfg.MtnMomoSubscriptionKey,
		apiUser:         cfg.MtnMomoAPIUser,
		apiKey:          cfg.MtnMomoAPIKey,
		targetEnv:       cfg.MtnMomoTargetEnv,
		client:          &http.Client{Timeout: cfg.GatewayTimeout},
	}
}

func (g *mtnMomoGateway) Name() models.PaymentGatewayName {
	return models.GatewayMTNMoMo
}

// token returns a cached collection access token, refreshing it when it is
// within a minute of expiry.
func (g *mtnMomoGateway) token(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.accessToken != "" && time.Now().Before(g.tokenExpiry.Add(-time.Minute)) {
		return g.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/collection/token/", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(g.apiUser, g.apiKey)
	req.Header.Set("Ocp-Apim-Subscription-Key", g.subscriptionKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("MTN MoMo token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("MTN MoMo token request returned status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode MTN MoMo token response: %w", err)
	}

	g.accessToken = body.AccessToken
	g.tokenExpiry = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	return g.accessToken, nil
}

func (g *mtnMomoGateway) Initiate(ctx context.Context, r InitiateRequest) (*InitiateResult, error) {
	tok, err := g.token(ctx)
	if err != nil {
		return nil, err
	}

	// UGX is a zero-decimal currency; minor units are the wire amount.
	payload := map[string]interface{}{
		"amount":     strconv.FormatInt(r.Amount, 10),
		"currency":   r.CurrencyCode,
		"externalId": r.CorrelationID,
		"payer": map[string]string{
			"partyIdType": "MSISDN",
			"partyId":     r.PayerHandle,
		},
		"payerMessage": r.Description,
		"payeeNote":    r.Description,
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/collection/v1_0/requesttopay", bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("X-Reference-Id", r.CorrelationID)
	req.Header.Set("X-Target-Environment", g.targetEnv)
	req.Header.Set("Ocp-Apim-Subscription-Key", g.subscriptionKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("MTN MoMo requesttopay failed: %w", err)
	}
	defer resp.Body.Close()

	// 202 is the only success; 409 means this correlation ID was already
	// submitted, which a retried initiate treats as accepted.
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusConflict {
		return nil, fmt.Errorf("MTN MoMo requesttopay returned status %d", resp.StatusCode)
	}

	// MTN identifies the request by our reference; there is no separate ref.
	return &InitiateResult{GatewayRef: r.CorrelationID}, nil
}

// mapMTNStatus translates MTN's request-to-pay status vocabulary.
func mapMTNStatus(s string) Status {
	switch s {
	case "SUCCESSFUL":
		return StatusCompleted
	case "FAILED":
		return StatusFailed
	default: // PENDING and anything unrecognized stays pending
		return StatusPending
	}
}

// ParseCallback decodes MTN's request-to-pay webhook, which mirrors the
// status query response with the reference in externalId.
func (g *mtnMomoGateway) ParseCallback(body []byte) (string, *StatusResult, error) {
	var cb struct {
		ExternalID             string `json:"externalId"`
		Status                 string `json:"status"`
		Reason                 string `json:"reason"`
		FinancialTransactionID string `json:"financialTransactionId"`
	}
	if err := json.Unmarshal(body, &cb); err != nil {
		return "", nil, fmt.Errorf("invalid MTN MoMo callback body: %w", err)
	}
	if cb.ExternalID == "" || cb.Status == "" {
		return "", nil, fmt.Errorf("MTN MoMo callback missing externalId or status")
	}
	return cb.ExternalID, &StatusResult{
		Status:        mapMTNStatus(cb.Status),
		GatewayRef:    cb.FinancialTransactionID,
		FailureReason: cb.Reason,
	}, nil
}

func (g *mtnMomoGateway) QueryStatus(ctx context.Context, correlationID string) (*StatusResult, error) {
	tok, err := g.token(ctx)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/collection/v1_0/requesttopay/%s", g.baseURL, correlationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("X-Target-Environment", g.targetEnv)
	req.Header.Set("Ocp-Apim-Subscription-Key", g.subscriptionKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("MTN MoMo status query failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("MTN MoMo status query returned status %d", resp.StatusCode)
	}

	var body struct {
		Status                 string `json:"status"`
		Reason                 string `json:"reason"`
		FinancialTransactionID string `json:"financialTransactionId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode MTN MoMo status response: %w", err)
	}

	return &StatusResult{
		Status:        mapMTNStatus(body.Status),
		GatewayRef:    body.FinancialTransactionID,
		FailureReason: body.Reason,
	}, nil
}
