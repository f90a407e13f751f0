package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dkemp/subcycle-backend/pkg/config"
	pkgerrors "github.com/dkemp/subcycle-backend/pkg/errors"
	"github.com/dkemp/subcycle-backend/pkg/logger"
)

var (
	errBaseURLRequired   = errors.New("gateway base url is required")
	errAPIKeyRequired    = errors.New("gateway api key is required")
	errAPISecretRequired = errors.New("gateway api secret is required")
	errLoggerRequired    = errors.New("gateway logger is required")
)

// Client wraps the payment gateway's billing-key API with centralized auth,
// logging, and error mapping.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	apiSecret  string
	logger     *logger.Logger
}

// NewClient validates the credentials and returns the gateway wrapper.
func NewClient(ctx context.Context, cfg config.GatewayConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("gateway base url is invalid: %w", err)
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	apiSecret := strings.TrimSpace(cfg.APISecret)
	if apiSecret == "" {
		return nil, errAPISecretRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		logger:     logg,
	}

	logg.Info(ctx, "gateway client initialized")
	return c, nil
}

// Charge runs a stored-credential payment against the customer's billing key.
// The structured metadata rides the gateway's custom_data field and comes back
// verbatim in the result.
func (c *Client) Charge(ctx context.Context, params ChargeParams) (*ChargeResult, error) {
	customData, err := params.Metadata.Encode()
	if err != nil {
		return nil, err
	}

	req := chargeRequest{
		MerchantUID:      params.MerchantUID,
		CustomerUID:      params.CustomerUID,
		Name:             params.Name,
		Amount:           params.Amount,
		CancelableAmount: params.CancelableAmount,
		VAT:              params.VAT,
		CustomData:       customData,
	}
	c.log(ctx, "request", "charge", map[string]any{
		"merchant_uid": params.MerchantUID,
		"customer_uid": params.CustomerUID,
		"amount":       params.Amount.String(),
	})

	var result ChargeResult
	if err := c.do(ctx, http.MethodPost, "/subscribe/payments/again", req, &result); err != nil {
		c.log(ctx, "error", "charge", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "charge", map[string]any{
		"merchant_uid":  result.MerchantUID,
		"gateway_tx_id": result.GatewayTxID,
		"status":        string(result.Status),
	})
	return &result, nil
}

// IssueBillingKey exchanges a one-time card token for a reusable billing key
// bound to the customer uid.
func (c *Client) IssueBillingKey(ctx context.Context, params IssueBillingKeyParams) (*BillingKey, error) {
	req := issueBillingKeyRequest{
		CustomerUID: params.CustomerUID,
		CardToken:   params.CardToken,
	}
	c.log(ctx, "request", "issue_billing_key", map[string]any{"customer_uid": params.CustomerUID})

	var key BillingKey
	if err := c.do(ctx, http.MethodPost, "/subscribe/customers/"+url.PathEscape(params.CustomerUID), req, &key); err != nil {
		c.log(ctx, "error", "issue_billing_key", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "issue_billing_key", map[string]any{"customer_uid": key.CustomerUID})
	return &key, nil
}

// DeleteBillingKey removes the stored credential from the gateway.
func (c *Client) DeleteBillingKey(ctx context.Context, customerUID string) error {
	c.log(ctx, "request", "delete_billing_key", map[string]any{"customer_uid": customerUID})

	if err := c.do(ctx, http.MethodDelete, "/subscribe/customers/"+url.PathEscape(customerUID), nil, nil); err != nil {
		c.log(ctx, "error", "delete_billing_key", map[string]any{"error": err.Error()})
		return err
	}

	c.log(ctx, "response", "delete_billing_key", map[string]any{"customer_uid": customerUID})
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode gateway request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build gateway request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.apiKey, c.apiSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "gateway request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read gateway response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.mapGatewayError(resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode gateway response")
	}
	return nil
}

func (c *Client) mapGatewayError(status int, raw []byte) error {
	message := "gateway call failed"
	var payload struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Message != "" {
		message = payload.Message
	}
	return pkgerrors.New(domainCodeForStatus(status), fmt.Sprintf("%s (status %d)", message, status)).
		WithDetails(map[string]any{"gateway_code": payload.Code, "http_status": status})
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusUnprocessableEntity:
		return pkgerrors.CodeStateConflict
	case http.StatusBadRequest:
		return pkgerrors.CodeValidation
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeDependency
	}
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("gateway %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("gateway %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"card", "token", "cvv", "secret", "birth", "pwd"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}
