package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AHasenkampfHeista/ShopifyPaymentFix-Plugin/models"

	"go.uber.org/zap"
)

// WriteGrant represents the elevated permission under which payment writes
// run. Triggers mint one explicitly per invocation; there is no ambient
// privileged mode the service can flip on.
type WriteGrant struct {
	Reason string
}

// OMSGateway is the order-management system collaborator contract: order and
// payment reads plus the two write operations the committer needs.
type OMSGateway interface {
	GetOrder(ctx context.Context, orderID int64) (*models.Order, error)
	ListPaymentsByOrder(ctx context.Context, orderID int64) ([]models.Payment, error)
	CreatePayment(ctx context.Context, grant WriteGrant, draft *models.PaymentDraft) (*models.Payment, error)
	LinkPaymentToOrder(ctx context.Context, grant WriteGrant, paymentID, orderID int64, primary bool) error
}

// OMSClient talks to the order-management REST API.
type OMSClient struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewOMSClient(baseURL, apiToken string, logger *zap.Logger) *OMSClient {
	return &OMSClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		logger: logger,
	}
}

// GetOrder fetches an order including its properties and currency amounts.
func (c *OMSClient) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	url := fmt.Sprintf("%s/rest/orders/%d", c.baseURL, orderID)

	var order models.Order
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &order); err != nil {
		return nil, fmt.Errorf("failed to fetch order %d: %w", orderID, err)
	}
	return &order, nil
}

// ListPaymentsByOrder returns all payments attached to an order. Payment
// properties arrive from the OMS in more than one shape; they are normalized
// here so downstream code only ever sees models.Payment.
func (c *OMSClient) ListPaymentsByOrder(ctx context.Context, orderID int64) ([]models.Payment, error) {
	url := fmt.Sprintf("%s/rest/payments/orders/%d", c.baseURL, orderID)

	var envelopes []paymentEnvelope
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &envelopes); err != nil {
		return nil, fmt.Errorf("failed to list payments for order %d: %w", orderID, err)
	}

	payments := make([]models.Payment, 0, len(envelopes))
	for _, e := range envelopes {
		payments = append(payments, e.toPayment())
	}
	return payments, nil
}

// CreatePayment submits a payment draft and returns the committed payment.
func (c *OMSClient) CreatePayment(ctx context.Context, grant WriteGrant, draft *models.PaymentDraft) (*models.Payment, error) {
	url := fmt.Sprintf("%s/rest/payments", c.baseURL)

	body, err := json.Marshal(draft)
	if err != nil {
		return nil, err
	}

	var payment models.Payment
	if err := c.doJSON(ctx, http.MethodPost, url, bytes.NewReader(body), &payment); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	c.logger.Debug("Payment created",
		zap.Int64("payment_id", payment.ID),
		zap.String("write_grant", grant.Reason),
	)
	return &payment, nil
}

// LinkPaymentToOrder creates the order-payment relation. Primary marks it as
// the authoritative relation for the order.
func (c *OMSClient) LinkPaymentToOrder(ctx context.Context, grant WriteGrant, paymentID, orderID int64, primary bool) error {
	url := fmt.Sprintf("%s/rest/payments/%d/orders/%d", c.baseURL, paymentID, orderID)

	body, err := json.Marshal(map[string]bool{"primary": primary})
	if err != nil {
		return err
	}

	if err := c.doJSON(ctx, http.MethodPost, url, bytes.NewReader(body), nil); err != nil {
		return fmt.Errorf("failed to link payment %d to order %d: %w", paymentID, orderID, err)
	}

	c.logger.Debug("Payment linked to order",
		zap.Int64("payment_id", paymentID),
		zap.Int64("order_id", orderID),
		zap.String("write_grant", grant.Reason),
	)
	return nil
}

func (c *OMSClient) doJSON(ctx context.Context, method, url string, body *bytes.Reader, out interface{}) error {
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, url, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, url, nil)
	}
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("oms request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if msg := errResp["error"]; msg != "" {
			return fmt.Errorf("oms returned %d: %s", resp.StatusCode, msg)
		}
		return fmt.Errorf("oms returned %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// paymentEnvelope tolerates the two property encodings the OMS emits:
// a structured list ([{"typeId":1,"value":"x"}], with typeId occasionally a
// string) and a flat typeId-to-value map ({"1":"x"}).
type paymentEnvelope struct {
	ID         int64          `json:"id"`
	MopID      flexInt        `json:"mopId"`
	Amount     float64        `json:"amount"`
	Currency   string         `json:"currency"`
	Properties flexProperties `json:"properties"`
}

func (e paymentEnvelope) toPayment() models.Payment {
	return models.Payment{
		ID:         e.ID,
		MopID:      int(e.MopID),
		Amount:     e.Amount,
		Currency:   e.Currency,
		Properties: e.Properties,
	}
}

type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("cannot parse %q as int", s)
	}
	*f = flexInt(n)
	return nil
}

type flexProperties []models.PaymentProperty

func (p *flexProperties) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		*p = nil
		return nil
	}

	if trimmed[0] == '[' {
		var raw []struct {
			TypeID flexInt         `json:"typeId"`
			Value  json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		props := make([]models.PaymentProperty, 0, len(raw))
		for _, r := range raw {
			props = append(props, models.PaymentProperty{
				TypeID: int(r.TypeID),
				Value:  rawToString(r.Value),
			})
		}
		*p = props
		return nil
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return err
	}
	props := make([]models.PaymentProperty, 0, len(m))
	for k, v := range m {
		typeID, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		props = append(props, models.PaymentProperty{
			TypeID: typeID,
			Value:  rawToString(v),
		})
	}
	sort.Slice(props, func(i, j int) bool { return props[i].TypeID < props[j].TypeID })
	*p = props
	return nil
}

func rawToString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.Trim(string(raw), `"`)
}
