package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AHasenkampfHeista/ShopifyPaymentFix-Plugin/models"

	"go.uber.org/zap"
)

// ErrOrderNotFound is returned when Shopify reports no order for the id.
var ErrOrderNotFound = errors.New("shopify order not found")

// ConfigError marks a missing or unusable configuration option. It is
// terminal for the invocation and never retried.
type ConfigError struct {
	Key string
}

func (e *ConfigError) Error() string {
	return "missing or invalid configuration: " + e.Key
}

// ShopifyOrderFetcher resolves an external order id to a normalized
// storefront order.
type ShopifyOrderFetcher interface {
	FetchOrderByExternalID(ctx context.Context, externalOrderID string) (*models.ShopifyOrder, error)
}

// ShopifyClient fetches orders from the Shopify GraphQL Admin API.
type ShopifyClient struct {
	shopName    string
	apiVersion  string
	accessToken string
	baseURL     string // overrides the myshopify.com endpoint in tests
	httpClient  *http.Client
	logger      *zap.Logger
}

func NewShopifyClient(shopName, apiVersion, accessToken string, logger *zap.Logger) *ShopifyClient {
	return &ShopifyClient{
		shopName:    strings.TrimSpace(shopName),
		apiVersion:  strings.TrimSpace(apiVersion),
		accessToken: strings.TrimSpace(accessToken),
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		logger: logger,
	}
}

const orderQuery = `query getOrder($id: ID!) {
  order(id: $id) {
    id
    name
    paymentGatewayNames
    transactions(first: 10) {
      id
      gateway
      kind
      status
      processedAt
      amountSet {
        shopMoney {
          amount
          currencyCode
        }
      }
    }
  }
}`

type graphqlRequest struct {
	Query     string            `json:"query"`
	Variables map[string]string `json:"variables"`
}

type graphqlMoney struct {
	Amount       *string `json:"amount"`
	CurrencyCode *string `json:"currencyCode"`
}

type graphqlTransaction struct {
	ID          string  `json:"id"`
	Gateway     string  `json:"gateway"`
	Kind        string  `json:"kind"`
	Status      string  `json:"status"`
	ProcessedAt *string `json:"processedAt"`
	AmountSet   struct {
		ShopMoney graphqlMoney `json:"shopMoney"`
	} `json:"amountSet"`
}

type graphqlOrder struct {
	ID                  string               `json:"id"`
	Name                string               `json:"name"`
	PaymentGatewayNames []string             `json:"paymentGatewayNames"`
	Transactions        []graphqlTransaction `json:"transactions"`
}

type graphqlResponse struct {
	Data struct {
		Order *graphqlOrder `json:"order"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// FetchOrderByExternalID fetches the order behind a storefront order id and
// normalizes it. Returns ErrOrderNotFound when Shopify has no such order.
func (c *ShopifyClient) FetchOrderByExternalID(ctx context.Context, externalOrderID string) (*models.ShopifyOrder, error) {
	if c.shopName == "" {
		return nil, &ConfigError{Key: "SHOPIFY_SHOP_NAME"}
	}
	if c.apiVersion == "" {
		return nil, &ConfigError{Key: "SHOPIFY_API_VERSION"}
	}
	if c.accessToken == "" {
		return nil, &ConfigError{Key: "SHOPIFY_ACCESS_TOKEN"}
	}

	orderGID, err := FormatShopifyOrderID(externalOrderID)
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL
	if endpoint == "" {
		endpoint = fmt.Sprintf(
			"https://%s.myshopify.com/admin/api/%s/graphql.json",
			c.shopName, c.apiVersion,
		)
	}

	payload, err := json.Marshal(graphqlRequest{
		Query:     orderQuery,
		Variables: map[string]string{"id": orderGID},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shopify request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("shopify responded with status %d", resp.StatusCode)
	}

	var gqlResp graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gqlResp); err != nil {
		return nil, fmt.Errorf("failed to decode shopify response: %w", err)
	}

	if gqlResp.Data.Order == nil {
		if len(gqlResp.Errors) > 0 {
			msgs := make([]string, 0, len(gqlResp.Errors))
			for _, e := range gqlResp.Errors {
				msgs = append(msgs, e.Message)
			}
			return nil, fmt.Errorf("shopify query failed: %s", strings.Join(msgs, "; "))
		}
		c.logger.Warn("Order not returned by Shopify",
			zap.String("external_order_id", externalOrderID),
		)
		return nil, ErrOrderNotFound
	}

	return normalizeShopifyOrder(gqlResp.Data.Order), nil
}

func normalizeShopifyOrder(o *graphqlOrder) *models.ShopifyOrder {
	order := &models.ShopifyOrder{
		ID:                  o.ID,
		Name:                o.Name,
		PaymentGatewayNames: o.PaymentGatewayNames,
		Transactions:        make([]models.ShopifyTransaction, 0, len(o.Transactions)),
	}

	for _, tx := range o.Transactions {
		normalized := models.ShopifyTransaction{
			ID:      tx.ID,
			Gateway: tx.Gateway,
			Kind:    tx.Kind,
			Status:  tx.Status,
		}

		money := tx.AmountSet.ShopMoney
		if money.Amount != nil {
			if amount, err := strconv.ParseFloat(*money.Amount, 64); err == nil {
				normalized.Amount = &amount
			}
		}
		normalized.Currency = money.CurrencyCode

		if tx.ProcessedAt != nil {
			if ts, err := time.Parse(time.RFC3339, *tx.ProcessedAt); err == nil {
				normalized.ProcessedAt = &ts
			}
		}

		order.Transactions = append(order.Transactions, normalized)
	}

	return order
}

const orderGIDPrefix = "gid://shopify/Order/"

// FormatShopifyOrderID turns a stored external order id into the global id
// form the GraphQL API expects. Accepts an already-prefixed gid or any string
// containing the numeric order id.
func FormatShopifyOrderID(externalOrderID string) (string, error) {
	trimmed := strings.TrimSpace(externalOrderID)
	if trimmed == "" {
		return "", fmt.Errorf("empty external order id")
	}

	if len(trimmed) >= len(orderGIDPrefix) &&
		strings.EqualFold(trimmed[:len(orderGIDPrefix)], orderGIDPrefix) {
		return trimmed, nil
	}

	var digits strings.Builder
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return "", fmt.Errorf("external order id %q contains no digits", externalOrderID)
	}

	normalized := strings.TrimLeft(digits.String(), "0")
	if normalized == "" {
		normalized = digits.String()
	}

	return orderGIDPrefix + normalized, nil
}
