package models

import "time"

// ShopifyOrder is the normalized shape of a storefront order as returned by
// the Shopify GraphQL Admin API. Only the fields the reconciler needs are
// carried over.
type ShopifyOrder struct {
	ID                  string               `json:"id"`
	Name                string               `json:"name"`
	PaymentGatewayNames []string             `json:"payment_gateway_names"`
	Transactions        []ShopifyTransaction `json:"transactions"`
}

// ShopifyTransaction is a single payment transaction on a storefront order.
// Amount and Currency are pointers because refund/authorization entries may
// lack settlement money.
type ShopifyTransaction struct {
	ID          string     `json:"id"`
	Gateway     string     `json:"gateway"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	Amount      *float64   `json:"amount"`
	Currency    *string    `json:"currency"`
	ProcessedAt *time.Time `json:"processed_at"`
}
