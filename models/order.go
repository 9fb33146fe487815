package models

// Property type ids used by the order-management system.
const (
	PropertyTypeTransactionID   = 1
	PropertyTypePaymentNote     = 22
	PropertyTypePaymentOrigin   = 23
	PropertyTypeExternalOrderID = 7
)

// Payment type/status codes on the order-management side.
const (
	PaymentTypeBooked     = 2
	PaymentStatusApproved = 2
)

// Order is an order-management order as read from the OMS REST API.
type Order struct {
	ID         int64           `json:"id"`
	Properties []OrderProperty `json:"properties"`
	Amounts    []OrderAmount   `json:"amounts"`
}

// OrderProperty is a generic typeId/value extension field on an order.
type OrderProperty struct {
	TypeID int    `json:"typeId"`
	Value  string `json:"value"`
}

// OrderAmount is one recorded currency total on an order. ExchangeRate is nil
// when the OMS did not store a conversion rate for the entry.
type OrderAmount struct {
	Currency         string   `json:"currency"`
	ExchangeRate     *float64 `json:"exchangeRate"`
	IsSystemCurrency bool     `json:"isSystemCurrency"`
}

// ExternalOrderID returns the storefront order id stored as an order property
// of type PropertyTypeExternalOrderID, or "" when the order carries none.
func (o *Order) ExternalOrderID() string {
	for _, p := range o.Properties {
		if p.TypeID == PropertyTypeExternalOrderID {
			return p.Value
		}
	}
	return ""
}

// Payment is an existing payment record on an order-management order,
// normalized at the OMS client boundary into this single shape.
type Payment struct {
	ID         int64             `json:"id"`
	MopID      int               `json:"mopId"`
	Amount     float64           `json:"amount"`
	Currency   string            `json:"currency"`
	Properties []PaymentProperty `json:"properties"`
}

// PaymentProperty is a generic typeId/value extension field on a payment.
type PaymentProperty struct {
	TypeID int    `json:"typeId"`
	Value  string `json:"value"`
}

// PaymentDraft is the payload submitted to the OMS to create a new payment.
type PaymentDraft struct {
	MopID           int               `json:"mopId"`
	Type            int               `json:"type"`
	Status          int               `json:"status"`
	Amount          float64           `json:"amount"`
	Currency        string            `json:"currency"`
	ExchangeRate    float64           `json:"exchangeRate"`
	IsSystemPayment bool              `json:"isSystemPayment"`
	ReceivedAt      string            `json:"receivedAt"`
	Properties      []PaymentProperty `json:"properties"`
	RegenerateHash  bool              `json:"regenerateHash"`
}
