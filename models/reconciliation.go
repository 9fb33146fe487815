package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Reconciliation outcome statuses.
const (
	OutcomeCreated = "created"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Skip reasons surfaced in outcomes and audit rows.
const (
	SkipNoExternalOrderID = "missing_external_order_id"
	SkipOrderNotFound     = "order_not_found"
	SkipNoPaypalSplit     = "no_paypal_split"
	SkipNoPaypalAmount    = "no_paypal_transaction"
	SkipAlreadyExists     = "payment_already_exists"
	SkipLocked            = "reconcile_in_progress"
)

// ReconcileOutcome is the structured result of one reconciliation run.
type ReconcileOutcome struct {
	OrderID         int64  `json:"order_id"`
	ExternalOrderID string `json:"external_order_id,omitempty"`
	Status          string `json:"status"`
	Reason          string `json:"reason,omitempty"`
	Message         string `json:"message,omitempty"`
	PaymentID       int64  `json:"payment_id,omitempty"`
	TransactionID   string `json:"transaction_id,omitempty"`
}

// ReconcileRequest is the trigger message delivered over SQS or the HTTP
// trigger endpoint. One order per message.
type ReconcileRequest struct {
	OrderID int64 `json:"order_id" binding:"required"`
}

// ReconcileEvent is published to Kafka (and best-effort to SNS) after every
// run so downstream accounting can follow reconciliation activity.
type ReconcileEvent struct {
	Type            string    `json:"type"` // payment_reconciled, reconcile_skipped, reconcile_failed
	OrderID         int64     `json:"order_id"`
	ExternalOrderID string    `json:"external_order_id,omitempty"`
	PaymentID       int64     `json:"payment_id,omitempty"`
	TransactionID   string    `json:"transaction_id,omitempty"`
	Amount          float64   `json:"amount,omitempty"`
	Currency        string    `json:"currency,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// ReconciliationAttempt is the persisted audit row for one run.
type ReconciliationAttempt struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrderID         int64     `gorm:"index;not null"`
	ExternalOrderID string    `gorm:"type:varchar(64)"`
	Status          string    `gorm:"type:varchar(20);not null"`
	Reason          string    `gorm:"type:varchar(64)"`
	Message         *string   `gorm:"type:text"`
	PaymentID       *int64
	TransactionID   *string        `gorm:"type:varchar(128)"`
	CreatedAt       time.Time      `gorm:"autoCreateTime"`
	DeletedAt       gorm.DeletedAt `gorm:"index"`
}
