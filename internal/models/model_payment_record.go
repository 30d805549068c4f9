package models

import (
	"time"

	"github.com/fatflowers/billing/pkg/types"
)

// PaymentRecord is one row of the append-mostly payment ledger. ExternalInvoiceID is
// the idempotency key; after creation only Status changes.
type PaymentRecord struct {
	ID                string              `gorm:"column:id;type:uuid;primary_key" json:"id"`
	ExternalInvoiceID string              `gorm:"column:external_invoice_id;type:varchar(128);not null;uniqueIndex" json:"external_invoice_id"`
	CompanyID         string              `gorm:"column:company_id;type:varchar(64);not null;index:idx_payment_company_recorded,priority:1" json:"company_id"`
	SubscriptionID    string              `gorm:"column:subscription_id;type:uuid;not null" json:"subscription_id"`
	Amount            int64               `gorm:"column:amount;type:bigint;not null" json:"amount"`
	Status            types.PaymentStatus `gorm:"column:status;type:varchar(16);not null" json:"status"`
	// Processor references, kept as received for audit even if the subscription relinks later.
	ExternalPaymentIntentID *string    `gorm:"column:external_payment_intent_id;type:varchar(128)" json:"external_payment_intent_id"`
	ExternalChargeID        *string    `gorm:"column:external_charge_id;type:varchar(128)" json:"external_charge_id"`
	ExternalCustomerID      *string    `gorm:"column:external_customer_id;type:varchar(128)" json:"external_customer_id"`
	ExternalSubscriptionID  *string    `gorm:"column:external_subscription_id;type:varchar(128)" json:"external_subscription_id"`
	PeriodStart             *time.Time `gorm:"column:period_start;default:null" json:"period_start"`
	PeriodEnd               *time.Time `gorm:"column:period_end;default:null" json:"period_end"`
	Description             string     `gorm:"column:description;type:text" json:"description"`
	InvoiceNumber           string     `gorm:"column:invoice_number;type:varchar(64)" json:"invoice_number"`
	RecordedAt              time.Time  `gorm:"column:recorded_at;not null;index:idx_payment_company_recorded,priority:2,sort:desc" json:"recorded_at"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

func (PaymentRecord) TableName() string {
	return "payment_record"
}
