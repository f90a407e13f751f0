package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/dkemp/subcycle-backend/pkg/db/types"
	"github.com/dkemp/subcycle-backend/pkg/enums"
)

// PaymentMethod is a vaulted payment credential for a business. The
// customer_uid is the gateway-issued billing token; at most one method per
// business carries is_default, enforced by the single-transaction swap in the
// payment methods service.
type PaymentMethod struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	BusinessID  string    `gorm:"column:business_id;not null;index"`
	CustomerUID string    `gorm:"column:customer_uid;not null;unique"`
	CardBrand   *string   `gorm:"column:card_brand"`
	CardLast4   *string   `gorm:"column:card_last4"`
	IsDefault   bool      `gorm:"column:is_default;not null;default:false"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentMethod) TableName() string { return "payment_methods" }

func (m *PaymentMethod) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// BillingScheduleEntry is the durable record of one billing cycle. Entries are
// never deleted; the reconciler moves them PENDING -> PAID/FAILED and inserts
// the next cycle's entry on success.
type BillingScheduleEntry struct {
	ID          uuid.UUID           `gorm:"type:uuid;primaryKey"`
	MerchantUID string              `gorm:"column:merchant_uid;not null;unique"`
	BusinessID  string              `gorm:"column:business_id;not null;index"`
	Schedule    time.Time           `gorm:"column:schedule;not null;index"`
	Amount      decimal.Decimal     `gorm:"column:amount;type:numeric(14,2);not null"`
	VAT         decimal.Decimal     `gorm:"column:vat;type:numeric(14,2);not null"`
	BillingPlan enums.BillingPlan   `gorm:"column:billing_plan;not null"`
	Status      enums.PaymentStatus `gorm:"column:status;not null;default:'PENDING';index"`
	Failures    dbtypes.FailureList `gorm:"column:failures;type:jsonb"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (BillingScheduleEntry) TableName() string { return "billing_schedule_entries" }

func (e *BillingScheduleEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// PaymentTransaction is the immutable record of one confirmed charge outcome.
// gateway_tx_id is unique so repeated delivery of the same confirmation cannot
// insert twice.
type PaymentTransaction struct {
	ID          uuid.UUID               `gorm:"type:uuid;primaryKey"`
	BusinessID  string                  `gorm:"column:business_id;not null;index"`
	GatewayTxID string                  `gorm:"column:gateway_tx_id;not null;unique"`
	MerchantUID string                  `gorm:"column:merchant_uid;not null;index"`
	IntentType  enums.PaymentIntentType `gorm:"column:intent_type;not null"`
	Name        string                  `gorm:"column:name;not null"`
	Currency    string                  `gorm:"column:currency;not null"`
	Amount      decimal.Decimal         `gorm:"column:amount;type:numeric(14,2);not null"`
	VAT         decimal.Decimal         `gorm:"column:vat;type:numeric(14,2);not null"`
	CustomerUID string                  `gorm:"column:customer_uid;not null"`
	PayMethod   *string                 `gorm:"column:pay_method"`
	Status      enums.PaymentStatus     `gorm:"column:status;not null"`
	ReceiptURL  *string                 `gorm:"column:receipt_url"`
	ScheduledAt time.Time               `gorm:"column:scheduled_at;not null"`
	PaidAt      *time.Time              `gorm:"column:paid_at"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (PaymentTransaction) TableName() string { return "payment_transactions" }

func (t *PaymentTransaction) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
