package payment

import "time"

type Kind string

const (
	KindPurchase Kind = "purchase"
	KindSpend    Kind = "spend"
	KindRefund   Kind = "refund"
)

type Transaction struct {
	ID              string    `json:"id" gorm:"primaryKey;type:uuid"`
	CreatedAt       time.Time `json:"created_at"`
	UserID          string    `json:"user_id"`
	Amount          int       `json:"amount"`
	Kind            Kind      `json:"kind"`
	PackageID       string    `json:"package_id"`
	StripeSessionID *string   `json:"-"`
}

func (Transaction) TableName() string {
	return "coin_transactions"
}
