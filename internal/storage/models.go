package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AlertRecord captures an emitted alert for auditing.
type AlertRecord struct {
	ID             int64
	EventID        uuid.UUID
	Origin         string
	Destination    string
	CarrierCode    string
	Price          decimal.Decimal
	Currency       string
	Rating         string
	ReferencePrice decimal.Decimal
	SavingsAmount  decimal.Decimal
	SavingsPercent decimal.Decimal
	BestProgram    *string
	DecidedAt      time.Time
	CreatedAt      time.Time
}
