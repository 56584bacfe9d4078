// Package model holds the value types shared across the pipeline.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Rating grades a fare against its historical reference.
type Rating string

const (
	RatingExcellent Rating = "EXCELLENT"
	RatingGood      Rating = "GOOD"
	RatingRegular   Rating = "REGULAR"
	RatingPoor      Rating = "POOR"
)

// Route is the monitored origin-destination pair, IATA coded.
type Route struct {
	Origin      string
	Destination string
}

func (r Route) String() string {
	return r.Origin + "-" + r.Destination
}

// PriceQuote is one normalised fare observation from a source.
type PriceQuote struct {
	Origin      string
	Destination string
	CarrierCode string
	Price       decimal.Decimal
	Currency    string
	ObservedAt  time.Time
	SourceID    string
}

// Offer is a quote scored against the baseline reference.
type Offer struct {
	Quote          PriceQuote
	Rating         Rating
	ReferencePrice decimal.Decimal
	SavingsAmount  decimal.Decimal
	SavingsPercent decimal.Decimal
}

// MilesOption is one program's redemption valued against the cash price.
type MilesOption struct {
	Program       string
	MilesRequired int64
	CashFees      decimal.Decimal
	EffectiveCost decimal.Decimal
	WorthIt       bool
}

// CongestionLevel buckets observed air traffic over the destination.
type CongestionLevel string

const (
	CongestionHigh     CongestionLevel = "high"
	CongestionModerate CongestionLevel = "moderate"
	CongestionLow      CongestionLevel = "low"
	CongestionQuiet    CongestionLevel = "quiet"
)

// TrafficReading is contextual air-traffic data for the destination region.
type TrafficReading struct {
	AircraftCount int
	Congestion    CongestionLevel
	ObservedAt    time.Time
	SourceID      string
}

// SeenRecord marks when an alert fingerprint was last emitted.
type SeenRecord struct {
	Fingerprint string
	LastSeenAt  time.Time
}

// AlertEvent is the full payload of an emitted alert.
type AlertEvent struct {
	ID           uuid.UUID
	Offer        Offer
	MilesOptions []MilesOption
	BestMiles    *MilesOption
	Traffic      *TrafficReading
	DecidedAt    time.Time
}
