package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

type DistributionStatus string

const (
	DistributionStatusCalculated DistributionStatus = "CALCULATED"
	DistributionStatusCompleted  DistributionStatus = "COMPLETED"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
)

// ProfitRecord is the pool a distribution run splits.
type ProfitRecord struct {
	ID                  string
	CompanyID           string
	Period              string
	DistributableAmount decimal.Decimal
	CreatedAt           time.Time
}

type Distribution struct {
	ID              string
	CompanyID       string
	ProfitID        string
	TotalAmount     decimal.Decimal
	TotalCalculated decimal.Decimal
	Status          DistributionStatus
	CalculatedAt    time.Time
}

type MemberDistribution struct {
	ID             string
	DistributionID string
	MemberID       string
	Percentage     decimal.Decimal
	Amount         decimal.Decimal
	TaxWithholding decimal.Decimal
	NetAmount      decimal.Decimal
	PaymentStatus  PaymentStatus
	PaidAt         *time.Time
}

// MemberStake is the slice of the current equity table a calculation runs
// against: an ACTIVE member with a positive percentage and its withholding
// rate.
type MemberStake struct {
	MemberID   string
	Percentage decimal.Decimal
	TaxRate    decimal.Decimal
}
