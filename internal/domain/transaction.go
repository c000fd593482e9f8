package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// TransactionLine is one product line of a loyalty transaction as returned by
// the header/detail join. Header fields repeat identically on every line of
// the same transaction.
// This is a domain struct, not a BigQuery row; the warehouse package maps its
// row type into it.
type TransactionLine struct {
	PartitionDate civil.Date
	TransactionID int64

	CardNo     string // raw card number, trimmed and parsed by the record builder
	TerminalID string // raw terminal id, trimmed before the outlet join

	TransactionDate  time.Time
	TotalTxnValue    decimal.NullDecimal
	StdPointsValue   decimal.NullDecimal
	BonusPointsValue decimal.NullDecimal

	Source      string
	MerchRef    string
	StatementID string
	Name        string // participant name carried on the header
	CardType    string
	FormOfPmt   string
	TxTypeCode  string

	// Detail columns are NULL when the header has no detail row.
	ProductCode string
	GroupCode   string
	Qty         decimal.NullDecimal
	Value       decimal.NullDecimal
	StdPts      decimal.NullDecimal
	BonusPts    decimal.NullDecimal
}

// NewMemberTransaction is the first qualifying transaction of a newly
// registered member, as selected by the warehouse.
type NewMemberTransaction struct {
	TransactionID    int64
	CardNo           string
	TotalTxnValue    decimal.NullDecimal
	TransactionDate  time.Time
	RegistrationDate time.Time
	AppInstallDate   time.Time
	AppDayDiff       int64
	MemberDayDiff    int64
	Mobile           string
	MobileOriginal   string
	Name             string
	Email            string
	PartitionDate    civil.Date
}
