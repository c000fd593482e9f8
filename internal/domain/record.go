package domain

import (
	"time"
)

// OutputRecord is one exported transaction. Field order is the export column
// order.
type OutputRecord struct {
	CardID            int64     `json:"cardId"`
	User              User      `json:"user"`
	Amount            Number    `json:"amount"`
	Gateway           Gateway   `json:"gateway"`
	IssuedAt          time.Time `json:"issuedAt"`
	MerchantReference string    `json:"merchantReference"`
	Partner           string    `json:"partner"`
	PaymentMode       string    `json:"paymentMode"`
	Points            Points    `json:"points"`
	Products          []Product `json:"products"`
	TerminalID        string    `json:"terminalId"`
	Type              string    `json:"type"`
	Latitude          float64   `json:"latitude"`
	Longitude         float64   `json:"longitude"`
}

// User identifies the member behind a transaction by email or mobile.
type User struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// User types.
const (
	UserTypeEmail  = "email"
	UserTypeMobile = "mobile"
)

// Points is a standard/bonus pair.
type Points struct {
	Standard Number `json:"standard"`
	Bonus    Number `json:"bonus"`
}

// Product is one line item of a transaction.
type Product struct {
	Amount       Number `json:"amount"`
	CategoryCode string `json:"categoryCode"`
	Points       Points `json:"points"`
	ProductCode  int64  `json:"productCode"`
	Quantity     Number `json:"quantity"`
}

// Gateway tags the provenance of a record.
type Gateway struct {
	ID            int    `json:"id"`
	TransactionID string `json:"transactionId"`
}
