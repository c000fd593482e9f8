package record

import (
	"strconv"
	"strings"

	"github.com/dvloznov/points-exporter/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// assemble builds the nested documents of one transaction and projects its
// header onto the output schema.
func assemble(log zerolog.Logger, g *group, recordType string) domain.OutputRecord {
	head := g.lines[0]

	userIDs := make([]string, len(g.lines))
	userTypes := make([]string, len(g.lines))
	stdValues := make([]decimal.Decimal, len(g.lines))
	bonusValues := make([]decimal.Decimal, len(g.lines))
	products := make([]domain.Product, len(g.lines))

	for i, l := range g.lines {
		userIDs[i] = l.userID
		userTypes[i] = l.userType
		stdValues[i] = l.stdPointsValue
		bonusValues[i] = l.bonusPointsValue
		products[i] = domain.Product{
			Amount:       domain.NewNumber(l.value),
			CategoryCode: l.categoryCode,
			Points: domain.Points{
				Standard: domain.NewNumber(l.stdPts),
				Bonus:    domain.NewNumber(l.bonusPts),
			},
			ProductCode: l.productCode,
			Quantity:    domain.NewNumber(l.qty),
		}
	}

	rec := domain.OutputRecord{
		CardID: head.cardID,
		User: domain.User{
			ID:   maxString(userIDs),
			Type: maxString(userTypes),
		},
		Amount: domain.OrZero(head.src.TotalTxnValue),
		Gateway: domain.Gateway{
			ID:            GatewayID,
			TransactionID: strconv.FormatInt(g.transactionID, 10),
		},
		IssuedAt:          head.src.TransactionDate,
		MerchantReference: strings.TrimSpace(head.src.MerchRef),
		Partner:           partner(head),
		PaymentMode:       strings.TrimSpace(head.src.FormOfPmt),
		Points: domain.Points{
			Standard: domain.NewNumber(decimal.Max(stdValues[0], stdValues[1:]...)),
			Bonus:    domain.NewNumber(decimal.Max(bonusValues[0], bonusValues[1:]...)),
		},
		Products:   products,
		TerminalID: head.terminalID,
		Type:       recordType,
	}
	if head.outletFound {
		rec.Latitude = head.outlet.Latitude
		rec.Longitude = head.outlet.Longitude
	}

	reportAnomalies(log, g, userIDs, stdValues, bonusValues)

	return rec
}

// partner prefers the participant name of the joined outlet and falls back to
// the name carried on the transaction header.
func partner(l *line) string {
	if l.outletFound && l.outlet.ParticipantName != "" {
		return strings.TrimSpace(l.outlet.ParticipantName)
	}
	return strings.TrimSpace(l.src.Name)
}

// maxString returns the lexicographically greatest value, or "" for none.
func maxString(values []string) string {
	var m string
	for _, v := range values {
		if v > m {
			m = v
		}
	}
	return m
}

// reportAnomalies logs values that should be constant within a transaction
// but are not. The max reduction above still decides the output.
func reportAnomalies(log zerolog.Logger, g *group, userIDs []string, std, bonus []decimal.Decimal) {
	if len(g.lines) < 2 {
		return
	}

	var fields []string
	if distinctStrings(userIDs) {
		fields = append(fields, "user")
	}
	if distinctDecimals(std) || distinctDecimals(bonus) {
		fields = append(fields, "points")
	}
	if headerDiverges(g) {
		fields = append(fields, "header")
	}
	if len(fields) == 0 {
		return
	}

	log.Warn().
		Int64("transaction_id", g.transactionID).
		Int("lines", len(g.lines)).
		Strs("fields", fields).
		Msg("Divergent values within one transaction")
}

func distinctStrings(values []string) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return true
		}
	}
	return false
}

func distinctDecimals(values []decimal.Decimal) bool {
	for _, v := range values[1:] {
		if !v.Equal(values[0]) {
			return true
		}
	}
	return false
}

func headerDiverges(g *group) bool {
	head := g.lines[0]
	headAmount := domain.OrZero(head.src.TotalTxnValue)
	for _, l := range g.lines[1:] {
		switch {
		case l.cardID != head.cardID,
			l.terminalID != head.terminalID,
			!l.src.TransactionDate.Equal(head.src.TransactionDate),
			!domain.OrZero(l.src.TotalTxnValue).Equal(headAmount),
			strings.TrimSpace(l.src.MerchRef) != strings.TrimSpace(head.src.MerchRef),
			strings.TrimSpace(l.src.FormOfPmt) != strings.TrimSpace(head.src.FormOfPmt):
			return true
		}
	}
	return false
}
