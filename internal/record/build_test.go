package record

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/points-exporter/internal/domain"
	"github.com/dvloznov/points-exporter/internal/logger"
	"github.com/dvloznov/points-exporter/internal/reference"
	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func num(s string) domain.Number {
	return domain.NewNumber(decimal.RequireFromString(s))
}

func quietContext() context.Context {
	return logger.WithContext(context.Background(), logger.NewWithWriter(io.Discard))
}

var issuedAt = time.Date(2024, 3, 1, 10, 22, 33, 0, time.UTC)

// scenarioLines is the two line transaction 100 of card " 42 ".
func scenarioLines() []domain.TransactionLine {
	header := domain.TransactionLine{
		TransactionID:    100,
		CardNo:           " 42 ",
		TerminalID:       "T1",
		TransactionDate:  issuedAt,
		TotalTxnValue:    dec("30"),
		StdPointsValue:   dec("50"),
		BonusPointsValue: dec("5"),
		MerchRef:         " M-1 ",
		FormOfPmt:        " CASH ",
		Name:             " Shell Jalan Ampang ",
	}

	first := header
	first.Value, first.GroupCode, first.ProductCode = dec("10"), "7", "101"
	first.Qty, first.StdPts, first.BonusPts = dec("2"), dec("5"), dec("1")

	second := header
	second.Value, second.GroupCode, second.ProductCode = dec("20"), "8", "102"
	second.Qty, second.StdPts, second.BonusPts = dec("1"), dec("3"), dec("0")

	return []domain.TransactionLine{first, second}
}

func scenarioTables() *reference.Tables {
	return &reference.Tables{
		GroupCodes: map[int64]domain.GroupCode{7: {Code: 7, Category: "Fuel"}},
		Contacts:   map[int64]domain.Contact{42: {CardNo: 42, Email: "a@x.com"}},
		Outlets:    map[string]domain.Outlet{},
	}
}

func TestBuild_ConcreteScenario(t *testing.T) {
	got, err := Build(quietContext(), scenarioLines(), scenarioTables(), Options{})
	require.NoError(t, err)

	want := []domain.OutputRecord{{
		CardID:            42,
		User:              domain.User{ID: "a@x.com", Type: "email"},
		Amount:            num("30"),
		Gateway:           domain.Gateway{ID: 1, TransactionID: "100"},
		IssuedAt:          issuedAt,
		MerchantReference: "M-1",
		Partner:           "Shell Jalan Ampang",
		PaymentMode:       "CASH",
		Points:            domain.Points{Standard: num("50"), Bonus: num("5")},
		Products: []domain.Product{
			{Amount: num("10"), CategoryCode: "7", Points: domain.Points{Standard: num("5"), Bonus: num("1")}, ProductCode: 101, Quantity: num("2")},
			{Amount: num("20"), CategoryCode: "8", Points: domain.Points{Standard: num("3"), Bonus: num("0")}, ProductCode: 102, Quantity: num("1")},
		},
		TerminalID: "T1",
		Type:       "issue",
	}}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Build() mismatch (-want +got):\n%s", diff)
	}

	products, err := json.Marshal(got[0].Products)
	require.NoError(t, err)
	assert.Equal(t,
		`[{"amount":10,"categoryCode":"7","points":{"standard":5,"bonus":1},"productCode":101,"quantity":2},`+
			`{"amount":20,"categoryCode":"8","points":{"standard":3,"bonus":0},"productCode":102,"quantity":1}]`,
		string(products))
}

func TestBuild_EmptyBatch(t *testing.T) {
	got, err := Build(quietContext(), nil, scenarioTables(), Options{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBuild_GroupingCompleteness(t *testing.T) {
	ids := []int64{5, 3, 5, 9, 3, 3, 1}
	lines := make([]domain.TransactionLine, len(ids))
	for i, id := range ids {
		lines[i] = domain.TransactionLine{TransactionID: id, CardNo: "1"}
	}

	got, err := Build(quietContext(), lines, nil, Options{})
	require.NoError(t, err)

	var order []string
	for _, r := range got {
		order = append(order, r.Gateway.TransactionID)
	}
	assert.Equal(t, []string{"5", "3", "9", "1"}, order)
	assert.Len(t, got[1].Products, 3)
}

func TestBuild_Idempotent(t *testing.T) {
	encode := func() []byte {
		recs, err := Build(quietContext(), scenarioLines(), scenarioTables(), Options{})
		require.NoError(t, err)
		b, err := json.Marshal(recs)
		require.NoError(t, err)
		return b
	}

	assert.True(t, bytes.Equal(encode(), encode()))
}

func TestBuild_NullFill(t *testing.T) {
	lines := []domain.TransactionLine{{
		TransactionID: 7,
		CardNo:        "9",
		TerminalID:    " UNKNOWN ",
		GroupCode:     "not-a-code",
		ProductCode:   "",
	}}

	got, err := Build(quietContext(), lines, scenarioTables(), Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	r := got[0]
	assert.Equal(t, domain.User{}, r.User)
	assert.True(t, r.Amount.IsZero())
	assert.True(t, r.Points.Standard.IsZero())
	assert.True(t, r.Points.Bonus.IsZero())
	assert.Equal(t, "UNKNOWN", r.TerminalID)
	assert.Equal(t, "", r.Partner)
	assert.Zero(t, r.Latitude)
	assert.Zero(t, r.Longitude)

	require.Len(t, r.Products, 1)
	p := r.Products[0]
	assert.Equal(t, "", p.CategoryCode)
	assert.Equal(t, int64(0), p.ProductCode)
	assert.True(t, p.Amount.IsZero())
	assert.True(t, p.Quantity.IsZero())

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "null")
}

func TestBuild_FractionalCodes(t *testing.T) {
	lines := []domain.TransactionLine{{
		TransactionID: 8,
		CardNo:        "9",
		GroupCode:     "7.5",
		ProductCode:   "101.5",
	}, {
		TransactionID: 8,
		CardNo:        "9",
		GroupCode:     "8.0",
		ProductCode:   "102.0",
	}}

	got, err := Build(quietContext(), lines, scenarioTables(), Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0].Products, 2)

	assert.Equal(t, "7.5", got[0].Products[0].CategoryCode)
	assert.Equal(t, int64(0), got[0].Products[0].ProductCode)
	assert.Equal(t, "8", got[0].Products[1].CategoryCode)
	assert.Equal(t, int64(102), got[0].Products[1].ProductCode)
}

func TestBuild_HeaderConsistency(t *testing.T) {
	tables := scenarioTables()
	tables.Outlets["T1"] = domain.Outlet{TerminalID: "T1", ParticipantName: "Shell KL Sentral", Latitude: 3.13, Longitude: 101.68}

	got, err := Build(quietContext(), scenarioLines(), tables, Options{RecordType: "online"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	r := got[0]
	assert.Equal(t, int64(42), r.CardID)
	assert.True(t, r.Amount.Equal(num("30")))
	assert.Equal(t, issuedAt, r.IssuedAt)
	assert.Equal(t, "M-1", r.MerchantReference)
	assert.Equal(t, "CASH", r.PaymentMode)
	assert.Equal(t, "Shell KL Sentral", r.Partner)
	assert.Equal(t, 3.13, r.Latitude)
	assert.Equal(t, 101.68, r.Longitude)
	assert.Equal(t, "online", r.Type)
}

func TestBuild_UserDerivation(t *testing.T) {
	tests := []struct {
		name    string
		contact *domain.Contact
		want    domain.User
	}{
		{
			name:    "email wins over mobile",
			contact: &domain.Contact{CardNo: 42, Email: "a@x.com", Mobile: "5551234"},
			want:    domain.User{ID: "a@x.com", Type: "email"},
		},
		{
			name:    "mobile only",
			contact: &domain.Contact{CardNo: 42, Mobile: "5551234"},
			want:    domain.User{ID: "5551234", Type: "mobile"},
		},
		{
			name:    "no contact details",
			contact: &domain.Contact{CardNo: 42},
			want:    domain.User{},
		},
		{
			name: "no contact row",
			want: domain.User{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tables := &reference.Tables{Contacts: map[int64]domain.Contact{}}
			if tt.contact != nil {
				tables.Contacts[42] = *tt.contact
			}

			got, err := Build(quietContext(), scenarioLines(), tables, Options{})
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].User)
		})
	}
}

func TestBuild_ProductListShape(t *testing.T) {
	var lines []domain.TransactionLine
	for i, code := range []string{"301", "302", "303"} {
		lines = append(lines, domain.TransactionLine{
			TransactionID: 11,
			CardNo:        "5",
			ProductCode:   code,
			GroupCode:     "4",
			Value:         dec(strings.Repeat("1", i+1)),
			Qty:           dec("1"),
		})
	}

	got, err := Build(quietContext(), lines, nil, Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0].Products, 3)

	for i, want := range []int64{301, 302, 303} {
		assert.Equal(t, want, got[0].Products[i].ProductCode)
	}
	assert.True(t, got[0].Products[2].Amount.Equal(num("111")))

	b, err := json.Marshal(got[0].Products[0])
	require.NoError(t, err)
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &fields))
	assert.Len(t, fields, 5)
}

func TestBuild_FatalPrecondition(t *testing.T) {
	lines := scenarioLines()
	lines = append(lines, domain.TransactionLine{TransactionID: 101, CardNo: "abc"})

	got, err := Build(quietContext(), lines, scenarioTables(), Options{})
	assert.Nil(t, got)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedCardNo))
	assert.True(t, IsPrecondition(err))

	var pe *PreconditionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 2, pe.Row)
	assert.Equal(t, "abc", pe.Value)
}

func TestBuild_DivergentValuesUseMaxAndWarn(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(buf))

	lines := scenarioLines()
	lines[1].StdPointsValue = dec("60")
	lines[1].CardNo = "43"

	tables := scenarioTables()
	tables.Contacts[43] = domain.Contact{CardNo: 43, Mobile: "5551234"}

	got, err := Build(ctx, lines, tables, Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.True(t, got[0].Points.Standard.Equal(num("60")))
	assert.Equal(t, domain.User{ID: "a@x.com", Type: "mobile"}, got[0].User)
	assert.Equal(t, int64(42), got[0].CardID)

	out := buf.String()
	assert.Contains(t, out, "Divergent values within one transaction")
	assert.Contains(t, out, `"transaction_id":100`)
}
