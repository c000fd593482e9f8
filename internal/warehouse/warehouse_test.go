package warehouse

import (
	"bufio"
	"bytes"
	"math/big"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/points-exporter/internal/config"
	"github.com/dvloznov/points-exporter/internal/domain"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTables() tablesConfig {
	cfg := config.Default().Warehouse
	cfg.ExcludedTerminals = []string{"SHVPTS01", "SHVPTS02"}
	return tablesFrom(cfg)
}

func paramNames(params []bigquery.QueryParameter) []string {
	names := make([]string, 0, len(params))
	for _, p := range params {
		names = append(names, p.Name)
	}
	return names
}

func TestTableRef(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "dataset.table", in: "base_layer.ods_tx_txn_df", want: "`base_layer.ods_tx_txn_df`"},
		{name: "project.dataset.table", in: "blink-data-warehouse.base_layer._Shell_ref_groupcode", want: "`blink-data-warehouse.base_layer._Shell_ref_groupcode`"},
		{name: "bare table", in: "transactions", wantErr: true},
		{name: "injection", in: "a.b` WHERE 1=1 --", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tableRef(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildLineQuery(t *testing.T) {
	date := civil.Date{Year: 2024, Month: 3, Day: 1}
	stmt, err := buildLineQuery(testTables(), LineQuery{PartitionDate: date, MinID: 100, MaxID: 200})
	require.NoError(t, err)

	assert.Contains(t, stmt.SQL, "FROM `base_layer.ods_tx_txn_df` ods")
	assert.Contains(t, stmt.SQL, "LEFT JOIN `base_layer.etl_tx_txn_detail` dt")
	assert.Contains(t, stmt.SQL, "ods.transaction_id < @max_id")
	assert.Contains(t, stmt.SQL, "ORDER BY ods.transaction_id, product_code, group_code, qty, value, std_pts, bonus_pts")
	assert.Equal(t, []string{"partition_date", "tx_type_codes", "min_id", "max_id"}, paramNames(stmt.Params))
	assert.Equal(t, date, stmt.Params[0].Value)
	assert.Equal(t, []string{"0", "4"}, stmt.Params[1].Value)
}

func TestBuildOutletQuery(t *testing.T) {
	asOf := civil.Date{Year: 2024, Month: 2, Day: 29}

	stmt, err := buildOutletQuery(testTables(), asOf)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "FROM `base_layer.pt_participant` pp")
	assert.Contains(t, stmt.SQL, "INNER JOIN `base_layer.pt_terminal` pt")
	assert.Contains(t, stmt.SQL, "FROM `base_layer.etl_mobileapp2_outlet` o")
	assert.Equal(t, []string{"SHVPTS01", "SHVPTS02"}, stmt.Params[1].Value)

	noExclusions := testTables()
	noExclusions.excludedTerminals = nil
	stmt, err = buildOutletQuery(noExclusions, asOf)
	require.NoError(t, err)
	assert.NotNil(t, stmt.Params[1].Value)
	assert.Empty(t, stmt.Params[1].Value)
}

func TestBuildNewMemberQuery(t *testing.T) {
	q := NewMemberQuery{Since: civil.Date{Year: 2024, Month: 7, Day: 22}, WindowDays: 30, MinValue: 30}

	stmt, err := buildNewMemberQuery(testTables(), q)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "ROW_NUMBER() OVER (PARTITION BY ods.card_no ORDER BY ods.transaction_id ASC)")
	assert.Contains(t, stmt.SQL, "`aggregate_layer.dws_etl_cd_card_df` blm")
	assert.Equal(t, []string{"since", "tx_type_codes", "window_days", "min_value"}, paramNames(stmt.Params))
	assert.Equal(t, int64(30), stmt.Params[2].Value)

	missing := testTables()
	missing.appMember = ""
	_, err = buildNewMemberQuery(missing, q)
	assert.Error(t, err)
}

func TestBuildQueries_RejectBadTableNames(t *testing.T) {
	bad := testTables()
	bad.source = "ods; DROP TABLE x"
	asOf := civil.Date{Year: 2024, Month: 3, Day: 1}

	_, err := buildLineQuery(bad, LineQuery{PartitionDate: asOf})
	assert.Error(t, err)
	_, err = buildBoundsQuery(bad, asOf)
	assert.Error(t, err)
}

func TestNullDecimal(t *testing.T) {
	assert.False(t, nullDecimal(nil).Valid)

	got := nullDecimal(big.NewRat(61, 2))
	require.True(t, got.Valid)
	assert.True(t, got.Decimal.Equal(decimal.RequireFromString("30.5")))

	third := nullDecimal(big.NewRat(1, 3))
	assert.Equal(t, "0.333333333", third.Decimal.String())
}

func TestLineRowToDomain(t *testing.T) {
	row := lineRow{
		PartitionDate: civil.Date{Year: 2024, Month: 3, Day: 1},
		TransactionID: 100,
		CardNo:        bigquery.NullString{StringVal: " 42 ", Valid: true},
		TerminalID:    bigquery.NullString{StringVal: "T1 ", Valid: true},
		TransactionDate: bigquery.NullDateTime{
			DateTime: civil.DateTime{
				Date: civil.Date{Year: 2024, Month: 3, Day: 1},
				Time: civil.Time{Hour: 8, Minute: 15},
			},
			Valid: true,
		},
		TotalTxnValue: big.NewRat(30, 1),
		GroupCode:     bigquery.NullString{StringVal: "7", Valid: true},
	}

	got := row.toDomain()
	assert.Equal(t, " 42 ", got.CardNo, "trimming belongs to the record builder")
	assert.Equal(t, time.Date(2024, 3, 1, 8, 15, 0, 0, time.UTC), got.TransactionDate)
	assert.True(t, got.TotalTxnValue.Valid)
	assert.False(t, got.StdPointsValue.Valid)
	assert.False(t, got.Qty.Valid)
	assert.Equal(t, "", got.ProductCode)
	assert.Equal(t, "7", got.GroupCode)
}

func TestDateTime_Null(t *testing.T) {
	assert.True(t, dateTime(bigquery.NullDateTime{}).IsZero())
}

func TestEncodeSinkRows(t *testing.T) {
	target := LoadTarget{
		Table:         "exports.points",
		PartitionDate: civil.Date{Year: 2024, Month: 3, Day: 1},
		Batch:         2,
	}
	records := []domain.OutputRecord{
		{
			CardID:   42,
			User:     domain.User{ID: "a@x.com", Type: domain.UserTypeEmail},
			Amount:   domain.NewNumber(decimal.RequireFromString("30.50")),
			Gateway:  domain.Gateway{ID: 1, TransactionID: "100"},
			IssuedAt: time.Date(2024, 3, 1, 8, 15, 0, 0, time.UTC),
			Points: domain.Points{
				Standard: domain.NumberFromInt(50),
				Bonus:    domain.NumberFromInt(0),
			},
			Type: "issue",
		},
		{CardID: 43, Type: "issue"},
	}

	data, err := encodeSinkRows(target, records)
	require.NoError(t, err)

	var rows []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		rows = append(rows, m)
	}
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, "2024-03-01", first["partition_date"])
	assert.Equal(t, float64(2), first["batch"])
	assert.Equal(t, "30.5", first["amount"])
	assert.Equal(t, "2024-03-01 08:15:00", first["issued_at"])
	assert.Equal(t, "[]", first["products"])

	_, hasIssuedAt := rows[1]["issued_at"]
	assert.False(t, hasIssuedAt, "zero time is loaded as NULL")

	for _, field := range sinkSchema {
		_, ok := first[field.Name]
		assert.True(t, ok, "column %s present", field.Name)
	}
	assert.False(t, strings.Contains(string(data), "null"))
}
