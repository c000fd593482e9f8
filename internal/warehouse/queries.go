package warehouse

import (
	"fmt"
	"regexp"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/points-exporter/internal/config"
)

// statement is a parameterized query.
type statement struct {
	SQL    string
	Params []bigquery.QueryParameter
}

// LineQuery selects the lines of one batch: transactions of a partition date
// with MinID <= transaction_id < MaxID.
type LineQuery struct {
	PartitionDate civil.Date
	MinID         int64
	MaxID         int64
}

// NewMemberQuery selects first qualifying transactions of new members.
type NewMemberQuery struct {
	// Since bounds the scanned partitions, the app install date and the
	// transaction date.
	Since      civil.Date
	WindowDays int
	MinValue   float64
}

// tablesConfig is the subset of the warehouse configuration the queries use.
type tablesConfig struct {
	source, detail                 string
	groupCode, outlet, contact     string
	participant, terminal          string
	member, appMember              string
	txTypeCodes, excludedTerminals []string
}

func tablesFrom(cfg config.Warehouse) tablesConfig {
	return tablesConfig{
		source:            cfg.SourceTable,
		detail:            cfg.DetailTable,
		groupCode:         cfg.GroupCodeTable,
		outlet:            cfg.OutletTable,
		contact:           cfg.ContactTable,
		participant:       cfg.ParticipantTable,
		terminal:          cfg.TerminalTable,
		member:            cfg.MemberTable,
		appMember:         cfg.AppMemberTable,
		txTypeCodes:       cfg.TxTypeCodes,
		excludedTerminals: cfg.ExcludedTerminals,
	}
}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+(\.[A-Za-z0-9_\-]+){1,2}$`)

// tableRef quotes a dataset.table or project.dataset.table name. Names come
// from configuration and cannot be query parameters.
func tableRef(name string) (string, error) {
	if !tableNamePattern.MatchString(name) {
		return "", fmt.Errorf("invalid table name %q", name)
	}
	return "`" + name + "`", nil
}

func tableRefs(names ...string) ([]any, error) {
	refs := make([]any, 0, len(names))
	for _, n := range names {
		r, err := tableRef(n)
		if err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, nil
}

// Detail lines have no sequence column. Ordering by all of them keeps the
// product order of a transaction stable across runs.
const lineSQL = `
	SELECT
		ods.partition_dt,
		ods.transaction_id,
		CAST(ods.card_no AS STRING) AS card_no,
		CAST(ods.terminal_id AS STRING) AS terminal_id,
		CAST(ods.transaction_date AS DATETIME) AS transaction_date,
		CAST(ods.total_txn_value AS NUMERIC) AS total_txn_value,
		CAST(ods.std_points_value AS NUMERIC) AS std_points_value,
		CAST(ods.bonus_points_value AS NUMERIC) AS bonus_points_value,
		CAST(ods.source AS STRING) AS source,
		CAST(ods.merch_ref AS STRING) AS merch_ref,
		CAST(ods.statement_id AS STRING) AS statement_id,
		CAST(ods.name AS STRING) AS name,
		CAST(ods.card_type AS STRING) AS card_type,
		CAST(ods.form_of_pmt AS STRING) AS form_of_pmt,
		CAST(ods.tx_type_code AS STRING) AS tx_type_code,
		CAST(dt.product_code AS STRING) AS product_code,
		CAST(dt.group_code AS STRING) AS group_code,
		CAST(dt.qty AS NUMERIC) AS qty,
		CAST(dt.value AS NUMERIC) AS value,
		CAST(dt.std_pts AS NUMERIC) AS std_pts,
		CAST(dt.bonus_pts AS NUMERIC) AS bonus_pts
	FROM %s ods
	LEFT JOIN %s dt
	  ON ods.transaction_id = dt.transaction_id
	WHERE ods.partition_dt = @partition_date
	  AND TRIM(CAST(ods.tx_type_code AS STRING)) IN UNNEST(@tx_type_codes)
	  AND ods.transaction_id >= @min_id
	  AND ods.transaction_id < @max_id
	ORDER BY ods.transaction_id, product_code, group_code, qty, value, std_pts, bonus_pts
`

func buildLineQuery(cfg tablesConfig, q LineQuery) (statement, error) {
	refs, err := tableRefs(cfg.source, cfg.detail)
	if err != nil {
		return statement{}, err
	}
	return statement{
		SQL: fmt.Sprintf(lineSQL, refs...),
		Params: []bigquery.QueryParameter{
			{Name: "partition_date", Value: q.PartitionDate},
			{Name: "tx_type_codes", Value: cfg.txTypeCodes},
			{Name: "min_id", Value: q.MinID},
			{Name: "max_id", Value: q.MaxID},
		},
	}, nil
}

const boundsSQL = `
	SELECT
		MIN(ods.transaction_id) AS min_id,
		MAX(ods.transaction_id) AS max_id
	FROM %s ods
	WHERE ods.partition_dt = @partition_date
	  AND TRIM(CAST(ods.tx_type_code AS STRING)) IN UNNEST(@tx_type_codes)
`

func buildBoundsQuery(cfg tablesConfig, date civil.Date) (statement, error) {
	refs, err := tableRefs(cfg.source)
	if err != nil {
		return statement{}, err
	}
	return statement{
		SQL: fmt.Sprintf(boundsSQL, refs...),
		Params: []bigquery.QueryParameter{
			{Name: "partition_date", Value: date},
			{Name: "tx_type_codes", Value: cfg.txTypeCodes},
		},
	}, nil
}

const groupCodeSQL = `
	SELECT
		CAST(group_code AS STRING) AS group_code,
		CAST(category AS STRING) AS category,
		CAST(sub_category AS STRING) AS sub_category,
		CAST(product_type AS STRING) AS product_type
	FROM %s
	WHERE TIMESTAMP_TRUNC(_PARTITIONTIME, DAY) = TIMESTAMP(@as_of)
`

func buildGroupCodeQuery(cfg tablesConfig, asOf civil.Date) (statement, error) {
	refs, err := tableRefs(cfg.groupCode)
	if err != nil {
		return statement{}, err
	}
	return statement{
		SQL:    fmt.Sprintf(groupCodeSQL, refs...),
		Params: []bigquery.QueryParameter{{Name: "as_of", Value: asOf}},
	}, nil
}

// The participant hierarchy is participant -> outlet -> sub-participant ->
// terminal. Outlet coordinates come from the app outlet table.
const outletSQL = `
	WITH terminals AS (
		SELECT
			CAST(pp.participant_id AS STRING) AS participant_id,
			TRIM(pp.description) AS participant_name,
			CAST(pp1.participant_id AS STRING) AS outlet_id,
			TRIM(pp1.description) AS outlet_name,
			TRIM(pt.terminal_id) AS terminal_id
		FROM %[1]s pp
		INNER JOIN %[1]s pp1 ON pp.participant_id = pp1.parent_id
		INNER JOIN %[1]s pp2 ON pp1.participant_id = pp2.parent_id
		INNER JOIN %[2]s pt ON pp2.participant_id = pt.participant_id
		WHERE pp._PARTITIONDATE = @as_of
		  AND pp1._PARTITIONDATE = @as_of
		  AND pp2._PARTITIONDATE = @as_of
		  AND pt._PARTITIONDATE = @as_of
		  AND TRIM(pt.terminal_id) NOT IN UNNEST(@excluded_terminals)
	)
	SELECT
		t.terminal_id,
		t.outlet_id,
		t.outlet_name,
		t.participant_id,
		t.participant_name,
		CAST(o.latitude AS FLOAT64) AS latitude,
		CAST(o.longitude AS FLOAT64) AS longitude
	FROM %[3]s o
	INNER JOIN terminals t ON CAST(o.outletid AS STRING) = t.outlet_id
	WHERE TIMESTAMP_TRUNC(o._PARTITIONTIME, DAY) = TIMESTAMP(@as_of)
`

func buildOutletQuery(cfg tablesConfig, asOf civil.Date) (statement, error) {
	refs, err := tableRefs(cfg.participant, cfg.terminal, cfg.outlet)
	if err != nil {
		return statement{}, err
	}
	excluded := cfg.excludedTerminals
	if excluded == nil {
		// An empty array parameter needs a non-nil slice for its type.
		excluded = []string{}
	}
	return statement{
		SQL: fmt.Sprintf(outletSQL, refs...),
		Params: []bigquery.QueryParameter{
			{Name: "as_of", Value: asOf},
			{Name: "excluded_terminals", Value: excluded},
		},
	}, nil
}

const contactSQL = `
	SELECT
		CAST(card_no AS STRING) AS card_no,
		CAST(email AS STRING) AS email,
		CAST(mobile AS STRING) AS mobile
	FROM %s
	WHERE TIMESTAMP_TRUNC(_PARTITIONTIME, DAY) = TIMESTAMP(@as_of)
	  AND (email IS NOT NULL OR mobile IS NOT NULL)
`

func buildContactQuery(cfg tablesConfig, asOf civil.Date) (statement, error) {
	refs, err := tableRefs(cfg.contact)
	if err != nil {
		return statement{}, err
	}
	return statement{
		SQL:    fmt.Sprintf(contactSQL, refs...),
		Params: []bigquery.QueryParameter{{Name: "as_of", Value: asOf}},
	}, nil
}

const newMemberSQL = `
	WITH ranked AS (
		SELECT
			ods.transaction_id,
			CAST(ods.card_no AS STRING) AS card_no,
			CAST(ods.total_txn_value AS NUMERIC) AS total_txn_value,
			CAST(ods.transaction_date AS DATETIME) AS transaction_date,
			CAST(blm.assign_date AS DATETIME) AS registration_date,
			CAST(app.createddateutc AS DATETIME) AS app_install_date,
			DATE_DIFF(DATE(ods.transaction_date), DATE(app.createddateutc), DAY) AS app_day_diff,
			DATE_DIFF(DATE(ods.transaction_date), DATE(blm.assign_date), DAY) AS member_day_diff,
			ROW_NUMBER() OVER (PARTITION BY ods.card_no ORDER BY ods.transaction_id ASC) AS row_num,
			CAST(blm.mobile AS STRING) AS mobile,
			CAST(blm.mobile_original AS STRING) AS mobile_original,
			CAST(blm.first_name AS STRING) AS name,
			CAST(blm.email AS STRING) AS email,
			ods.partition_dt
		FROM %[1]s ods
		LEFT JOIN %[2]s blm
		  ON SAFE_CAST(TRIM(ods.card_no) AS INT64) = SAFE_CAST(blm.card_no AS INT64)
		LEFT JOIN %[3]s app
		  ON SAFE_CAST(TRIM(ods.card_no) AS INT64) = app.blcard
		WHERE ods.partition_dt >= @since
		  AND TRIM(CAST(ods.tx_type_code AS STRING)) IN UNNEST(@tx_type_codes)
		  AND DATE(app.createddateutc) >= @since
		  AND DATE(ods.transaction_date) >= @since
		  AND DATE_DIFF(DATE(ods.transaction_date), DATE(app.createddateutc), DAY) <= @window_days
		  AND DATE_DIFF(DATE(ods.transaction_date), DATE(blm.assign_date), DAY) <= @window_days
		  AND ods.total_txn_value >= @min_value
	)
	SELECT
		transaction_id,
		card_no,
		total_txn_value,
		transaction_date,
		registration_date,
		app_install_date,
		app_day_diff,
		member_day_diff,
		mobile,
		mobile_original,
		name,
		email,
		partition_dt
	FROM ranked
	WHERE row_num = 1
	ORDER BY transaction_id
`

func buildNewMemberQuery(cfg tablesConfig, q NewMemberQuery) (statement, error) {
	if cfg.member == "" || cfg.appMember == "" {
		return statement{}, fmt.Errorf("member and app member tables must be configured")
	}
	refs, err := tableRefs(cfg.source, cfg.member, cfg.appMember)
	if err != nil {
		return statement{}, err
	}
	return statement{
		SQL: fmt.Sprintf(newMemberSQL, refs...),
		Params: []bigquery.QueryParameter{
			{Name: "since", Value: q.Since},
			{Name: "tx_type_codes", Value: cfg.txTypeCodes},
			{Name: "window_days", Value: int64(q.WindowDays)},
			{Name: "min_value", Value: q.MinValue},
		},
	}, nil
}

const deleteBatchSQL = `
	DELETE FROM %s
	WHERE partition_date = @partition_date
	  AND batch = @batch
`

func buildDeleteBatch(table string, date civil.Date, batch int) (statement, error) {
	refs, err := tableRefs(table)
	if err != nil {
		return statement{}, err
	}
	return statement{
		SQL: fmt.Sprintf(deleteBatchSQL, refs...),
		Params: []bigquery.QueryParameter{
			{Name: "partition_date", Value: date},
			{Name: "batch", Value: int64(batch)},
		},
	}, nil
}
